package automation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayhq/boardsync/internal/domain"
	"github.com/sundayhq/boardsync/internal/store/redis"
)

type publisherMock struct {
	publishFn func(ctx context.Context, channel string, payload []byte) error
}

func (m *publisherMock) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.publishFn(ctx, channel, payload)
}

func TestEmitter_MutationApplied(t *testing.T) {
	t.Parallel()

	boardID := uuid.New()
	update := &domain.ResolvedUpdate{
		BoardID: boardID,
		ItemID:  uuid.New(),
		Field:   domain.FieldStatus,
		Value:   "done",
		Seq:     12,
	}

	published := make(map[string][]byte)
	em := NewEmitter(&publisherMock{
		publishFn: func(_ context.Context, channel string, payload []byte) error {
			published[channel] = payload
			return nil
		},
	})

	require.NoError(t, em.MutationApplied(context.Background(), update))

	// The automation channel and the per-board mirror both carry the event.
	require.Contains(t, published, redis.AutomationChannel(boardID))
	require.Contains(t, published, redis.BoardChannel(boardID))

	var ev MutationEvent
	require.NoError(t, json.Unmarshal(published[redis.AutomationChannel(boardID)], &ev))
	assert.Equal(t, "mutation_applied", ev.Type)
	assert.Equal(t, uint64(12), ev.Update.Seq)
	assert.Equal(t, "done", ev.Update.Value)
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestEmitter_MutationAppliedPublishError(t *testing.T) {
	t.Parallel()

	em := NewEmitter(&publisherMock{
		publishFn: func(_ context.Context, _ string, _ []byte) error {
			return errors.New("connection reset")
		},
	})

	err := em.MutationApplied(context.Background(), &domain.ResolvedUpdate{BoardID: uuid.New()})
	assert.ErrorContains(t, err, "connection reset")
}

func TestEmitter_PresenceChanged(t *testing.T) {
	t.Parallel()

	boardID := uuid.New()
	published := make(map[string][]byte)
	em := NewEmitter(&publisherMock{
		publishFn: func(_ context.Context, channel string, payload []byte) error {
			published[channel] = payload
			return nil
		},
	})

	require.NoError(t, em.PresenceChanged(context.Background(), domain.PresenceEvent{
		BoardID:   boardID,
		SessionID: uuid.New(),
		State:     domain.PresenceEditing,
	}))

	require.Contains(t, published, redis.PresenceChannel(boardID))

	var ev PresenceChange
	require.NoError(t, json.Unmarshal(published[redis.PresenceChannel(boardID)], &ev))
	assert.Equal(t, "presence_changed", ev.Type)
	assert.Equal(t, domain.PresenceEditing, ev.Presence.State)
}
