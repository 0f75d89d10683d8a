package collab

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayhq/boardsync/internal/domain"
)

func drainEvents(ch <-chan domain.Event) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Closed stream; a bare receive would report ready forever.
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFanout_PublishExcludesOrigin(t *testing.T) {
	t.Parallel()

	f := NewFanout(8)
	boardID := uuid.New()
	origin := uuid.New()
	other := uuid.New()

	originCh, err := f.Attach(origin, boardID)
	require.NoError(t, err)
	otherCh, err := f.Attach(other, boardID)
	require.NoError(t, err)

	update := &domain.ResolvedUpdate{
		BoardID:       boardID,
		ItemID:        uuid.New(),
		Field:         domain.FieldStatus,
		Value:         "done",
		Seq:           1,
		OriginSession: origin,
	}
	f.Publish(update)

	got := drainEvents(otherCh)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventUpdate, got[0].Kind)
	assert.Equal(t, update, got[0].Update)

	assert.Empty(t, drainEvents(originCh))
}

func TestFanout_PublishPreservesOrder(t *testing.T) {
	t.Parallel()

	f := NewFanout(8)
	boardID := uuid.New()
	origin := uuid.New()
	other := uuid.New()

	_, err := f.Attach(origin, boardID)
	require.NoError(t, err)
	otherCh, err := f.Attach(other, boardID)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 5; seq++ {
		f.Publish(&domain.ResolvedUpdate{BoardID: boardID, Seq: seq, OriginSession: origin})
	}

	got := drainEvents(otherCh)
	require.Len(t, got, 5)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Update.Seq)
	}
}

func TestFanout_AttachDuplicate(t *testing.T) {
	t.Parallel()

	f := NewFanout(8)
	sessionID := uuid.New()
	boardID := uuid.New()

	_, err := f.Attach(sessionID, boardID)
	require.NoError(t, err)

	_, err = f.Attach(sessionID, boardID)
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
}

func TestFanout_DetachClosesStream(t *testing.T) {
	t.Parallel()

	f := NewFanout(8)
	sessionID := uuid.New()

	ch, err := f.Attach(sessionID, uuid.New())
	require.NoError(t, err)

	f.Detach(sessionID)
	_, open := <-ch
	assert.False(t, open)

	// Second detach is a no-op.
	f.Detach(sessionID)
}

func TestFanout_Notify(t *testing.T) {
	t.Parallel()

	f := NewFanout(8)
	boardID := uuid.New()
	target := uuid.New()
	bystander := uuid.New()

	targetCh, err := f.Attach(target, boardID)
	require.NoError(t, err)
	bystanderCh, err := f.Attach(bystander, boardID)
	require.NoError(t, err)

	n := &domain.Notice{Kind: domain.NoticeSuperseded, ItemID: uuid.New(), Field: domain.FieldStatus, Seq: 7, Value: "blocked"}
	f.Notify(target, n)
	f.Notify(uuid.New(), n) // unknown session, no-op

	got := drainEvents(targetCh)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventNotice, got[0].Kind)
	assert.Equal(t, n, got[0].Notice)
	assert.Empty(t, drainEvents(bystanderCh))
}

func TestFanout_DetachDuringBroadcastDoesNotPanic(t *testing.T) {
	t.Parallel()

	f := NewFanout(1)
	boardID := uuid.New()
	origin := uuid.New()

	_, err := f.Attach(origin, boardID)
	require.NoError(t, err)

	// A detach landing between a broadcast's queue check and its channel send
	// must not panic the sender: publishers here stand in for the board actor
	// and the presence callback, the detacher for a client disconnect.
	for i := 0; i < 500; i++ {
		sessionID := uuid.New()
		_, err := f.Attach(sessionID, boardID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func(seq uint64) {
				defer wg.Done()
				f.Publish(&domain.ResolvedUpdate{BoardID: boardID, Seq: seq, OriginSession: origin})
			}(uint64(i*4 + p + 1))
		}
		f.Detach(sessionID)
		wg.Wait()
	}

	// The fan-out stays usable afterwards.
	ch, err := f.Attach(uuid.New(), boardID)
	require.NoError(t, err)
	f.Publish(&domain.ResolvedUpdate{BoardID: boardID, Seq: 9999, OriginSession: origin})
	require.Len(t, drainEvents(ch), 1)
}

func TestFanout_OverflowDropsSession(t *testing.T) {
	t.Parallel()

	f := NewFanout(2)
	boardID := uuid.New()
	origin := uuid.New()
	slow := uuid.New()

	var dropped []uuid.UUID
	f.OnOverflow(func(sessionID, _ uuid.UUID) { dropped = append(dropped, sessionID) })

	_, err := f.Attach(origin, boardID)
	require.NoError(t, err)
	slowCh, err := f.Attach(slow, boardID)
	require.NoError(t, err)

	// Third publish exceeds the bound of 2 without the consumer draining.
	for seq := uint64(1); seq <= 3; seq++ {
		f.Publish(&domain.ResolvedUpdate{BoardID: boardID, Seq: seq, OriginSession: origin})
	}

	require.Len(t, dropped, 1)
	assert.Equal(t, slow, dropped[0])

	// The stream holds the two buffered events, then closes.
	got := drainEvents(slowCh)
	assert.Len(t, got, 2)
	_, open := <-slowCh
	assert.False(t, open)
}
