package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sundayhq/boardsync/internal/domain"
	"github.com/sundayhq/boardsync/internal/store/redis"
)

// MutationEvent is the envelope published for every applied mutation. The
// automation pipeline keys its trigger matching on board, item, and field.
type MutationEvent struct {
	Type       string                `json:"type"`
	Update     domain.ResolvedUpdate `json:"update"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// PresenceChange is the envelope published for presence transitions.
type PresenceChange struct {
	Type       string               `json:"type"`
	Presence   domain.PresenceEvent `json:"presence"`
	OccurredAt time.Time            `json:"occurred_at"`
}

const (
	eventTypeMutation = "mutation_applied"
	eventTypePresence = "presence_changed"
)

// Publisher is the subset of the Redis pub/sub client the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Emitter publishes engine events over Redis: mutation events to the
// automation channel, plus per-board mirrors so a consumer can follow one
// board's activity without filtering the automation firehose. Follower is
// the read side.
type Emitter struct {
	pubsub Publisher
}

func NewEmitter(pubsub Publisher) *Emitter {
	return &Emitter{pubsub: pubsub}
}

func (e *Emitter) MutationApplied(ctx context.Context, u *domain.ResolvedUpdate) error {
	payload, err := json.Marshal(MutationEvent{
		Type:       eventTypeMutation,
		Update:     *u,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("automation.Emitter.MutationApplied: marshal: %w", err)
	}

	if err := e.pubsub.Publish(ctx, redis.AutomationChannel(u.BoardID), payload); err != nil {
		return fmt.Errorf("automation.Emitter.MutationApplied: %w", err)
	}
	if err := e.pubsub.Publish(ctx, redis.BoardChannel(u.BoardID), payload); err != nil {
		return fmt.Errorf("automation.Emitter.MutationApplied: mirror: %w", err)
	}
	return nil
}

func (e *Emitter) PresenceChanged(ctx context.Context, ev domain.PresenceEvent) error {
	payload, err := json.Marshal(PresenceChange{
		Type:       eventTypePresence,
		Presence:   ev,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("automation.Emitter.PresenceChanged: marshal: %w", err)
	}

	if err := e.pubsub.Publish(ctx, redis.PresenceChannel(ev.BoardID), payload); err != nil {
		return fmt.Errorf("automation.Emitter.PresenceChanged: %w", err)
	}
	return nil
}
