package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/store/redis"
)

// Subscriber is the subset of the Redis pub/sub client the follower needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Follower consumes the per-board channels the Emitter publishes to: applied
// mutations on the board channel and presence transitions on the presence
// channel. Automation consumers and operational tooling use it to watch a
// single board live.
type Follower struct {
	pubsub Subscriber
}

func NewFollower(pubsub Subscriber) *Follower {
	return &Follower{pubsub: pubsub}
}

// FollowBoard streams a board's mutation and presence envelopes to the given
// callbacks until ctx is cancelled or stop is called. Payloads that do not
// decode as the channel's envelope are logged and skipped; the stream never
// stops on a bad message.
func (f *Follower) FollowBoard(
	ctx context.Context,
	boardID uuid.UUID,
	onMutation func(MutationEvent),
	onPresence func(PresenceChange),
) (stop func(), err error) {
	boardCh, boardCleanup, err := f.pubsub.Subscribe(ctx, redis.BoardChannel(boardID))
	if err != nil {
		return nil, fmt.Errorf("automation.Follower.FollowBoard: %w", err)
	}
	presCh, presCleanup, err := f.pubsub.Subscribe(ctx, redis.PresenceChannel(boardID))
	if err != nil {
		boardCleanup()
		return nil, fmt.Errorf("automation.Follower.FollowBoard: %w", err)
	}

	go func() {
		for payload := range boardCh {
			var ev MutationEvent
			if jsonErr := json.Unmarshal(payload, &ev); jsonErr != nil || ev.Type != eventTypeMutation {
				log.Debug().Err(jsonErr).
					Str("board_id", boardID.String()).
					Msg("skipping unrecognized board envelope")
				continue
			}
			onMutation(ev)
		}
	}()
	go func() {
		for payload := range presCh {
			var ev PresenceChange
			if jsonErr := json.Unmarshal(payload, &ev); jsonErr != nil || ev.Type != eventTypePresence {
				log.Debug().Err(jsonErr).
					Str("board_id", boardID.String()).
					Msg("skipping unrecognized presence envelope")
				continue
			}
			onPresence(ev)
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			boardCleanup()
			presCleanup()
		})
	}
	return stop, nil
}
