// Command boardwatch tails one board's live activity from Redis: applied
// mutations and presence transitions, printed as structured log lines. It is
// an operational tool for debugging a misbehaving board without attaching a
// client to the sync server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/automation"
	redisstore "github.com/sundayhq/boardsync/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("boardwatch failed")
	}
}

func run() error {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	if len(os.Args) != 2 {
		return fmt.Errorf("usage: boardwatch <board-id>")
	}
	boardID, err := uuid.Parse(os.Args[1])
	if err != nil {
		return fmt.Errorf("invalid board id %q: %w", os.Args[1], err)
	}

	addr := os.Getenv("BOARDSYNC_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if raw := os.Getenv("BOARDSYNC_REDIS_DB"); raw != "" {
		if db, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("invalid BOARDSYNC_REDIS_DB %q: %w", raw, err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pubsub, err := redisstore.New(ctx, addr, os.Getenv("BOARDSYNC_REDIS_PASSWORD"), db)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	follower := automation.NewFollower(pubsub)
	stop, err := follower.FollowBoard(ctx, boardID,
		func(ev automation.MutationEvent) {
			log.Info().
				Str("item_id", ev.Update.ItemID.String()).
				Str("field", string(ev.Update.Field)).
				Str("value", ev.Update.Value).
				Uint64("seq", ev.Update.Seq).
				Time("occurred_at", ev.OccurredAt).
				Msg("mutation")
		},
		func(ev automation.PresenceChange) {
			log.Info().
				Str("session_id", ev.Presence.SessionID.String()).
				Str("user_id", ev.Presence.UserID.String()).
				Str("state", string(ev.Presence.State)).
				Time("occurred_at", ev.OccurredAt).
				Msg("presence")
		},
	)
	if err != nil {
		return err
	}
	defer stop()

	log.Info().Str("board_id", boardID.String()).Msg("watching board")
	<-ctx.Done()
	return nil
}
