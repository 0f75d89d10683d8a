package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/auth"
	"github.com/sundayhq/boardsync/internal/automation"
	"github.com/sundayhq/boardsync/internal/collab"
	"github.com/sundayhq/boardsync/internal/collab/textmerge"
	"github.com/sundayhq/boardsync/internal/config"
	"github.com/sundayhq/boardsync/internal/server"
	"github.com/sundayhq/boardsync/internal/store/postgres"
	redisstore "github.com/sundayhq/boardsync/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("BOARDSYNC_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("BOARDSYNC_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// Pick the free-text merge engine.
	var merger textmerge.Merger
	switch cfg.Collab.TextMergeEngine {
	case "crdt":
		merger = textmerge.NewCRDT()
	default:
		merger = textmerge.NewOT()
	}
	log.Info().Str("engine", cfg.Collab.TextMergeEngine).Msg("text merge engine selected")

	// Build the collaboration engine around its external collaborators.
	authorizer := auth.NewAuthorizer(store.Memberships())
	emitter := automation.NewEmitter(pubsub)

	engine := collab.NewEngine(
		collab.EngineConfig{
			HeartbeatWindow: cfg.Collab.HeartbeatWindow,
			ReconnectGrace:  cfg.Collab.ReconnectGrace,
			QueueBound:      cfg.Collab.QueueBound,
		},
		store.BoardStates(),
		store.Markers(),
		authorizer,
		merger,
		emitter,
	)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the engine sweeps (heartbeat eviction, reconnect grace).
	go engine.Run(ctx)

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, engine)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
