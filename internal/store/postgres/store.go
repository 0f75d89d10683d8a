package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sundayhq/boardsync/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	boardStates *BoardStateRepo
	markers     *MarkerRepo
	memberships *MembershipRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		boardStates: NewBoardStateRepo(pool),
		markers:     NewMarkerRepo(pool),
		memberships: NewMembershipRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) BoardStates() domain.BoardStateRepository { return s.boardStates }
func (s *Store) Markers() domain.MarkerRepository         { return s.markers }
func (s *Store) Memberships() domain.MembershipRepository { return s.memberships }
