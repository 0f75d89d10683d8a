package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MarkerRepo persists per-board sequence markers. Marker writes are
// idempotent on (board_id, seq) so at-least-once delivery is safe.
type MarkerRepo struct {
	pool *pgxpool.Pool
}

func NewMarkerRepo(pool *pgxpool.Pool) *MarkerRepo {
	return &MarkerRepo{pool: pool}
}

func (r *MarkerRepo) PersistMarker(ctx context.Context, boardID uuid.UUID, seq uint64, summary string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO board_markers (board_id, seq, summary, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (board_id, seq) DO NOTHING`,
		boardID, int64(seq), summary,
	)
	if err != nil {
		return fmt.Errorf("markerRepo.PersistMarker: %w", err)
	}

	return nil
}

func (r *MarkerRepo) LatestMarker(ctx context.Context, boardID uuid.UUID) (uint64, error) {
	var seq int64

	err := r.pool.QueryRow(ctx,
		`SELECT seq FROM board_markers WHERE board_id = $1 ORDER BY seq DESC LIMIT 1`,
		boardID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		// A board with no markers has never issued a sequence number.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("markerRepo.LatestMarker: %w", err)
	}

	return uint64(seq), nil
}
