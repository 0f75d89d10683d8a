package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sundayhq/boardsync/internal/domain"
)

// MembershipRepo mirrors the auth service's board membership table.
type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) Role(ctx context.Context, boardID, userID uuid.UUID) (domain.BoardRole, error) {
	var role string

	err := r.pool.QueryRow(ctx,
		`SELECT role FROM board_members WHERE board_id = $1 AND user_id = $2`,
		boardID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("membershipRepo.Role: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("membershipRepo.Role: %w", err)
	}

	return domain.BoardRole(role), nil
}
