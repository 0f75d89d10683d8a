package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/sundayhq/boardsync/internal/domain"
)

// CollabEngine abstracts the collaboration engine for handler testing.
// *collab.Engine satisfies this interface.
type CollabEngine interface {
	Snapshot(ctx context.Context, boardID uuid.UUID) (*domain.BoardSnapshot, error)
	Presence(boardID uuid.UUID) []*domain.Session
	Resync(sessionID, boardID uuid.UUID, lastAckedSeq uint64) ([]*domain.ResolvedUpdate, bool)
	Authorize(ctx context.Context, userID, boardID uuid.UUID, need domain.BoardRole) error
}
