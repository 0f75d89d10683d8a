package collab

import (
	"context"

	"github.com/google/uuid"

	"github.com/sundayhq/boardsync/internal/domain"
)

// Emitter publishes applied mutations and presence changes to external
// consumers such as the automation pipeline. Delivery is best effort; a lost
// event is never grounds for failing the mutation that produced it.
type Emitter interface {
	MutationApplied(ctx context.Context, u *domain.ResolvedUpdate) error
	PresenceChanged(ctx context.Context, ev domain.PresenceEvent) error
}

// Authorizer answers whether a user holds at least the given role on a board.
// Implementations return domain.ErrUnauthorized when the user does not.
type Authorizer interface {
	Authorize(ctx context.Context, userID, boardID uuid.UUID, need domain.BoardRole) error
}
