package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sundayhq/boardsync/internal/domain"
)

// Authorizer answers board access checks against the membership mirror.
// Editors can do everything viewers can.
type Authorizer struct {
	memberships domain.MembershipRepository
}

func NewAuthorizer(memberships domain.MembershipRepository) *Authorizer {
	return &Authorizer{memberships: memberships}
}

// Authorize verifies that the user holds at least the required role on the
// board. Non-members and insufficient roles both map to ErrUnauthorized.
func (a *Authorizer) Authorize(ctx context.Context, userID, boardID uuid.UUID, need domain.BoardRole) error {
	role, err := a.memberships.Role(ctx, boardID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("auth.Authorizer.Authorize: user %s on board %s: %w", userID, boardID, domain.ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("auth.Authorizer.Authorize: %w", err)
	}

	if need == domain.BoardRoleEditor && role != domain.BoardRoleEditor {
		return fmt.Errorf("auth.Authorizer.Authorize: role %s cannot edit board %s: %w", role, boardID, domain.ErrUnauthorized)
	}
	return nil
}
