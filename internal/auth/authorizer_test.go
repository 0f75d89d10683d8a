package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/sundayhq/boardsync/internal/domain"
)

type membershipRepoMock struct {
	roleFn func(ctx context.Context, boardID, userID uuid.UUID) (domain.BoardRole, error)
}

func (m *membershipRepoMock) Role(ctx context.Context, boardID, userID uuid.UUID) (domain.BoardRole, error) {
	return m.roleFn(ctx, boardID, userID)
}

func TestAuthorizer_Authorize(t *testing.T) {
	t.Parallel()

	repoErr := errors.New("connection refused")

	tests := []struct {
		name    string
		role    domain.BoardRole
		roleErr error
		need    domain.BoardRole
		wantErr error
	}{
		{name: "viewer can view", role: domain.BoardRoleViewer, need: domain.BoardRoleViewer},
		{name: "editor can view", role: domain.BoardRoleEditor, need: domain.BoardRoleViewer},
		{name: "editor can edit", role: domain.BoardRoleEditor, need: domain.BoardRoleEditor},
		{name: "viewer cannot edit", role: domain.BoardRoleViewer, need: domain.BoardRoleEditor, wantErr: domain.ErrUnauthorized},
		{name: "non-member rejected", roleErr: domain.ErrNotFound, need: domain.BoardRoleViewer, wantErr: domain.ErrUnauthorized},
		{name: "repo failure surfaces", roleErr: repoErr, need: domain.BoardRoleViewer, wantErr: repoErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := NewAuthorizer(&membershipRepoMock{
				roleFn: func(_ context.Context, _, _ uuid.UUID) (domain.BoardRole, error) {
					return tt.role, tt.roleErr
				},
			})

			err := a.Authorize(context.Background(), uuid.New(), uuid.New(), tt.need)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
