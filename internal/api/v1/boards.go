package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/sundayhq/boardsync/internal/domain"
	"github.com/sundayhq/boardsync/internal/server/middleware"
)

type GetSnapshotInput struct {
	ID uuid.UUID `path:"id" doc:"Board ID"`
}

type GetSnapshotOutput struct {
	Body *domain.BoardSnapshot
}

type GetPresenceInput struct {
	ID uuid.UUID `path:"id" doc:"Board ID"`
}

type GetPresenceOutput struct {
	Body struct {
		Sessions []*domain.Session `json:"sessions"`
	}
}

type ResyncInput struct {
	ID   uuid.UUID `path:"id" doc:"Board ID"`
	Body struct {
		SessionID    uuid.UUID `json:"session_id" doc:"Session requesting the replay"`
		LastAckedSeq uint64    `json:"last_acked_seq" doc:"Highest sequence number the session has applied"`
	}
}

type ResyncOutput struct {
	Body struct {
		Updates            []*domain.ResolvedUpdate `json:"updates,omitempty"`
		FullResyncRequired bool                     `json:"full_resync_required"`
	}
}

func RegisterBoardRoutes(api huma.API, engine CollabEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board-snapshot",
		Method:      http.MethodGet,
		Path:        "/boards/{id}/snapshot",
		Summary:     "Get the full current state of a board",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetSnapshotInput) (*GetSnapshotOutput, error) {
		if err := authorize(ctx, engine, input.ID, domain.BoardRoleViewer); err != nil {
			return nil, err
		}

		snap, err := engine.Snapshot(ctx, input.ID)
		if errors.Is(err, domain.ErrBoardUnavailable) {
			return nil, huma.Error503ServiceUnavailable("board temporarily unavailable")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load snapshot", err)
		}

		return &GetSnapshotOutput{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board-presence",
		Method:      http.MethodGet,
		Path:        "/boards/{id}/presence",
		Summary:     "List sessions currently active on a board",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetPresenceInput) (*GetPresenceOutput, error) {
		if err := authorize(ctx, engine, input.ID, domain.BoardRoleViewer); err != nil {
			return nil, err
		}

		out := &GetPresenceOutput{}
		out.Body.Sessions = engine.Presence(input.ID)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resync-board",
		Method:      http.MethodPost,
		Path:        "/boards/{id}/resync",
		Summary:     "Replay updates a session missed",
		Description: "Returns the exact ordered updates after last_acked_seq, or flags that the gap is too large and the client must refetch the snapshot.",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *ResyncInput) (*ResyncOutput, error) {
		if err := authorize(ctx, engine, input.ID, domain.BoardRoleViewer); err != nil {
			return nil, err
		}

		updates, full := engine.Resync(input.Body.SessionID, input.ID, input.Body.LastAckedSeq)

		out := &ResyncOutput{}
		out.Body.Updates = updates
		out.Body.FullResyncRequired = full
		return out, nil
	})
}

func authorize(ctx context.Context, engine CollabEngine, boardID uuid.UUID, need domain.BoardRole) error {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return huma.Error401Unauthorized("missing user context")
	}

	err := engine.Authorize(ctx, userID, boardID, need)
	if errors.Is(err, domain.ErrUnauthorized) {
		return huma.Error403Forbidden("not a member of this board")
	}
	if err != nil {
		return huma.Error500InternalServerError("authorization check failed", err)
	}
	return nil
}
