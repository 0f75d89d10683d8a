package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/sundayhq/boardsync/internal/api/v1"
	"github.com/sundayhq/boardsync/internal/domain"
	"github.com/sundayhq/boardsync/internal/server/middleware"
)

func userCtx(userID uuid.UUID) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyUserID, userID)
}

// mockEngine implements v1.CollabEngine with function fields.
type mockEngine struct {
	snapshotFunc  func(ctx context.Context, boardID uuid.UUID) (*domain.BoardSnapshot, error)
	presenceFunc  func(boardID uuid.UUID) []*domain.Session
	resyncFunc    func(sessionID, boardID uuid.UUID, lastAckedSeq uint64) ([]*domain.ResolvedUpdate, bool)
	authorizeFunc func(ctx context.Context, userID, boardID uuid.UUID, need domain.BoardRole) error
}

func (m *mockEngine) Snapshot(ctx context.Context, boardID uuid.UUID) (*domain.BoardSnapshot, error) {
	return m.snapshotFunc(ctx, boardID)
}

func (m *mockEngine) Presence(boardID uuid.UUID) []*domain.Session {
	return m.presenceFunc(boardID)
}

func (m *mockEngine) Resync(sessionID, boardID uuid.UUID, lastAckedSeq uint64) ([]*domain.ResolvedUpdate, bool) {
	return m.resyncFunc(sessionID, boardID, lastAckedSeq)
}

func (m *mockEngine) Authorize(ctx context.Context, userID, boardID uuid.UUID, need domain.BoardRole) error {
	if m.authorizeFunc == nil {
		return nil
	}
	return m.authorizeFunc(ctx, userID, boardID, need)
}

func TestGetBoardSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		boardID := uuid.New()
		userID := uuid.New()
		itemID := uuid.New()

		_, api := humatest.New(t)
		engine := &mockEngine{
			snapshotFunc: func(_ context.Context, id uuid.UUID) (*domain.BoardSnapshot, error) {
				assert.Equal(t, boardID, id)
				return &domain.BoardSnapshot{
					BoardID: boardID,
					Seq:     17,
					Items: []*domain.Item{{
						ID: itemID, BoardID: boardID,
						Fields: map[domain.Field]domain.FieldValue{
							domain.FieldStatus: {Value: "done", Seq: 17},
						},
					}},
				}, nil
			},
		}
		v1.RegisterBoardRoutes(api, engine)

		resp := api.GetCtx(userCtx(userID), "/boards/"+boardID.String()+"/snapshot")
		require.Equal(t, http.StatusOK, resp.Code)

		var snap domain.BoardSnapshot
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snap))
		assert.Equal(t, uint64(17), snap.Seq)
		require.Len(t, snap.Items, 1)
		assert.Equal(t, "done", snap.Items[0].Fields[domain.FieldStatus].Value)
	})

	t.Run("missing_user", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterBoardRoutes(api, &mockEngine{})

		resp := api.Get("/boards/" + uuid.New().String() + "/snapshot")
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("not_a_member", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		engine := &mockEngine{
			authorizeFunc: func(_ context.Context, _, _ uuid.UUID, _ domain.BoardRole) error {
				return domain.ErrUnauthorized
			},
		}
		v1.RegisterBoardRoutes(api, engine)

		resp := api.GetCtx(userCtx(uuid.New()), "/boards/"+uuid.New().String()+"/snapshot")
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("board_unavailable", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		engine := &mockEngine{
			snapshotFunc: func(_ context.Context, _ uuid.UUID) (*domain.BoardSnapshot, error) {
				return nil, domain.ErrBoardUnavailable
			},
		}
		v1.RegisterBoardRoutes(api, engine)

		resp := api.GetCtx(userCtx(uuid.New()), "/boards/"+uuid.New().String()+"/snapshot")
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}

func TestGetBoardPresence(t *testing.T) {
	t.Parallel()

	boardID := uuid.New()

	_, api := humatest.New(t)
	engine := &mockEngine{
		presenceFunc: func(id uuid.UUID) []*domain.Session {
			assert.Equal(t, boardID, id)
			return []*domain.Session{
				{ID: uuid.New(), BoardID: boardID, Presence: domain.PresenceEditing},
				{ID: uuid.New(), BoardID: boardID, Presence: domain.PresenceViewing},
			}
		},
	}
	v1.RegisterBoardRoutes(api, engine)

	resp := api.GetCtx(userCtx(uuid.New()), "/boards/"+boardID.String()+"/presence")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Sessions []domain.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 2)
}

func TestResyncBoard(t *testing.T) {
	t.Parallel()

	t.Run("exact_replay", func(t *testing.T) {
		t.Parallel()

		boardID := uuid.New()
		sessionID := uuid.New()

		_, api := humatest.New(t)
		engine := &mockEngine{
			resyncFunc: func(sid, bid uuid.UUID, lastAcked uint64) ([]*domain.ResolvedUpdate, bool) {
				assert.Equal(t, sessionID, sid)
				assert.Equal(t, boardID, bid)
				assert.Equal(t, uint64(3), lastAcked)
				return []*domain.ResolvedUpdate{
					{BoardID: bid, Seq: 4, Field: domain.FieldStatus, Value: "done"},
					{BoardID: bid, Seq: 5, Field: domain.FieldPriority, Value: "high"},
				}, false
			},
		}
		v1.RegisterBoardRoutes(api, engine)

		resp := api.PostCtx(userCtx(uuid.New()), "/boards/"+boardID.String()+"/resync", map[string]any{
			"session_id":     sessionID.String(),
			"last_acked_seq": 3,
		})
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Updates            []domain.ResolvedUpdate `json:"updates"`
			FullResyncRequired bool                    `json:"full_resync_required"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.False(t, body.FullResyncRequired)
		require.Len(t, body.Updates, 2)
		assert.Equal(t, uint64(4), body.Updates[0].Seq)
	})

	t.Run("full_resync_required", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		engine := &mockEngine{
			resyncFunc: func(_, _ uuid.UUID, _ uint64) ([]*domain.ResolvedUpdate, bool) {
				return nil, true
			},
		}
		v1.RegisterBoardRoutes(api, engine)

		resp := api.PostCtx(userCtx(uuid.New()), "/boards/"+uuid.New().String()+"/resync", map[string]any{
			"session_id":     uuid.New().String(),
			"last_acked_seq": 0,
		})
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			FullResyncRequired bool `json:"full_resync_required"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.True(t, body.FullResyncRequired)
	})
}
