package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/domain"
)

// Registry tracks which sessions are connected and which board each is
// subscribed to, and answers presence queries. Session metadata tolerates
// concurrent reads; only the maps themselves need the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	byBoard  map[uuid.UUID]map[uuid.UUID]*domain.Session

	heartbeatWindow time.Duration

	onPresence func(domain.PresenceEvent)
	onEvict    func(sessionID, boardID uuid.UUID)
}

// NewRegistry creates a session registry. Sessions that miss every heartbeat
// inside window are evicted by Run's sweep.
func NewRegistry(window time.Duration) *Registry {
	return &Registry{
		sessions:        make(map[uuid.UUID]*domain.Session),
		byBoard:         make(map[uuid.UUID]map[uuid.UUID]*domain.Session),
		heartbeatWindow: window,
	}
}

// OnPresence registers the callback invoked after every presence change.
// Must be set before any session subscribes.
func (r *Registry) OnPresence(fn func(domain.PresenceEvent)) { r.onPresence = fn }

// OnEvict registers the callback invoked when a session is evicted for
// missing heartbeats. Must be set before Run.
func (r *Registry) OnEvict(fn func(sessionID, boardID uuid.UUID)) { r.onEvict = fn }

// Subscribe registers a session on a board. Returns ErrAlreadySubscribed if
// the session id is already registered.
func (r *Registry) Subscribe(sessionID, boardID, userID uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("collab.Registry.Subscribe: session %s: %w", sessionID, domain.ErrAlreadySubscribed)
	}

	s := &domain.Session{
		ID:            sessionID,
		UserID:        userID,
		BoardID:       boardID,
		Presence:      domain.PresenceViewing,
		LastHeartbeat: time.Now(),
	}
	r.sessions[sessionID] = s

	board, ok := r.byBoard[boardID]
	if !ok {
		board = make(map[uuid.UUID]*domain.Session)
		r.byBoard[boardID] = board
	}
	board[sessionID] = s
	r.mu.Unlock()

	r.emitPresence(s)
	return s, nil
}

// Unsubscribe removes a session. Unknown session ids are a no-op: teardown
// is idempotent.
func (r *Registry) Unsubscribe(sessionID uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	if board, ok := r.byBoard[s.BoardID]; ok {
		delete(board, sessionID)
		if len(board) == 0 {
			delete(r.byBoard, s.BoardID)
		}
	}
	r.mu.Unlock()
}

// ListActiveSessions returns the sessions currently subscribed to a board.
func (r *Registry) ListActiveSessions(boardID uuid.UUID) []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	board := r.byBoard[boardID]
	out := make([]*domain.Session, 0, len(board))
	for _, s := range board {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

// IsSubscribed reports whether sessionID is subscribed to boardID.
func (r *Registry) IsSubscribed(sessionID, boardID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	return ok && s.BoardID == boardID
}

// Get returns a copy of the session, if registered.
func (r *Registry) Get(sessionID uuid.UUID) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// UpdatePresence sets a session's presence state and notifies subscribers.
func (r *Registry) UpdatePresence(sessionID uuid.UUID, state domain.PresenceState) error {
	if !state.Valid() {
		return fmt.Errorf("collab.Registry.UpdatePresence: invalid presence state %q", state)
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("collab.Registry.UpdatePresence: session %s: %w", sessionID, domain.ErrNotFound)
	}
	s.Presence = state
	s.LastHeartbeat = time.Now()
	copied := *s
	r.mu.Unlock()

	r.emitPresence(&copied)
	return nil
}

// Heartbeat records liveness for a session. Unknown sessions are ignored.
func (r *Registry) Heartbeat(sessionID uuid.UUID) {
	r.mu.Lock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastHeartbeat = time.Now()
	}
	r.mu.Unlock()
}

// Run sweeps for sessions that stopped heartbeating and evicts them. This is
// the registry's only time-based transition.
func (r *Registry) Run(ctx context.Context) {
	interval := r.heartbeatWindow / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	cutoff := now.Add(-r.heartbeatWindow)

	type evicted struct{ sessionID, boardID uuid.UUID }
	var stale []evicted

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastHeartbeat.Before(cutoff) {
			stale = append(stale, evicted{id, s.BoardID})
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		log.Info().
			Str("session_id", e.sessionID.String()).
			Str("board_id", e.boardID.String()).
			Msg("evicting session after heartbeat timeout")
		r.Unsubscribe(e.sessionID)
		if r.onEvict != nil {
			r.onEvict(e.sessionID, e.boardID)
		}
	}
}

func (r *Registry) emitPresence(s *domain.Session) {
	if r.onPresence == nil {
		return
	}
	r.onPresence(domain.PresenceEvent{
		BoardID:   s.BoardID,
		SessionID: s.ID,
		UserID:    s.UserID,
		State:     s.Presence,
	})
}
