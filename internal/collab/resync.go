package collab

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/domain"
)

// ResyncManager tracks each session's reconnection lifecycle and retains a
// bounded window of recent updates per board so reconnecting clients can be
// replayed exactly what they missed. Gaps larger than the window always
// surface as "full resync required", never as a truncated list.
type ResyncManager struct {
	mu       sync.Mutex
	boards   map[uuid.UUID]*updateWindow
	sessions map[uuid.UUID]*sessionSync

	bound int
	grace time.Duration
}

// sessionSync is the reconnect bookkeeping for one session.
type sessionSync struct {
	boardID        uuid.UUID
	state          domain.ConnState
	lastAckedSeq   uint64
	forceFull      bool
	disconnectedAt time.Time
}

// updateWindow is a bounded, seq-ordered window of the most recent resolved
// updates on one board. Appends come only from the board's actor goroutine,
// so entries are strictly increasing in seq.
type updateWindow struct {
	updates []*domain.ResolvedUpdate
	bound   int
}

func (w *updateWindow) append(u *domain.ResolvedUpdate) {
	w.updates = append(w.updates, u)
	if len(w.updates) > w.bound {
		w.updates = w.updates[len(w.updates)-w.bound:]
	}
}

// since returns all retained updates with seq > after, and whether the window
// actually covers that gap (it does not if after precedes the oldest entry).
func (w *updateWindow) since(after uint64) ([]*domain.ResolvedUpdate, bool) {
	if len(w.updates) == 0 {
		return nil, true
	}
	if after+1 < w.updates[0].Seq {
		return nil, false
	}
	var out []*domain.ResolvedUpdate
	for _, u := range w.updates {
		if u.Seq > after {
			out = append(out, u)
		}
	}
	return out, true
}

// NewResyncManager creates a resync manager retaining up to bound updates per
// board, with the given disconnect grace period.
func NewResyncManager(bound int, grace time.Duration) *ResyncManager {
	return &ResyncManager{
		boards:   make(map[uuid.UUID]*updateWindow),
		sessions: make(map[uuid.UUID]*sessionSync),
		bound:    bound,
		grace:    grace,
	}
}

// Register begins tracking a newly connected session.
func (m *ResyncManager) Register(sessionID, boardID uuid.UUID) {
	m.mu.Lock()
	m.sessions[sessionID] = &sessionSync{boardID: boardID, state: domain.ConnConnected}
	m.mu.Unlock()
}

// Forget stops tracking a session entirely (explicit unsubscribe).
func (m *ResyncManager) Forget(sessionID uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Ack records the highest sequence number a session has acknowledged.
func (m *ResyncManager) Ack(sessionID uuid.UUID, seq uint64) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok && seq > s.lastAckedSeq {
		s.lastAckedSeq = seq
	}
	m.mu.Unlock()
}

// LastAcked returns the highest sequence number the session has acknowledged,
// or zero for an unknown session.
func (m *ResyncManager) LastAcked(sessionID uuid.UUID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s.lastAckedSeq
	}
	return 0
}

// Record retains a resolved update in its board's replay window. Called from
// the board actor after the update is applied.
func (m *ResyncManager) Record(u *domain.ResolvedUpdate) {
	m.mu.Lock()
	w, ok := m.boards[u.BoardID]
	if !ok {
		w = &updateWindow{bound: m.bound}
		m.boards[u.BoardID] = w
	}
	w.append(u)
	m.mu.Unlock()
}

// Disconnect moves a session into its grace period. Buffered updates stay
// replayable until the grace expires.
func (m *ResyncManager) Disconnect(sessionID uuid.UUID) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok && s.state.ValidTransition(domain.ConnDisconnected) {
		s.state = domain.ConnDisconnected
		s.disconnectedAt = time.Now()
	}
	m.mu.Unlock()
}

// ForceFull flags a session so its next resync is a full one, regardless of
// gap size. Used after a queue overflow drop.
func (m *ResyncManager) ForceFull(sessionID uuid.UUID) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		s.forceFull = true
		if s.state.ValidTransition(domain.ConnDisconnected) {
			s.state = domain.ConnDisconnected
			s.disconnectedAt = time.Now()
		}
	}
	m.mu.Unlock()
}

// Overflowed reports whether the session was dropped for queue overflow and
// has not yet settled the debt with a full resync.
func (m *ResyncManager) Overflowed(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	return ok && s.forceFull
}

// Reconnect moves a disconnected session back to connected if its grace
// period has not expired. Reports whether the reconnect was accepted;
// expired or unknown sessions must re-subscribe from scratch.
func (m *ResyncManager) Reconnect(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.state.ValidTransition(domain.ConnConnected) {
		return false
	}
	if time.Since(s.disconnectedAt) > m.grace {
		s.state = domain.ConnExpired
		return false
	}
	s.state = domain.ConnConnected
	return true
}

// Resync computes the replay for a session that missed updates after
// lastAckedSeq, where currentSeq is the board's latest issued sequence. It
// returns the exact ordered missed updates, or fullRequired=true when the
// retained window cannot cover the gap, the session was overflow-flagged, or
// its grace period expired.
func (m *ResyncManager) Resync(sessionID, boardID uuid.UUID, lastAckedSeq, currentSeq uint64) ([]*domain.ResolvedUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.boardID != boardID || s.state == domain.ConnExpired {
		return nil, true
	}
	if s.forceFull {
		// One full resync settles the debt from the overflow drop.
		s.forceFull = false
		return nil, true
	}

	if lastAckedSeq >= currentSeq {
		return nil, false
	}

	w, ok := m.boards[boardID]
	if !ok {
		// The board advanced but its replay window is gone (actor evicted
		// and rebuilt); the gap is unverifiable, so force a full resync.
		return nil, true
	}

	updates, covered := w.since(lastAckedSeq)
	if !covered {
		return nil, true
	}
	if len(updates) > 0 && updates[len(updates)-1].Seq < currentSeq {
		// The window tail does not reach the board head; refuse to return a
		// silently truncated list.
		return nil, true
	}
	if len(updates) == 0 {
		return nil, true
	}
	if lastAckedSeq > s.lastAckedSeq {
		s.lastAckedSeq = lastAckedSeq
	}
	return updates, false
}

// BoardIdle reports whether no live session (connected or inside its grace
// period) still references the board.
func (m *ResyncManager) BoardIdle(boardID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.boardID == boardID && s.state != domain.ConnExpired {
			return false
		}
	}
	return true
}

// DropBoard discards a board's replay window once its actor is evicted.
func (m *ResyncManager) DropBoard(boardID uuid.UUID) {
	m.mu.Lock()
	delete(m.boards, boardID)
	m.mu.Unlock()
}

// Run expires sessions whose disconnect grace has lapsed.
func (m *ResyncManager) Run(ctx context.Context) {
	interval := m.grace / 4
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
			m.sweep(time.Now())
		}
	}
}

func (m *ResyncManager) sweep(now time.Time) {
	cutoff := now.Add(-m.grace)

	m.mu.Lock()
	for id, s := range m.sessions {
		switch {
		case s.state == domain.ConnExpired:
			// Held for one sweep interval so a late reconnect attempt gets a
			// definitive answer, then dropped.
			delete(m.sessions, id)
		case s.state.ValidTransition(domain.ConnExpired) && s.disconnectedAt.Before(cutoff):
			s.state = domain.ConnExpired
			log.Debug().Str("session_id", id.String()).Msg("session grace period expired")
		}
	}
	m.mu.Unlock()
}
