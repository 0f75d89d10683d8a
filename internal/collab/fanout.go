package collab

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/domain"
)

// Fanout delivers resolved updates, notices, and presence changes to each
// subscribed session's outbound queue. Queues are bounded: a session that
// falls more than the bound behind is dropped and flagged for a full resync
// instead of buffering without limit.
type Fanout struct {
	mu      sync.Mutex
	streams map[uuid.UUID]*stream
	byBoard map[uuid.UUID]map[uuid.UUID]*stream

	bound      int
	onOverflow func(sessionID, boardID uuid.UUID)
}

// stream is one session's outbound queue. Sends and the close both happen
// under the stream's own mutex: a detach can land between two broadcasts, and
// an unguarded close would panic the sender mid-broadcast. The consumer treats
// closure as "connection over".
type stream struct {
	sessionID uuid.UUID
	boardID   uuid.UUID

	mu     sync.Mutex
	ch     chan domain.Event
	closed bool
}

// trySend enqueues without blocking. It reports false only on a full queue;
// a send to an already closed stream is a delivered no-op, the session is
// gone and owes nothing.
func (s *stream) trySend(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *stream) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

// NewFanout creates a fan-out with the given per-session queue bound.
func NewFanout(bound int) *Fanout {
	return &Fanout{
		streams: make(map[uuid.UUID]*stream),
		byBoard: make(map[uuid.UUID]map[uuid.UUID]*stream),
		bound:   bound,
	}
}

// OnOverflow registers the callback invoked when a session is dropped for
// exceeding its queue bound. Must be set before any session attaches.
func (f *Fanout) OnOverflow(fn func(sessionID, boardID uuid.UUID)) { f.onOverflow = fn }

// Attach creates the outbound queue for a session. The returned channel is
// closed when the session detaches or overflows.
func (f *Fanout) Attach(sessionID, boardID uuid.UUID) (<-chan domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.streams[sessionID]; ok {
		return nil, fmt.Errorf("collab.Fanout.Attach: session %s: %w", sessionID, domain.ErrAlreadySubscribed)
	}

	st := &stream{
		sessionID: sessionID,
		boardID:   boardID,
		ch:        make(chan domain.Event, f.bound),
	}
	f.streams[sessionID] = st

	board, ok := f.byBoard[boardID]
	if !ok {
		board = make(map[uuid.UUID]*stream)
		f.byBoard[boardID] = board
	}
	board[sessionID] = st

	return st.ch, nil
}

// Detach removes and closes a session's queue. Idempotent.
func (f *Fanout) Detach(sessionID uuid.UUID) {
	f.detach(sessionID)
}

// detach reports whether this call actually removed the session, so the
// overflow path fires its callback exactly once even when broadcasts race.
func (f *Fanout) detach(sessionID uuid.UUID) bool {
	f.mu.Lock()
	st, ok := f.streams[sessionID]
	if ok {
		delete(f.streams, sessionID)
		if board, bok := f.byBoard[st.boardID]; bok {
			delete(board, sessionID)
			if len(board) == 0 {
				delete(f.byBoard, st.boardID)
			}
		}
	}
	f.mu.Unlock()

	if ok {
		st.close()
	}
	return ok
}

// Publish queues a resolved update for every session on the update's board
// except the originator. Called only from the board's actor goroutine, which
// is what guarantees per-session delivery follows board sequence order.
func (f *Fanout) Publish(u *domain.ResolvedUpdate) {
	ev := domain.Event{Kind: domain.EventUpdate, Update: u}
	f.broadcast(u.BoardID, u.OriginSession, ev)
}

// Presence queues a presence change for every board session except the one
// whose presence changed.
func (f *Fanout) Presence(ev domain.PresenceEvent) {
	f.broadcast(ev.BoardID, ev.SessionID, domain.Event{Kind: domain.EventPresence, Presence: &ev})
}

// Notify queues a corrective notice for a single session.
func (f *Fanout) Notify(sessionID uuid.UUID, n *domain.Notice) {
	f.mu.Lock()
	st, ok := f.streams[sessionID]
	f.mu.Unlock()
	if !ok {
		return
	}
	f.send(st, domain.Event{Kind: domain.EventNotice, Notice: n})
}

func (f *Fanout) broadcast(boardID, exclude uuid.UUID, ev domain.Event) {
	f.mu.Lock()
	board := f.byBoard[boardID]
	targets := make([]*stream, 0, len(board))
	for id, st := range board {
		if id == exclude {
			continue
		}
		targets = append(targets, st)
	}
	f.mu.Unlock()

	for _, st := range targets {
		f.send(st, ev)
	}
}

// send enqueues without blocking. A full queue means the session is too far
// behind to ever catch up within bounds, so it is dropped and must resync.
func (f *Fanout) send(st *stream, ev domain.Event) {
	if st.trySend(ev) {
		return
	}

	log.Warn().
		Str("session_id", st.sessionID.String()).
		Str("board_id", st.boardID.String()).
		Int("bound", f.bound).
		Msg("outbound queue overflow, dropping session")
	if f.detach(st.sessionID) && f.onOverflow != nil {
		f.onOverflow(st.sessionID, st.boardID)
	}
}
