package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sundayhq/boardsync/internal/collab"
	"github.com/sundayhq/boardsync/internal/domain"
	"github.com/sundayhq/boardsync/internal/server/middleware"
)

// Hub terminates board WebSocket connections and bridges them to the
// collaboration engine.
type Hub struct {
	engine *collab.Engine

	// mutationsPerSecond/mutationBurst bound how fast one connection can
	// submit mutations.
	mutationsPerSecond float64
	mutationBurst      int
}

// NewHub creates a WebSocket hub over the collaboration engine.
func NewHub(engine *collab.Engine, mutationsPerSecond float64, mutationBurst int) *Hub {
	return &Hub{
		engine:             engine,
		mutationsPerSecond: mutationsPerSecond,
		mutationBurst:      mutationBurst,
	}
}

// boardConn is the per-connection state shared between the read loop and the
// mutation goroutines it spawns.
type boardConn struct {
	sessionID uuid.UUID
	userID    uuid.UUID
	boardID   uuid.UUID
	conn      *websocket.Conn

	// writeMu serialises writes; coder/websocket allows one writer at a time.
	writeMu sync.Mutex

	// inflight holds cancel funcs for mutations awaiting sequencing, keyed by
	// the client's mutation id.
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// ServeBoard handles a board subscription connection. The client subscribes
// by connecting; an optional session_id plus last_acked_seq query pair turns
// the connect into a reconnect with replay.
func (h *Hub) ServeBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	boardID, err := uuid.Parse(chi.URLParam(r, "boardID"))
	if err != nil {
		http.Error(w, "invalid board id", http.StatusBadRequest)
		return
	}

	sessionID := uuid.New()
	reconnect := false
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		sessionID, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		reconnect = true
	}
	var lastAcked uint64
	if raw := r.URL.Query().Get("last_acked_seq"); raw != "" {
		lastAcked, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid last_acked_seq", http.StatusBadRequest)
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	bc := &boardConn{
		sessionID: sessionID,
		userID:    userID,
		boardID:   boardID,
		conn:      conn,
		inflight:  make(map[string]context.CancelFunc),
	}

	var (
		events  <-chan domain.Event
		replay  []*domain.ResolvedUpdate
		full    bool
		connErr error
	)
	if reconnect {
		events, replay, full, connErr = h.engine.Reconnect(ctx, sessionID, boardID, userID, lastAcked)
	} else {
		events, connErr = h.engine.Connect(ctx, sessionID, boardID, userID)
	}
	if connErr != nil {
		status := websocket.StatusInternalError
		if errors.Is(connErr, domain.ErrUnauthorized) {
			status = websocket.StatusPolicyViolation
		}
		log.Debug().Err(connErr).Str("board_id", boardID.String()).Msg("board subscribe rejected")
		_ = conn.Close(status, "subscribe failed")
		return
	}

	bc.send(ctx, &serverFrame{Type: frameSubscribed, SessionID: sessionID})
	if reconnect {
		if full {
			bc.send(ctx, &serverFrame{Type: frameResyncRequired})
		} else if len(replay) > 0 {
			bc.send(ctx, &serverFrame{Type: frameReplay, Updates: replay})
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		bc.writeEvents(ctx, events)
	}()

	h.readLoop(ctx, bc)

	// The read loop exited: the client went away. Keep the session's resync
	// bookkeeping alive for the grace period.
	h.engine.Disconnect(sessionID)
	bc.cancelAll()
	<-writerDone
}

// writeEvents drains the session's event stream onto the socket. A closed
// stream while the socket is still up means the engine dropped the session
// (queue overflow); the client is told to resync before the socket closes.
func (bc *boardConn) writeEvents(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				bc.send(ctx, &serverFrame{Type: frameResyncRequired})
				_ = bc.conn.Close(websocket.StatusTryAgainLater, "session dropped")
				return
			}
			frame := &serverFrame{}
			switch ev.Kind {
			case domain.EventUpdate:
				frame.Type = frameUpdate
				frame.Update = ev.Update
				frame.Seq = ev.Update.Seq
			case domain.EventPresence:
				frame.Type = framePresence
				frame.Presence = ev.Presence
			case domain.EventNotice:
				frame.Type = frameNotice
				frame.Notice = ev.Notice
			default:
				continue
			}
			bc.send(ctx, frame)
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, bc *boardConn) {
	limiter := rate.NewLimiter(rate.Limit(h.mutationsPerSecond), h.mutationBurst)

	for {
		_, data, err := bc.conn.Read(ctx)
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug().Err(err).Str("session_id", bc.sessionID.String()).Msg("malformed frame")
			continue
		}

		switch frame.Type {
		case frameMutate:
			if !limiter.Allow() {
				bc.send(ctx, &serverFrame{Type: frameRejected, MutationID: frame.MutationID, Error: "rate limit exceeded"})
				continue
			}
			h.submit(ctx, bc, &frame)
		case frameCancel:
			bc.cancel(frame.MutationID)
		case frameAck:
			h.engine.Ack(bc.sessionID, frame.Seq)
		case frameHeartbeat:
			h.engine.Heartbeat(bc.sessionID)
		case framePresence:
			if err := h.engine.SetPresence(bc.sessionID, frame.Presence); err != nil {
				bc.send(ctx, &serverFrame{Type: frameRejected, Error: "invalid presence state"})
			}
		case frameResync:
			updates, full := h.engine.Resync(bc.sessionID, bc.boardID, frame.Seq)
			if full {
				bc.send(ctx, &serverFrame{Type: frameResyncRequired})
			} else {
				bc.send(ctx, &serverFrame{Type: frameReplay, Updates: updates})
			}
		case frameUnsubscribe:
			h.engine.Unsubscribe(bc.sessionID)
			_ = bc.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
			return
		default:
			log.Debug().Str("type", frame.Type).Msg("unknown frame type")
		}
	}
}

// submit runs the mutation on its own goroutine so a slow board does not
// stall the read loop, and so a later cancel frame can withdraw it while it
// waits to be sequenced.
func (h *Hub) submit(ctx context.Context, bc *boardConn, frame *clientFrame) {
	mutCtx, cancel := context.WithCancel(ctx)
	bc.track(frame.MutationID, cancel)

	m := &domain.PendingMutation{
		SessionID:   bc.sessionID,
		UserID:      bc.userID,
		BoardID:     bc.boardID,
		ItemID:      frame.ItemID,
		Field:       frame.Field,
		Value:       frame.Value,
		TextOps:     frame.TextOps,
		ClientClock: frame.ClientClock,
		BaseSeq:     frame.BaseSeq,
	}

	go func() {
		defer bc.untrack(frame.MutationID)

		seq, err := h.engine.Submit(mutCtx, m)
		if err != nil {
			bc.send(ctx, &serverFrame{Type: frameRejected, MutationID: frame.MutationID, Error: rejectionReason(err)})
			return
		}
		bc.send(ctx, &serverFrame{Type: frameApplied, MutationID: frame.MutationID, Seq: seq})
	}()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrQueueOverflow):
		return "queue overflow, resync required"
	case errors.Is(err, domain.ErrBoardUnavailable):
		return "board unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return "not subscribed"
	default:
		return "internal error"
	}
}

func (bc *boardConn) send(ctx context.Context, frame *serverFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("frame marshal")
		return
	}

	bc.writeMu.Lock()
	defer bc.writeMu.Unlock()
	if err := bc.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		log.Debug().Err(err).Str("session_id", bc.sessionID.String()).Msg("websocket write")
	}
}

func (bc *boardConn) track(mutationID string, cancel context.CancelFunc) {
	bc.mu.Lock()
	bc.inflight[mutationID] = cancel
	bc.mu.Unlock()
}

func (bc *boardConn) untrack(mutationID string) {
	bc.mu.Lock()
	if cancel, ok := bc.inflight[mutationID]; ok {
		delete(bc.inflight, mutationID)
		cancel()
	}
	bc.mu.Unlock()
}

func (bc *boardConn) cancel(mutationID string) {
	bc.mu.Lock()
	cancel, ok := bc.inflight[mutationID]
	bc.mu.Unlock()
	if ok {
		cancel()
	}
}

func (bc *boardConn) cancelAll() {
	bc.mu.Lock()
	for id, cancel := range bc.inflight {
		delete(bc.inflight, id)
		cancel()
	}
	bc.mu.Unlock()
}
