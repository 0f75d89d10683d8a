package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/collab/textmerge"
	"github.com/sundayhq/boardsync/internal/domain"
)

// EngineConfig carries the collaboration tunables. Zero fields fall back to
// the documented defaults.
type EngineConfig struct {
	// HeartbeatWindow is how long a session may go without a heartbeat
	// before it is evicted.
	HeartbeatWindow time.Duration
	// ReconnectGrace is how long a disconnected session keeps its resync
	// bookkeeping before it expires.
	ReconnectGrace time.Duration
	// QueueBound caps each session's outbound queue and each board's replay
	// window.
	QueueBound int
	// InboxBound caps each board actor's pending request queue.
	InboxBound int
}

const (
	defaultHeartbeatWindow = 30 * time.Second
	defaultReconnectGrace  = 60 * time.Second
	defaultQueueBound      = 256
	defaultInboxBound      = 128
)

func (c *EngineConfig) applyDefaults() {
	if c.HeartbeatWindow <= 0 {
		c.HeartbeatWindow = defaultHeartbeatWindow
	}
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = defaultReconnectGrace
	}
	if c.QueueBound <= 0 {
		c.QueueBound = defaultQueueBound
	}
	if c.InboxBound <= 0 {
		c.InboxBound = defaultInboxBound
	}
}

// Engine is the collaboration core: it owns the session registry, the
// per-board actors that sequence and resolve mutations, the fan-out queues,
// and the resync bookkeeping. Each subscribed board gets one actor goroutine
// holding that board's state, so resolution is serial per board and parallel
// across boards.
type Engine struct {
	cfg EngineConfig

	registry *Registry
	fanout   *Fanout
	seq      *Sequencer
	resync   *ResyncManager
	resolver *Resolver

	states  domain.BoardStateRepository
	auth    Authorizer
	emitter Emitter

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	actors map[uuid.UUID]*boardActor
}

// NewEngine wires the collaboration core around its external collaborators:
// board state and marker persistence, the membership authorizer, the text
// merge engine, and the automation event emitter (which may be nil).
func NewEngine(
	cfg EngineConfig,
	states domain.BoardStateRepository,
	markers domain.MarkerRepository,
	auth Authorizer,
	merger textmerge.Merger,
	emitter Emitter,
) *Engine {
	cfg.applyDefaults()

	baseCtx, stop := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		registry: NewRegistry(cfg.HeartbeatWindow),
		fanout:   NewFanout(cfg.QueueBound),
		seq:      NewSequencer(markers),
		resync:   NewResyncManager(cfg.QueueBound, cfg.ReconnectGrace),
		resolver: NewResolver(merger, cfg.QueueBound),
		states:   states,
		auth:     auth,
		emitter:  emitter,
		baseCtx:  baseCtx,
		stop:     stop,
		actors:   make(map[uuid.UUID]*boardActor),
	}

	e.registry.OnPresence(func(ev domain.PresenceEvent) {
		e.fanout.Presence(ev)
		if e.emitter != nil {
			if err := e.emitter.PresenceChanged(e.baseCtx, ev); err != nil {
				log.Warn().Err(err).Str("board_id", ev.BoardID.String()).Msg("presence event emit failed")
			}
		}
	})
	e.registry.OnEvict(func(sessionID, boardID uuid.UUID) {
		e.fanout.Detach(sessionID)
		e.resync.Disconnect(sessionID)
		e.maybeEvictActor(boardID)
	})
	e.fanout.OnOverflow(func(sessionID, boardID uuid.UUID) {
		e.resync.ForceFull(sessionID)
		e.registry.Unsubscribe(sessionID)
		e.maybeEvictActor(boardID)
	})

	return e
}

// Run drives the heartbeat and grace-period sweeps until ctx is cancelled,
// then shuts down every board actor.
func (e *Engine) Run(ctx context.Context) {
	go e.registry.Run(ctx)
	go e.resync.Run(ctx)

	<-ctx.Done()
	e.stop()
}

// Connect authorizes the user on the board, subscribes the session, and
// returns its outbound event stream. The returned channel is closed when the
// session detaches for any reason, including a queue overflow drop.
func (e *Engine) Connect(ctx context.Context, sessionID, boardID, userID uuid.UUID) (<-chan domain.Event, error) {
	if err := e.auth.Authorize(ctx, userID, boardID, domain.BoardRoleViewer); err != nil {
		return nil, fmt.Errorf("collab.Engine.Connect: %w", err)
	}
	if _, err := e.readyActor(ctx, boardID); err != nil {
		return nil, fmt.Errorf("collab.Engine.Connect: %w", err)
	}

	if _, err := e.registry.Subscribe(sessionID, boardID, userID); err != nil {
		return nil, fmt.Errorf("collab.Engine.Connect: %w", err)
	}
	ch, err := e.fanout.Attach(sessionID, boardID)
	if err != nil {
		e.registry.Unsubscribe(sessionID)
		return nil, fmt.Errorf("collab.Engine.Connect: %w", err)
	}
	e.resync.Register(sessionID, boardID)
	return ch, nil
}

// Reconnect restores a session that dropped within its grace period. It
// returns the new event stream plus the exact updates missed since
// lastAckedSeq, or fullResync=true when the gap cannot be replayed (grace
// expired, overflow drop, or more updates missed than the window retains).
func (e *Engine) Reconnect(ctx context.Context, sessionID, boardID, userID uuid.UUID, lastAckedSeq uint64) (<-chan domain.Event, []*domain.ResolvedUpdate, bool, error) {
	if err := e.auth.Authorize(ctx, userID, boardID, domain.BoardRoleViewer); err != nil {
		return nil, nil, false, fmt.Errorf("collab.Engine.Reconnect: %w", err)
	}
	if _, err := e.readyActor(ctx, boardID); err != nil {
		return nil, nil, false, fmt.Errorf("collab.Engine.Reconnect: %w", err)
	}

	resumed := e.resync.Reconnect(sessionID)
	if !resumed {
		// Session is unknown or its grace lapsed; start over as a fresh
		// subscription and make the client fetch a snapshot.
		e.resync.Forget(sessionID)
		e.resync.Register(sessionID, boardID)
	}

	if _, err := e.registry.Subscribe(sessionID, boardID, userID); err != nil {
		return nil, nil, false, fmt.Errorf("collab.Engine.Reconnect: %w", err)
	}
	ch, err := e.fanout.Attach(sessionID, boardID)
	if err != nil {
		e.registry.Unsubscribe(sessionID)
		return nil, nil, false, fmt.Errorf("collab.Engine.Reconnect: %w", err)
	}

	if !resumed {
		return ch, nil, true, nil
	}
	updates, full := e.resync.Resync(sessionID, boardID, lastAckedSeq, e.seq.Current(boardID))
	return ch, updates, full, nil
}

// Disconnect detaches a session's stream but keeps its resync bookkeeping
// alive for the grace period so a reconnect can replay what it missed.
func (e *Engine) Disconnect(sessionID uuid.UUID) {
	s, ok := e.registry.Get(sessionID)
	e.registry.Unsubscribe(sessionID)
	e.fanout.Detach(sessionID)
	e.resync.Disconnect(sessionID)
	if ok {
		e.maybeEvictActor(s.BoardID)
	}
}

// Unsubscribe tears a session down completely. Idempotent.
func (e *Engine) Unsubscribe(sessionID uuid.UUID) {
	s, ok := e.registry.Get(sessionID)
	e.registry.Unsubscribe(sessionID)
	e.fanout.Detach(sessionID)
	e.resync.Forget(sessionID)
	if ok {
		e.maybeEvictActor(s.BoardID)
	}
}

// Submit runs a mutation through its board's actor and returns the assigned
// sequence number, or 0 when the mutation resolved to a no-op (the corrective
// notice arrives on the session's event stream). Cancelling ctx withdraws the
// mutation only while it is still waiting to be sequenced.
func (e *Engine) Submit(ctx context.Context, m *domain.PendingMutation) (uint64, error) {
	if !e.registry.IsSubscribed(m.SessionID, m.BoardID) {
		if e.resync.Overflowed(m.SessionID) {
			// The session was dropped for falling behind; it must resync
			// before it may write again.
			return 0, fmt.Errorf("collab.Engine.Submit: session %s: %w", m.SessionID, domain.ErrQueueOverflow)
		}
		return 0, fmt.Errorf("collab.Engine.Submit: session %s: %w", m.SessionID, domain.ErrNotFound)
	}
	if err := e.auth.Authorize(ctx, m.UserID, m.BoardID, domain.BoardRoleEditor); err != nil {
		return 0, fmt.Errorf("collab.Engine.Submit: %w", err)
	}

	a, err := e.readyActor(ctx, m.BoardID)
	if err != nil {
		return 0, fmt.Errorf("collab.Engine.Submit: %w", err)
	}

	req := &actorRequest{ctx: ctx, mut: m, reply: make(chan actorReply, 1)}
	select {
	case a.inbox <- req:
	case <-a.dead:
		return 0, fmt.Errorf("collab.Engine.Submit: board %s: %w", m.BoardID, domain.ErrBoardUnavailable)
	case <-ctx.Done():
		return 0, fmt.Errorf("collab.Engine.Submit: %w", ctx.Err())
	}

	select {
	case rep := <-req.reply:
		if rep.err != nil {
			return 0, fmt.Errorf("collab.Engine.Submit: %w", rep.err)
		}
		return rep.seq, nil
	case <-a.dead:
		return 0, fmt.Errorf("collab.Engine.Submit: board %s: %w", m.BoardID, domain.ErrBoardUnavailable)
	}
}

// Snapshot returns the board's current state and sequence number, consistent
// with each other because the actor answers between mutations.
func (e *Engine) Snapshot(ctx context.Context, boardID uuid.UUID) (*domain.BoardSnapshot, error) {
	a, err := e.readyActor(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("collab.Engine.Snapshot: %w", err)
	}

	req := &actorRequest{ctx: ctx, reply: make(chan actorReply, 1)}
	select {
	case a.inbox <- req:
	case <-a.dead:
		return nil, fmt.Errorf("collab.Engine.Snapshot: board %s: %w", boardID, domain.ErrBoardUnavailable)
	case <-ctx.Done():
		return nil, fmt.Errorf("collab.Engine.Snapshot: %w", ctx.Err())
	}

	select {
	case rep := <-req.reply:
		if rep.err != nil {
			return nil, fmt.Errorf("collab.Engine.Snapshot: %w", rep.err)
		}
		return &domain.BoardSnapshot{BoardID: boardID, Seq: rep.seq, Items: rep.items}, nil
	case <-a.dead:
		return nil, fmt.Errorf("collab.Engine.Snapshot: board %s: %w", boardID, domain.ErrBoardUnavailable)
	}
}

// Resync computes the replay for a connected session, without touching its
// stream. Used by the explicit resync endpoint.
func (e *Engine) Resync(sessionID, boardID uuid.UUID, lastAckedSeq uint64) ([]*domain.ResolvedUpdate, bool) {
	return e.resync.Resync(sessionID, boardID, lastAckedSeq, e.seq.Current(boardID))
}

// Ack records the highest sequence number a session has applied. An ack also
// counts as liveness.
func (e *Engine) Ack(sessionID uuid.UUID, seq uint64) {
	e.resync.Ack(sessionID, seq)
	e.registry.Heartbeat(sessionID)
}

// Heartbeat records liveness for a session.
func (e *Engine) Heartbeat(sessionID uuid.UUID) {
	e.registry.Heartbeat(sessionID)
}

// SetPresence updates a session's presence state and fans the change out to
// the board's other sessions.
func (e *Engine) SetPresence(sessionID uuid.UUID, state domain.PresenceState) error {
	if err := e.registry.UpdatePresence(sessionID, state); err != nil {
		return fmt.Errorf("collab.Engine.SetPresence: %w", err)
	}
	return nil
}

// Presence lists the sessions currently subscribed to a board, each carrying
// the highest sequence number it has acknowledged.
func (e *Engine) Presence(boardID uuid.UUID) []*domain.Session {
	sessions := e.registry.ListActiveSessions(boardID)
	for _, s := range sessions {
		s.LastAckedSeq = e.resync.LastAcked(s.ID)
	}
	return sessions
}

// Authorize exposes the membership check to transport handlers.
func (e *Engine) Authorize(ctx context.Context, userID, boardID uuid.UUID, need domain.BoardRole) error {
	return e.auth.Authorize(ctx, userID, boardID, need)
}

// readyActor returns the board's actor, starting one if needed, and waits for
// its state load to finish.
func (e *Engine) readyActor(ctx context.Context, boardID uuid.UUID) (*boardActor, error) {
	e.mu.Lock()
	a, ok := e.actors[boardID]
	if !ok {
		actorCtx, cancel := context.WithCancel(e.baseCtx)
		a = &boardActor{
			boardID:  boardID,
			inbox:    make(chan *actorRequest, e.cfg.InboxBound),
			dead:     make(chan struct{}),
			initDone: make(chan struct{}),
			cancel:   cancel,
		}
		e.actors[boardID] = a
		go a.run(e, actorCtx)
	}
	e.mu.Unlock()

	select {
	case <-a.initDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.initErr != nil {
		return nil, fmt.Errorf("board %s: %w", boardID, domain.ErrBoardUnavailable)
	}
	return a, nil
}

// maybeEvictActor stops a board's actor once nothing references the board
// anymore: no subscribed session and no disconnected session inside its grace
// period. The replay window goes with it; the persisted marker is what a
// later actor reseeds from.
func (e *Engine) maybeEvictActor(boardID uuid.UUID) {
	if len(e.registry.ListActiveSessions(boardID)) > 0 || !e.resync.BoardIdle(boardID) {
		return
	}

	e.mu.Lock()
	a, ok := e.actors[boardID]
	if ok {
		delete(e.actors, boardID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	a.cancel()
	e.seq.Release(boardID)
	e.resync.DropBoard(boardID)
	log.Info().Str("board_id", boardID.String()).Msg("board actor evicted")
}

// removeActor drops a retired actor from the table if it is still the one
// registered for its board.
func (e *Engine) removeActor(a *boardActor) {
	e.mu.Lock()
	if cur, ok := e.actors[a.boardID]; ok && cur == a {
		delete(e.actors, a.boardID)
	}
	e.mu.Unlock()
}

// actorRequest is one message on a board actor's inbox: a mutation when mut
// is set, otherwise a snapshot read.
type actorRequest struct {
	ctx   context.Context
	mut   *domain.PendingMutation
	reply chan actorReply
}

type actorReply struct {
	seq   uint64
	items []*domain.Item
	err   error
}

// boardActor owns one board's state and sequencing. All access to its
// boardState happens on its goroutine.
type boardActor struct {
	boardID uuid.UUID
	inbox   chan *actorRequest
	cancel  context.CancelFunc

	dead     chan struct{}
	deadOnce sync.Once

	initDone chan struct{}
	initErr  error

	state *boardState
}

func (a *boardActor) run(e *Engine, ctx context.Context) {
	if err := a.init(e, ctx); err != nil {
		a.initErr = err
		close(a.initDone)
		a.retire(e)
		return
	}
	close(a.initDone)

	for {
		select {
		case <-ctx.Done():
			a.retire(e)
			return
		case req := <-a.inbox:
			if !a.handle(e, ctx, req) {
				a.retire(e)
				return
			}
		}
	}
}

// init loads the board's current state and seeds the sequence counter from
// the latest persisted marker.
func (a *boardActor) init(e *Engine, ctx context.Context) error {
	items, err := e.states.LoadCurrentState(ctx, a.boardID)
	if err != nil {
		log.Error().Err(err).Str("board_id", a.boardID.String()).Msg("board state load failed")
		return err
	}
	seeded, err := e.seq.Seed(ctx, a.boardID)
	if err != nil {
		log.Error().Err(err).Str("board_id", a.boardID.String()).Msg("sequence seed failed")
		return err
	}

	a.state = newBoardState(a.boardID, items)
	log.Info().
		Str("board_id", a.boardID.String()).
		Int("items", len(items)).
		Uint64("seq", seeded).
		Msg("board actor started")
	return nil
}

// handle processes one request. It reports false when the actor must retire,
// which happens only on a resolution panic: the in-memory state is then
// suspect and the next actor rebuilds from persistence.
func (a *boardActor) handle(e *Engine, ctx context.Context, req *actorRequest) (ok bool) {
	ok = true
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("board_id", a.boardID.String()).
				Msg("board actor panicked, retiring")
			req.reply <- actorReply{err: fmt.Errorf("collab: board %s: %w", a.boardID, domain.ErrBoardUnavailable)}
			ok = false
		}
	}()

	if req.mut == nil {
		req.reply <- actorReply{seq: e.seq.Current(a.boardID), items: a.state.snapshot()}
		return true
	}

	// A mutation cancelled before this point was never sequenced; honor the
	// withdrawal. Once sequencing starts the mutation always completes.
	if err := req.ctx.Err(); err != nil {
		req.reply <- actorReply{err: err}
		return true
	}

	res := e.resolver.Resolve(a.state, req.mut, func() uint64 { return e.seq.Next(a.boardID) })

	if res.update != nil {
		e.seq.Record(ctx, a.boardID, res.update.Seq, summary(res.update))
		e.resync.Record(res.update)
		e.fanout.Publish(res.update)
		if e.emitter != nil {
			if err := e.emitter.MutationApplied(ctx, res.update); err != nil {
				log.Warn().Err(err).Str("board_id", a.boardID.String()).Msg("mutation event emit failed")
			}
		}
	}
	if res.supersededNotice != nil {
		e.fanout.Notify(res.supersededSession, res.supersededNotice)
	}
	if res.originNotice != nil {
		e.fanout.Notify(req.mut.SessionID, res.originNotice)
	}

	var seq uint64
	if res.update != nil {
		seq = res.update.Seq
	}
	req.reply <- actorReply{seq: seq}
	return true
}

// retire marks the actor dead, removes it from the engine, and fails every
// request still queued in its inbox.
func (a *boardActor) retire(e *Engine) {
	a.deadOnce.Do(func() { close(a.dead) })
	e.removeActor(a)

	for {
		select {
		case req := <-a.inbox:
			req.reply <- actorReply{err: fmt.Errorf("collab: board %s: %w", a.boardID, domain.ErrBoardUnavailable)}
		default:
			return
		}
	}
}
