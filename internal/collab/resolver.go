package collab

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/collab/fracindex"
	"github.com/sundayhq/boardsync/internal/collab/textmerge"
	"github.com/sundayhq/boardsync/internal/domain"
)

// Resolver decides the merged outcome of a mutation against current field
// state: last-writer-wins for scalars, deterministic tie-break for fractional
// position keys, and transform-merge for free text. It runs only inside a
// board's actor goroutine.
type Resolver struct {
	merger       textmerge.Merger
	historyBound int
}

// NewResolver creates a resolver using the given text merge engine and text
// history bound.
func NewResolver(merger textmerge.Merger, historyBound int) *Resolver {
	return &Resolver{merger: merger, historyBound: historyBound}
}

// resolution is the outcome of resolving one mutation.
type resolution struct {
	// update is nil when the mutation resolved to a no-op.
	update *domain.ResolvedUpdate
	// originNotice, when set, corrects the originating session.
	originNotice *domain.Notice
	// supersededSession/supersededNotice, when set, correct the previous
	// writer whose concurrent value just lost last-writer-wins.
	supersededSession uuid.UUID
	supersededNotice  *domain.Notice
}

// Resolve merges m into st. next issues the board sequence number and is
// called only if the mutation actually applies: no-ops never consume a
// sequence number, which is also what lets a pre-sequencing cancellation
// remain side-effect free.
func (r *Resolver) Resolve(st *boardState, m *domain.PendingMutation, next func() uint64) resolution {
	if !m.Field.Known() {
		return staleResolution(m, 0)
	}

	item, ok := st.items[m.ItemID]
	if !ok {
		// First write wins the item into existence, whichever field it
		// targets. Item deletion lives outside this engine, so an unknown id
		// is a fresh insert, not a write against a removed item.
		item = &itemState{fields: make(map[domain.Field]*fieldState)}
		st.items[m.ItemID] = item
	}

	switch m.Field.Kind() {
	case domain.KindPosition:
		return r.resolvePosition(st, item, m, next)
	case domain.KindText:
		return r.resolveText(item, m, next)
	default:
		return r.resolveScalar(item, m, next)
	}
}

// resolveScalar applies last-writer-wins. Sequencing order decides the
// winner; when the mutation's author had not seen the value it overwrites,
// the previous writer is told its value was superseded.
func (r *Resolver) resolveScalar(item *itemState, m *domain.PendingMutation, next func() uint64) resolution {
	fs, ok := item.fields[m.Field]
	if !ok {
		fs = &fieldState{}
		item.fields[m.Field] = fs
	}

	seq := next()
	res := resolution{}

	// Concurrent overwrite: the previous value was written after the point
	// this mutation was based on, so its author just lost the race.
	if fs.lastWriterSet && fs.seq > m.BaseSeq && fs.lastWriter != m.SessionID {
		res.supersededSession = fs.lastWriter
		res.supersededNotice = &domain.Notice{
			Kind:   domain.NoticeSuperseded,
			ItemID: m.ItemID,
			Field:  m.Field,
			Seq:    seq,
			Value:  m.Value,
		}
	}

	fs.value = m.Value
	fs.seq = seq
	fs.clock = m.ClientClock
	fs.lastWriter = m.SessionID
	fs.lastWriterSet = true

	res.update = &domain.ResolvedUpdate{
		BoardID:       m.BoardID,
		ItemID:        m.ItemID,
		Field:         m.Field,
		Value:         m.Value,
		Seq:           seq,
		OriginSession: m.SessionID,
	}
	return res
}

// resolvePosition validates the proposed fractional key and, when it collides
// with a key already on the board, derives a deterministic replacement
// ordered by (sequence, session id).
func (r *Resolver) resolvePosition(st *boardState, item *itemState, m *domain.PendingMutation, next func() uint64) resolution {
	if err := fracindex.Validate(m.Value); err != nil {
		log.Debug().Err(err).Str("item_id", m.ItemID.String()).Msg("rejecting invalid position key")
		return staleResolution(m, 0)
	}

	fs, ok := item.fields[domain.FieldPosition]
	if !ok {
		fs = &fieldState{}
		item.fields[domain.FieldPosition] = fs
	}

	seq := next()
	key := m.Value
	if fs.value != key && st.positionTaken(key) {
		key = fracindex.Tiebreak(key, seq, m.SessionID)
	}

	fs.value = key
	fs.seq = seq
	fs.clock = m.ClientClock
	fs.lastWriter = m.SessionID
	fs.lastWriterSet = true

	return resolution{update: &domain.ResolvedUpdate{
		BoardID:       m.BoardID,
		ItemID:        m.ItemID,
		Field:         domain.FieldPosition,
		Value:         key,
		Seq:           seq,
		OriginSession: m.SessionID,
	}}
}

// resolveText transforms the incoming edit across every edit sequenced after
// the client's base revision, then applies it. This is the one field kind
// where the merged result can differ from both inputs.
func (r *Resolver) resolveText(item *itemState, m *domain.PendingMutation, next func() uint64) resolution {
	fs, ok := item.fields[m.Field]
	if !ok {
		fs = &fieldState{}
		item.fields[m.Field] = fs
	}

	base, concurrent, covered := fs.textSince(m.BaseSeq)
	if !covered {
		// The client's base revision predates the retained history; it must
		// refetch the field before editing again.
		return staleResolution(m, fs.seq)
	}

	merged, rebased, err := r.merger.Merge(base, concurrent, m.TextOps)
	if err != nil {
		log.Debug().Err(err).
			Str("item_id", m.ItemID.String()).
			Str("field", string(m.Field)).
			Msg("text merge rejected")
		return staleResolution(m, fs.seq)
	}

	seq := next()
	fs.history = append(fs.history, textRevision{seq: seq, ops: rebased, before: fs.value})
	if len(fs.history) > r.historyBound {
		drop := len(fs.history) - r.historyBound
		fs.trimmedThrough = fs.history[drop-1].seq
		fs.history = fs.history[drop:]
	}

	fs.value = merged
	fs.seq = seq
	fs.clock = m.ClientClock
	fs.lastWriter = m.SessionID
	fs.lastWriterSet = true

	return resolution{update: &domain.ResolvedUpdate{
		BoardID:       m.BoardID,
		ItemID:        m.ItemID,
		Field:         m.Field,
		Value:         merged,
		Seq:           seq,
		OriginSession: m.SessionID,
	}}
}

// textSince recovers the text as of baseSeq plus the ops applied after it,
// oldest first. covered is false when baseSeq predates the retained history.
func (fs *fieldState) textSince(baseSeq uint64) (base string, concurrent [][]domain.TextOp, covered bool) {
	if baseSeq >= fs.seq {
		return fs.value, nil, true
	}
	if baseSeq < fs.trimmedThrough {
		return "", nil, false
	}

	idx := len(fs.history)
	for i, rev := range fs.history {
		if rev.seq > baseSeq {
			idx = i
			break
		}
	}
	if idx == len(fs.history) {
		return "", nil, false
	}

	ops := make([][]domain.TextOp, 0, len(fs.history)-idx)
	for _, rev := range fs.history[idx:] {
		ops = append(ops, rev.ops)
	}
	return fs.history[idx].before, ops, true
}

func staleResolution(m *domain.PendingMutation, curSeq uint64) resolution {
	return resolution{originNotice: &domain.Notice{
		Kind:   domain.NoticeStale,
		ItemID: m.ItemID,
		Field:  m.Field,
		Seq:    curSeq,
	}}
}

// summary renders the marker summary recorded for an applied update.
func summary(u *domain.ResolvedUpdate) string {
	return fmt.Sprintf("%s/%s", u.ItemID, u.Field)
}
