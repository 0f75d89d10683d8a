package collab

import (
	"github.com/google/uuid"

	"github.com/sundayhq/boardsync/internal/domain"
)

// boardState is the in-memory field state for one board. It is owned by the
// board's actor goroutine and never shared, so it needs no locking.
type boardState struct {
	boardID uuid.UUID
	items   map[uuid.UUID]*itemState
}

type itemState struct {
	fields map[domain.Field]*fieldState
}

// fieldState is the current value of one field plus the stamps and history
// conflict resolution needs.
type fieldState struct {
	value         string
	seq           uint64
	clock         uint64
	lastWriter    uuid.UUID // session that produced the current value
	lastWriterSet bool

	// history holds recent text revisions (text fields only) so incoming
	// edits based on older revisions can be transformed forward. Bounded by
	// the same window as resync replay.
	history []textRevision
	// trimmedThrough is the seq of the newest revision dropped from history.
	// A base revision at or below it cannot be merged forward anymore.
	trimmedThrough uint64
}

// textRevision is one applied text edit: the ops expressed against the text
// before them, and that prior text for merge-base recovery.
type textRevision struct {
	seq    uint64
	ops    []domain.TextOp
	before string
}

func newBoardState(boardID uuid.UUID, items []*domain.Item) *boardState {
	st := &boardState{
		boardID: boardID,
		items:   make(map[uuid.UUID]*itemState, len(items)),
	}
	for _, it := range items {
		is := &itemState{fields: make(map[domain.Field]*fieldState, len(it.Fields))}
		for f, v := range it.Fields {
			// Loaded values carry no op history, so edits based on anything
			// older than the loaded revision cannot be merged forward.
			is.fields[f] = &fieldState{value: v.Value, seq: v.Seq, clock: v.Clock, trimmedThrough: v.Seq}
		}
		st.items[it.ID] = is
	}
	return st
}

// snapshot copies the state into transportable items, sorted by the engine's
// caller if needed.
func (st *boardState) snapshot() []*domain.Item {
	out := make([]*domain.Item, 0, len(st.items))
	for id, is := range st.items {
		item := &domain.Item{
			ID:      id,
			BoardID: st.boardID,
			Fields:  make(map[domain.Field]domain.FieldValue, len(is.fields)),
		}
		for f, fs := range is.fields {
			item.Fields[f] = domain.FieldValue{Value: fs.value, Seq: fs.seq, Clock: fs.clock}
		}
		out = append(out, item)
	}
	return out
}

// positionTaken reports whether any item on the board already occupies the
// given fractional position key.
func (st *boardState) positionTaken(key string) bool {
	for _, is := range st.items {
		if fs, ok := is.fields[domain.FieldPosition]; ok && fs.value == key {
			return true
		}
	}
	return false
}
