package domain

import "github.com/google/uuid"

// TextOpKind is the kind of a single text operation component.
type TextOpKind string

const (
	TextRetain TextOpKind = "retain"
	TextInsert TextOpKind = "insert"
	TextDelete TextOpKind = "delete"
)

// TextOp is one component of an edit to a free-text field, expressed against
// the revision the client last synced. A full edit is an ordered []TextOp
// whose retain+delete lengths span the base document.
type TextOp struct {
	Kind TextOpKind `json:"kind"`
	N    int        `json:"n,omitempty"`    // retain / delete length in runes
	Text string     `json:"text,omitempty"` // insert payload
}

// PendingMutation is an in-flight client edit awaiting sequencing and
// resolution. Ephemeral: destroyed after merge and broadcast.
type PendingMutation struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	BoardID     uuid.UUID `json:"board_id"`
	ItemID      uuid.UUID `json:"item_id"`
	Field       Field     `json:"field"`
	Value       string    `json:"value"`
	TextOps     []TextOp  `json:"text_ops,omitempty"`
	ClientClock uint64    `json:"client_clock"`
	// BaseSeq is the board sequence the client had applied when it produced
	// this mutation. Used to pick the concurrent ops a text edit must be
	// transformed against.
	BaseSeq uint64 `json:"base_seq"`
}

// ResolvedUpdate is the outcome of conflict resolution: the value every
// session must converge on, stamped with its board sequence number.
type ResolvedUpdate struct {
	BoardID       uuid.UUID `json:"board_id"`
	ItemID        uuid.UUID `json:"item_id"`
	Field         Field     `json:"field"`
	Value         string    `json:"value"`
	Seq           uint64    `json:"seq"`
	OriginSession uuid.UUID `json:"-"`
}

// NoticeKind classifies corrective notices sent to a mutation's originator.
type NoticeKind string

const (
	// NoticeSuperseded: the mutation lost a last-writer-wins race. The carried
	// value is the winning state the client must converge on.
	NoticeSuperseded NoticeKind = "superseded"
	// NoticeStale: the mutation targeted an unknown field or carried a value
	// the field cannot accept; it resolved to a no-op.
	NoticeStale NoticeKind = "stale"
)

// Notice is a non-fatal corrective signal to the originating session only.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	ItemID uuid.UUID  `json:"item_id"`
	Field  Field      `json:"field"`
	Seq    uint64     `json:"seq,omitempty"`
	Value  string     `json:"value,omitempty"`
}

// EventKind tags entries on a session's outbound queue.
type EventKind string

const (
	EventUpdate         EventKind = "update"
	EventPresence       EventKind = "presence"
	EventNotice         EventKind = "notice"
	EventResyncRequired EventKind = "resync_required"
)

// Event is one entry on a session's outbound delivery queue. Exactly one of
// the payload pointers matching Kind is set.
type Event struct {
	Kind     EventKind       `json:"kind"`
	Update   *ResolvedUpdate `json:"update,omitempty"`
	Presence *PresenceEvent  `json:"presence,omitempty"`
	Notice   *Notice         `json:"notice,omitempty"`
}
