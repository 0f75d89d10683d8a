package domain

import (
	"context"

	"github.com/google/uuid"
)

// Field identifies a mutable item field on a board.
type Field string

const (
	FieldStatus      Field = "status"
	FieldAssignee    Field = "assignee"
	FieldDueDate     Field = "due_date"
	FieldPriority    Field = "priority"
	FieldPosition    Field = "position"
	FieldDescription Field = "description"
)

// FieldKind groups fields by their conflict-resolution strategy.
type FieldKind string

const (
	// KindScalar fields resolve by last-writer-wins on sequence number.
	KindScalar FieldKind = "scalar"
	// KindPosition fields hold fractional ordering keys; overlapping keys are
	// tie-broken deterministically instead of overwritten.
	KindPosition FieldKind = "position"
	// KindText fields merge concurrent edits instead of discarding either.
	KindText FieldKind = "text"
)

// Kind returns the resolution strategy for a field.
func (f Field) Kind() FieldKind {
	switch f {
	case FieldPosition:
		return KindPosition
	case FieldDescription:
		return KindText
	default:
		return KindScalar
	}
}

// Known reports whether f is one of the fields this engine resolves.
func (f Field) Known() bool {
	switch f {
	case FieldStatus, FieldAssignee, FieldDueDate, FieldPriority, FieldPosition, FieldDescription:
		return true
	default:
		return false
	}
}

// FieldValue is the current value of one item field plus the write stamps
// conflict resolution depends on. Seq is non-decreasing for the lifetime of
// the field.
type FieldValue struct {
	Value string `json:"value"`
	Seq   uint64 `json:"seq"`
	Clock uint64 `json:"clock"`
}

// Item is the unit of work inside a board. Field values carry per-field
// last-modified sequence numbers; the item itself has no version.
type Item struct {
	ID      uuid.UUID            `json:"id"`
	BoardID uuid.UUID            `json:"board_id"`
	Fields  map[Field]FieldValue `json:"fields"`
}

// BoardSnapshot is the full state of a board as of Seq, used by clients
// performing a full resync.
type BoardSnapshot struct {
	BoardID uuid.UUID `json:"board_id"`
	Seq     uint64    `json:"seq"`
	Items   []*Item   `json:"items"`
}

// BoardStateRepository loads persisted board state when a board actor is
// created. The engine never writes item state back; durability of resolved
// values is the persistence collaborator's concern.
type BoardStateRepository interface {
	LoadCurrentState(ctx context.Context, boardID uuid.UUID) ([]*Item, error)
}

// MarkerRepository persists per-board sequence markers for resync. Markers are
// at-least-once: a failed persist does not un-issue the sequence number.
type MarkerRepository interface {
	PersistMarker(ctx context.Context, boardID uuid.UUID, seq uint64, summary string) error
	LatestMarker(ctx context.Context, boardID uuid.UUID) (uint64, error)
}

// BoardRole is a user's role on a board, owned by the external auth service
// and mirrored here for authorization checks.
type BoardRole string

const (
	BoardRoleViewer BoardRole = "viewer"
	BoardRoleEditor BoardRole = "editor"
)

// MembershipRepository resolves a user's role on a board.
// Returns ErrNotFound when the user is not a member.
type MembershipRepository interface {
	Role(ctx context.Context, boardID, userID uuid.UUID) (BoardRole, error)
}
