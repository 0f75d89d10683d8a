// Package textmerge merges concurrent edits to free-text fields. The default
// engine is operational transformation; a CRDT engine backed by automerge is
// available behind the same interface so the algorithm can be swapped without
// touching the conflict resolver.
package textmerge

import (
	"errors"

	"github.com/sundayhq/boardsync/internal/domain"
)

var (
	// ErrOpOutOfBounds is returned when an op retains or deletes past the end
	// of the document it is applied to.
	ErrOpOutOfBounds = errors.New("textmerge: op out of bounds")
	// ErrBadOp is returned for malformed op components (negative lengths,
	// empty inserts, unknown kinds).
	ErrBadOp = errors.New("textmerge: malformed op")
)

// Merger rebases an edit made against an older revision of a text field
// across the concurrent edits sequenced after that revision (oldest first,
// each expressed against the document state preceding it). It returns the
// merged document plus the rebased edit expressed against the pre-merge
// document, which the caller records so later edits can transform against it.
type Merger interface {
	Merge(base string, concurrent [][]domain.TextOp, incoming []domain.TextOp) (string, []domain.TextOp, error)
}

// validateOps rejects structurally malformed op lists before any engine
// touches them.
func validateOps(ops []domain.TextOp) error {
	for _, op := range ops {
		switch op.Kind {
		case domain.TextRetain, domain.TextDelete:
			if op.N <= 0 {
				return ErrBadOp
			}
		case domain.TextInsert:
			if op.Text == "" {
				return ErrBadOp
			}
		default:
			return ErrBadOp
		}
	}
	return nil
}
