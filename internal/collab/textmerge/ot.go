package textmerge

import (
	"fmt"

	"github.com/sundayhq/boardsync/internal/domain"
)

// OT is the default operational-transformation merge engine.
type OT struct{}

// NewOT creates the OT merge engine.
func NewOT() *OT {
	return &OT{}
}

// Merge transforms the incoming edit against each concurrent edit in sequence
// order, then applies it to the document produced by those edits. Concurrent
// edits take insert priority at equal positions: they were sequenced first.
func (*OT) Merge(base string, concurrent [][]domain.TextOp, incoming []domain.TextOp) (string, []domain.TextOp, error) {
	if err := validateOps(incoming); err != nil {
		return "", nil, fmt.Errorf("textmerge.OT.Merge: %w", err)
	}

	cur := base
	rebased := incoming
	for _, c := range concurrent {
		if err := validateOps(c); err != nil {
			return "", nil, fmt.Errorf("textmerge.OT.Merge: %w", err)
		}

		var err error
		rebased, err = Transform(rebased, c, false)
		if err != nil {
			return "", nil, fmt.Errorf("textmerge.OT.Merge: %w", err)
		}

		cur, err = Apply(cur, c)
		if err != nil {
			return "", nil, fmt.Errorf("textmerge.OT.Merge: %w", err)
		}
	}

	merged, err := Apply(cur, rebased)
	if err != nil {
		return "", nil, fmt.Errorf("textmerge.OT.Merge: %w", err)
	}
	return merged, rebased, nil
}

// Apply runs an op list against doc. A missing trailing retain is implied;
// retaining or deleting past the end of the document is an error.
func Apply(doc string, ops []domain.TextOp) (string, error) {
	if err := validateOps(ops); err != nil {
		return "", err
	}

	runes := []rune(doc)
	out := make([]rune, 0, len(runes))
	pos := 0

	for _, op := range ops {
		switch op.Kind {
		case domain.TextRetain:
			if pos+op.N > len(runes) {
				return "", ErrOpOutOfBounds
			}
			out = append(out, runes[pos:pos+op.N]...)
			pos += op.N
		case domain.TextInsert:
			out = append(out, []rune(op.Text)...)
		case domain.TextDelete:
			if pos+op.N > len(runes) {
				return "", ErrOpOutOfBounds
			}
			pos += op.N
		}
	}

	out = append(out, runes[pos:]...)
	return string(out), nil
}

// opStream consumes op components incrementally, splitting retains and
// deletes as the transform walks both sides.
type opStream struct {
	ops []domain.TextOp
	i   int
	off int // runes already consumed from ops[i]
}

func (s *opStream) done() bool { return s.i >= len(s.ops) }

func (s *opStream) peek() domain.TextOp {
	op := s.ops[s.i]
	if op.Kind == domain.TextInsert {
		return op
	}
	return domain.TextOp{Kind: op.Kind, N: op.N - s.off}
}

// take consumes n runes from the current retain/delete component, or the whole
// component when it is an insert.
func (s *opStream) take(n int) {
	op := s.ops[s.i]
	if op.Kind == domain.TextInsert {
		s.i++
		return
	}
	s.off += n
	if s.off >= op.N {
		s.i++
		s.off = 0
	}
}

// Transform rewrites a so it can be applied after b, where a and b were both
// produced against the same document. When both sides insert at the same
// position, aHasPriority decides whose insert lands first in the final text;
// the resolver gives priority to the edit that was sequenced first.
func Transform(a, b []domain.TextOp, aHasPriority bool) ([]domain.TextOp, error) {
	if err := validateOps(a); err != nil {
		return nil, err
	}
	if err := validateOps(b); err != nil {
		return nil, err
	}

	sa := &opStream{ops: a}
	sb := &opStream{ops: b}
	var out []domain.TextOp

	appendOp := func(op domain.TextOp) {
		if n := len(out); n > 0 && out[n-1].Kind == op.Kind && op.Kind != domain.TextInsert {
			out[n-1].N += op.N
			return
		}
		out = append(out, op)
	}

	for !sa.done() || !sb.done() {
		// a's inserts are position-independent of b's retains/deletes; emit
		// them unless b has an insert here that takes priority.
		if !sa.done() && sa.peek().Kind == domain.TextInsert {
			if !sb.done() && sb.peek().Kind == domain.TextInsert && !aHasPriority {
				op := sb.peek()
				appendOp(domain.TextOp{Kind: domain.TextRetain, N: len([]rune(op.Text))})
				sb.take(0)
				continue
			}
			appendOp(sa.peek())
			sa.take(0)
			continue
		}

		if !sb.done() && sb.peek().Kind == domain.TextInsert {
			op := sb.peek()
			appendOp(domain.TextOp{Kind: domain.TextRetain, N: len([]rune(op.Text))})
			sb.take(0)
			continue
		}

		if sa.done() || sb.done() {
			// One side has trailing explicit components the other leaves as
			// an implied retain.
			if sa.done() {
				sb.take(sb.peek().N)
				continue
			}
			appendOp(sa.peek())
			sa.take(sa.peek().N)
			continue
		}

		opA, opB := sa.peek(), sb.peek()
		n := opA.N
		if opB.N < n {
			n = opB.N
		}

		switch {
		case opA.Kind == domain.TextRetain && opB.Kind == domain.TextRetain:
			appendOp(domain.TextOp{Kind: domain.TextRetain, N: n})
		case opA.Kind == domain.TextDelete && opB.Kind == domain.TextRetain:
			appendOp(domain.TextOp{Kind: domain.TextDelete, N: n})
		case opA.Kind == domain.TextRetain && opB.Kind == domain.TextDelete:
			// Those runes are gone; nothing to retain.
		case opA.Kind == domain.TextDelete && opB.Kind == domain.TextDelete:
			// Both deleted the same runes; b already removed them.
		default:
			return nil, ErrBadOp
		}

		sa.take(n)
		sb.take(n)
	}

	return out, nil
}
