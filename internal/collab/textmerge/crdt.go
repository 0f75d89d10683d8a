package textmerge

import (
	"fmt"

	"github.com/automerge/automerge-go"

	"github.com/sundayhq/boardsync/internal/domain"
)

// CRDT is an alternative merge engine backed by automerge. It replays both
// sides of the divergence onto forks of a shared base document and lets the
// CRDT merge converge them.
type CRDT struct{}

// NewCRDT creates the automerge-backed merge engine.
func NewCRDT() *CRDT {
	return &CRDT{}
}

func (*CRDT) Merge(base string, concurrent [][]domain.TextOp, incoming []domain.TextOp) (string, []domain.TextOp, error) {
	if err := validateOps(incoming); err != nil {
		return "", nil, fmt.Errorf("textmerge.CRDT.Merge: %w", err)
	}
	for _, c := range concurrent {
		if err := validateOps(c); err != nil {
			return "", nil, fmt.Errorf("textmerge.CRDT.Merge: %w", err)
		}
	}

	doc := automerge.New()
	if err := doc.Path("body").Set(automerge.NewText(base)); err != nil {
		return "", nil, fmt.Errorf("textmerge.CRDT.Merge: seed: %w", err)
	}

	fork, err := doc.Fork()
	if err != nil {
		return "", nil, fmt.Errorf("textmerge.CRDT.Merge: fork: %w", err)
	}

	// Concurrent edits land on the main document in sequence order; the
	// incoming edit lands on the fork, which still sees the base revision.
	pre := base
	for _, c := range concurrent {
		if err := spliceText(doc.Path("body").Text(), c); err != nil {
			return "", nil, fmt.Errorf("textmerge.CRDT.Merge: %w", err)
		}
		var err error
		pre, err = Apply(pre, c)
		if err != nil {
			return "", nil, fmt.Errorf("textmerge.CRDT.Merge: %w", err)
		}
	}
	if err := spliceText(fork.Path("body").Text(), incoming); err != nil {
		return "", nil, fmt.Errorf("textmerge.CRDT.Merge: %w", err)
	}

	if _, err := doc.Merge(fork); err != nil {
		return "", nil, fmt.Errorf("textmerge.CRDT.Merge: merge: %w", err)
	}

	merged, err := doc.Path("body").Text().Get()
	if err != nil {
		return "", nil, fmt.Errorf("textmerge.CRDT.Merge: read: %w", err)
	}

	// The CRDT does not surface a rebased op stream, so the recorded edit is
	// a whole-document replacement of the pre-merge text.
	var rebased []domain.TextOp
	if n := len([]rune(pre)); n > 0 {
		rebased = append(rebased, domain.TextOp{Kind: domain.TextDelete, N: n})
	}
	if merged != "" {
		rebased = append(rebased, domain.TextOp{Kind: domain.TextInsert, Text: merged})
	}
	return merged, rebased, nil
}

// spliceText replays a retain/insert/delete op list onto an automerge text.
func spliceText(t *automerge.Text, ops []domain.TextOp) error {
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case domain.TextRetain:
			pos += op.N
		case domain.TextInsert:
			if err := t.Insert(pos, op.Text); err != nil {
				return err
			}
			pos += len([]rune(op.Text))
		case domain.TextDelete:
			if err := t.Delete(pos, op.N); err != nil {
				return err
			}
		}
	}
	return nil
}
