package textmerge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayhq/boardsync/internal/collab/textmerge"
	"github.com/sundayhq/boardsync/internal/domain"
)

func TestCRDT_Merge(t *testing.T) {
	t.Parallel()

	crdt := textmerge.NewCRDT()

	t.Run("no concurrent edits", func(t *testing.T) {
		t.Parallel()

		got, _, err := crdt.Merge("hello", nil, []domain.TextOp{retain(5), insert(" world")})
		require.NoError(t, err)
		assert.Equal(t, "hello world", got)
	})

	t.Run("disjoint concurrent edits both survive", func(t *testing.T) {
		t.Parallel()

		got, _, err := crdt.Merge("hello world",
			[][]domain.TextOp{{retain(11), insert("!")}},
			[]domain.TextOp{insert(">> ")},
		)
		require.NoError(t, err)
		assert.Contains(t, got, ">> ")
		assert.Contains(t, got, "!")
		assert.Contains(t, got, "hello world")
	})

	t.Run("malformed incoming rejected", func(t *testing.T) {
		t.Parallel()

		_, _, err := crdt.Merge("abc", nil, []domain.TextOp{{Kind: "bogus"}})
		assert.ErrorIs(t, err, textmerge.ErrBadOp)
	})
}
