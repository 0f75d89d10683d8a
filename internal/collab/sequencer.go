package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sundayhq/boardsync/internal/domain"
)

// Sequencer is the per-board ordering authority. Sequence numbers are strictly
// increasing and never reused for a board; each board's actor is the sole
// caller of Next for that board, which makes sequencing serial within a board
// and fully parallel across boards.
type Sequencer struct {
	markers domain.MarkerRepository

	mu       sync.Mutex
	counters map[uuid.UUID]uint64
}

// NewSequencer creates a sequencer backed by the given marker repository.
func NewSequencer(markers domain.MarkerRepository) *Sequencer {
	return &Sequencer{
		markers:  markers,
		counters: make(map[uuid.UUID]uint64),
	}
}

// Seed initialises a board's counter from the latest persisted marker so
// numbering resumes above everything ever issued. Returns the seed value.
func (s *Sequencer) Seed(ctx context.Context, boardID uuid.UUID) (uint64, error) {
	latest, err := s.markers.LatestMarker(ctx, boardID)
	if err != nil {
		return 0, fmt.Errorf("collab.Sequencer.Seed: %w", err)
	}

	s.mu.Lock()
	if cur, ok := s.counters[boardID]; !ok || latest > cur {
		s.counters[boardID] = latest
	}
	seeded := s.counters[boardID]
	s.mu.Unlock()

	return seeded, nil
}

// Next issues the next sequence number for a board.
func (s *Sequencer) Next(boardID uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[boardID]++
	return s.counters[boardID]
}

// Current returns the latest issued sequence number for a board (0 when the
// board has never issued one).
func (s *Sequencer) Current(boardID uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counters[boardID]
}

// Record persists a resync marker for an issued sequence number. Persistence
// is at-least-once: a failed write is logged and the number stays issued.
// Replaying from a lower marker re-derives the same state, losing ordering
// would not.
func (s *Sequencer) Record(ctx context.Context, boardID uuid.UUID, seq uint64, summary string) {
	if err := s.markers.PersistMarker(ctx, boardID, seq, summary); err != nil {
		log.Error().
			Err(err).
			Str("board_id", boardID.String()).
			Uint64("seq", seq).
			Msg("marker persist failed, sequence remains issued")
	}
}

// Release drops a board's in-memory counter once its actor is evicted. The
// persisted marker remains the source for reseeding.
func (s *Sequencer) Release(boardID uuid.UUID) {
	s.mu.Lock()
	delete(s.counters, boardID)
	s.mu.Unlock()
}
