package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type markerRepoMock struct {
	persistFn func(ctx context.Context, boardID uuid.UUID, seq uint64, summary string) error
	latestFn  func(ctx context.Context, boardID uuid.UUID) (uint64, error)
}

func (m *markerRepoMock) PersistMarker(ctx context.Context, boardID uuid.UUID, seq uint64, summary string) error {
	if m.persistFn == nil {
		return nil
	}
	return m.persistFn(ctx, boardID, seq, summary)
}

func (m *markerRepoMock) LatestMarker(ctx context.Context, boardID uuid.UUID) (uint64, error) {
	if m.latestFn == nil {
		return 0, nil
	}
	return m.latestFn(ctx, boardID)
}

func TestSequencer_SeedResumesAboveMarker(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&markerRepoMock{
		latestFn: func(_ context.Context, _ uuid.UUID) (uint64, error) { return 41, nil },
	})
	boardID := uuid.New()

	seeded, err := s.Seed(context.Background(), boardID)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), seeded)
	assert.Equal(t, uint64(42), s.Next(boardID))
}

func TestSequencer_SeedKeepsHigherCounter(t *testing.T) {
	t.Parallel()

	latest := uint64(0)
	s := NewSequencer(&markerRepoMock{
		latestFn: func(_ context.Context, _ uuid.UUID) (uint64, error) { return latest, nil },
	})
	boardID := uuid.New()

	// Counter already advanced past the persisted marker (a marker write
	// failed earlier); reseeding must not roll it back.
	s.Next(boardID)
	s.Next(boardID)
	latest = 1

	seeded, err := s.Seed(context.Background(), boardID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seeded)
	assert.Equal(t, uint64(3), s.Next(boardID))
}

func TestSequencer_SeedError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	s := NewSequencer(&markerRepoMock{
		latestFn: func(_ context.Context, _ uuid.UUID) (uint64, error) { return 0, wantErr },
	})

	_, err := s.Seed(context.Background(), uuid.New())
	assert.ErrorIs(t, err, wantErr)
}

func TestSequencer_NextIsPerBoard(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&markerRepoMock{})
	a := uuid.New()
	b := uuid.New()

	assert.Equal(t, uint64(1), s.Next(a))
	assert.Equal(t, uint64(2), s.Next(a))
	assert.Equal(t, uint64(1), s.Next(b))
	assert.Equal(t, uint64(2), s.Current(a))
	assert.Equal(t, uint64(0), s.Current(uuid.New()))
}

func TestSequencer_RecordSurvivesPersistFailure(t *testing.T) {
	t.Parallel()

	var calls int
	s := NewSequencer(&markerRepoMock{
		persistFn: func(_ context.Context, _ uuid.UUID, _ uint64, _ string) error {
			calls++
			return errors.New("write timeout")
		},
	})
	boardID := uuid.New()

	seq := s.Next(boardID)
	s.Record(context.Background(), boardID, seq, "item/status")

	assert.Equal(t, 1, calls)
	// The number stays issued even though the marker write failed.
	assert.Equal(t, seq, s.Current(boardID))
	assert.Equal(t, seq+1, s.Next(boardID))
}

func TestSequencer_Release(t *testing.T) {
	t.Parallel()

	s := NewSequencer(&markerRepoMock{
		latestFn: func(_ context.Context, _ uuid.UUID) (uint64, error) { return 10, nil },
	})
	boardID := uuid.New()

	_, err := s.Seed(context.Background(), boardID)
	require.NoError(t, err)
	s.Next(boardID)

	s.Release(boardID)
	assert.Equal(t, uint64(0), s.Current(boardID))

	// Reseeding resumes from the persisted marker.
	seeded, err := s.Seed(context.Background(), boardID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), seeded)
}
