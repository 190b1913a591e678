package instinct

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instincts.json")
	s, err := NewStore(DefaultConfig(path), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestRecordInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Record(ctx, &Candidate{
		ID:          "error-wrap",
		Description: "errors are wrapped with %w",
		Context:     "error-handling",
		Confidence:  0.5,
		Example:     "fmt.Errorf(\"load: %w\", err)",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rec.ObservationCount)
	assert.InDelta(t, 0.5, rec.Confidence, 1e-9)
	assert.Equal(t, []string{"fmt.Errorf(\"load: %w\", err)"}, rec.Examples)
	assert.Equal(t, SourceDirect, rec.Source)
	assert.False(t, rec.FirstSeen.IsZero())
	assert.False(t, rec.LastUsed.IsZero())
}

func TestRecordReinforcementScenario(t *testing.T) {
	// Three observations at base 0.5 -> 0.65; six -> 0.80.
	s := newTestStore(t)
	ctx := context.Background()

	var rec *Record
	var err error
	for i := 0; i < 3; i++ {
		rec, err = s.Record(ctx, &Candidate{ID: "A", Confidence: 0.5})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, rec.ObservationCount)
	assert.InDelta(t, 0.65, rec.Confidence, 1e-9)

	for i := 0; i < 3; i++ {
		rec, err = s.Record(ctx, &Candidate{ID: "A", Confidence: 0.5})
		require.NoError(t, err)
	}
	assert.Equal(t, 6, rec.ObservationCount)
	assert.InDelta(t, 0.80, rec.Confidence, 1e-9)
}

func TestRecordConfidenceCeiling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var rec *Record
	var err error
	for i := 0; i < 30; i++ {
		rec, err = s.Record(ctx, &Candidate{ID: "hot", Confidence: 0.85})
		require.NoError(t, err)
		assert.LessOrEqual(t, rec.Confidence, 0.9)
		assert.GreaterOrEqual(t, rec.Confidence, 0.0)
	}
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
}

func TestRecordNonDecreasing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Record(ctx, &Candidate{ID: "p", Confidence: 0.7})
	require.NoError(t, err)
	prev := rec.Confidence

	// A weaker candidate never lowers confidence.
	for _, c := range []float64{0.1, 0.0, 0.3, 0.9, 0.2} {
		rec, err = s.Record(ctx, &Candidate{ID: "p", Confidence: c})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.Confidence, prev)
		prev = rec.Confidence
	}
}

func TestRecordExampleDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.Record(ctx, &Candidate{ID: "x", Confidence: 0.5, Example: "same"})
		require.NoError(t, err)
	}

	rec, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, rec.Examples)
}

func TestRecordExampleCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := s.Record(ctx, &Candidate{
			ID:         "x",
			Confidence: 0.5,
			Example:    fmt.Sprintf("example-%d", i),
		})
		require.NoError(t, err)
	}

	rec, err := s.Get(ctx, "x")
	require.NoError(t, err)
	require.Len(t, rec.Examples, 5)
	// Oldest dropped, most recent kept in order.
	assert.Equal(t, []string{"example-3", "example-4", "example-5", "example-6", "example-7"}, rec.Examples)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, &Candidate{ID: "", Confidence: 0.5})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Record(ctx, &Candidate{ID: "a", Confidence: 1.5})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Record(ctx, &Candidate{ID: "a", Confidence: -0.1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Record(ctx, &Candidate{ID: "a", Confidence: 0.5, Source: "psychic"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Record(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, &Candidate{ID: "a", Context: "testing", Confidence: 0.8})
	require.NoError(t, err)
	_, err = s.Record(ctx, &Candidate{ID: "b", Context: "testing", Confidence: 0.4})
	require.NoError(t, err)
	_, err = s.Record(ctx, &Candidate{ID: "c", Context: "errors", Confidence: 0.9})
	require.NoError(t, err)

	all := s.List(ctx, nil)
	require.Len(t, all, 3)
	// Ordered by confidence descending.
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[1].ID)
	assert.Equal(t, "b", all[2].ID)

	confident := s.List(ctx, &Filter{MinConfidence: 0.7})
	require.Len(t, confident, 2)

	testing_ := s.List(ctx, &Filter{Context: "testing"})
	require.Len(t, testing_, 2)

	both := s.List(ctx, &Filter{Context: "testing", MinConfidence: 0.7})
	require.Len(t, both, 1)
	assert.Equal(t, "a", both[0].ID)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instincts.json")
	ctx := context.Background()

	s1, err := NewStore(DefaultConfig(path), zap.NewNop())
	require.NoError(t, err)
	_, err = s1.Record(ctx, &Candidate{ID: "a", Description: "d", Confidence: 0.6, Example: "e"})
	require.NoError(t, err)
	_, err = s1.Record(ctx, &Candidate{ID: "a", Confidence: 0.6})
	require.NoError(t, err)

	s2, err := NewStore(DefaultConfig(path), zap.NewNop())
	require.NoError(t, err)

	rec, err := s2.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ObservationCount)
	assert.Equal(t, "d", rec.Description)
	assert.Equal(t, []string{"e"}, rec.Examples)
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instincts.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	s, err := NewStore(DefaultConfig(path), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, s.List(context.Background(), nil))
}

func TestDecay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, &Candidate{ID: "stale", Confidence: 0.8})
	require.NoError(t, err)
	_, err = s.Record(ctx, &Candidate{ID: "fresh", Confidence: 0.8})
	require.NoError(t, err)

	// Age one record past the cutoff.
	s.mu.Lock()
	s.records["stale"].LastUsed = time.Now().Add(-48 * time.Hour)
	s.mu.Unlock()

	decayed, err := s.Decay(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	stale, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, stale.Confidence, 1e-9)

	fresh, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, fresh.Confidence, 1e-9)
}

func TestDecayFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, &Candidate{ID: "old", Confidence: 0.12})
	require.NoError(t, err)
	s.mu.Lock()
	s.records["old"].LastUsed = time.Now().Add(-48 * time.Hour)
	s.mu.Unlock()

	for i := 0; i < 5; i++ {
		_, err = s.Decay(ctx, 24*time.Hour)
		require.NoError(t, err)
		s.mu.Lock()
		s.records["old"].LastUsed = time.Now().Add(-48 * time.Hour)
		s.mu.Unlock()
	}

	rec, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rec.Confidence, 1e-9)
}

func TestDecayNoopWhenNothingStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, &Candidate{ID: "fresh", Confidence: 0.8})
	require.NoError(t, err)

	decayed, err := s.Decay(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, decayed)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, &Candidate{ID: "a", Confidence: 0.5, Example: "e1"})
	require.NoError(t, err)

	rec, err := s.Get(ctx, "a")
	require.NoError(t, err)
	rec.Confidence = 0.0
	rec.Examples[0] = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, again.Confidence, 1e-9)
	assert.Equal(t, "e1", again.Examples[0])
}
