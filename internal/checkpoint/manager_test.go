package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
)

type fixture struct {
	manager   *Manager
	facts     *factstore.Store
	instincts *instinct.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	facts, err := factstore.NewStore(factstore.DefaultConfig(filepath.Join(base, "facts")), nil, zap.NewNop())
	require.NoError(t, err)

	instincts, err := instinct.NewStore(instinct.DefaultConfig(filepath.Join(base, "instincts.json")), zap.NewNop())
	require.NoError(t, err)

	cfg := DefaultConfig(filepath.Join(base, "checkpoints"))
	cfg.ProjectRoot = base
	manager, err := NewManager(cfg, facts, instincts, zap.NewNop())
	require.NoError(t, err)

	return &fixture{manager: manager, facts: facts, instincts: instincts}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := f.facts.Save(ctx, factstore.CategoryStructure, map[string]any{"dirs": []any{"cmd"}}, factstore.SaveOptions{})
	require.NoError(t, err)
	_, err = f.facts.Save(ctx, factstore.CategoryNotes, map[string]any{"note": "n1"}, factstore.SaveOptions{})
	require.NoError(t, err)
	_, err = f.instincts.Record(ctx, &instinct.Candidate{ID: "p1", Confidence: 0.6})
	require.NoError(t, err)
}

func TestSaveAndRestoreFidelity(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	cp, err := f.manager.Save(ctx, "before-refactor", LevelFull, SaveOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, cp.ID)
	assert.Len(t, cp.Facts, len(factstore.Categories()))
	assert.Len(t, cp.Instincts, 1)

	// Mutate live state after the snapshot.
	_, err = f.facts.Save(ctx, factstore.CategoryNotes, map[string]any{"note": "changed"}, factstore.SaveOptions{})
	require.NoError(t, err)
	_, err = f.instincts.Record(ctx, &instinct.Candidate{ID: "p2", Confidence: 0.5})
	require.NoError(t, err)

	// The snapshot is unaffected by later mutations.
	res, err := f.manager.Restore(ctx, "before-refactor")
	require.NoError(t, err)
	assert.Equal(t, "n1", res.Checkpoint.Facts[factstore.CategoryNotes].Fields["note"])
	assert.Len(t, res.Checkpoint.Instincts, 1)

	// And the diff reports what changed since.
	assert.Equal(t, []factstore.Category{factstore.CategoryNotes}, res.Diff.ChangedCategories)
	assert.Equal(t, 2, res.Diff.LiveInstinctCount)
	assert.Equal(t, 1, res.Diff.SnapshotInstinctCount)

	// Restore never mutates the live stores.
	assert.Equal(t, "changed", f.facts.Load(ctx, factstore.CategoryNotes).Fields["note"])
}

func TestSaveLevels(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	quick, err := f.manager.Save(ctx, "q", LevelQuick, SaveOptions{})
	require.NoError(t, err)
	assert.Len(t, quick.Facts, 1)
	assert.Contains(t, quick.Facts, factstore.CategoryStructure)
	assert.Empty(t, quick.Instincts)

	standard, err := f.manager.Save(ctx, "s", LevelStandard, SaveOptions{})
	require.NoError(t, err)
	assert.Len(t, standard.Facts, 4)
	assert.Len(t, standard.Instincts, 1)

	full, err := f.manager.Save(ctx, "f", LevelFull, SaveOptions{})
	require.NoError(t, err)
	assert.Len(t, full.Facts, len(factstore.Categories()))
	assert.Len(t, full.Instincts, 1)
}

func TestSaveDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Save(ctx, "x", LevelQuick, SaveOptions{})
	require.NoError(t, err)

	_, err = f.manager.Save(ctx, "x", LevelQuick, SaveOptions{})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = f.manager.Save(ctx, "x", LevelQuick, SaveOptions{Overwrite: true})
	assert.NoError(t, err)
}

func TestSaveRejectsInvalidName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", ".hidden", "spaces here"} {
		_, err := f.manager.Save(ctx, name, LevelQuick, SaveOptions{})
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q", name)
	}
}

func TestRestoreNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Restore(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		_, err := f.manager.Save(ctx, name, LevelQuick, SaveOptions{})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	descriptors, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, descriptors, 3)
	assert.Equal(t, "three", descriptors[0].Name)
	assert.Equal(t, "two", descriptors[1].Name)
	assert.Equal(t, "one", descriptors[2].Name)
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := f.manager.Save(ctx, fmt.Sprintf("cp-%d", i), LevelQuick, SaveOptions{})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	pruned, err := f.manager.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, pruned)

	descriptors, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, "cp-5", descriptors[0].Name)
	assert.Equal(t, "cp-4", descriptors[1].Name)
}

func TestPruneKeepsEverythingWhenUnderLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Save(ctx, "only", LevelQuick, SaveOptions{})
	require.NoError(t, err)

	pruned, err := f.manager.Prune(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Save(ctx, "gone", LevelQuick, SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(ctx, "gone"))
	assert.ErrorIs(t, f.manager.Delete(ctx, "gone"), ErrNotFound)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.manager.Save(ctx, "portable", LevelFull, SaveOptions{})
	require.NoError(t, err)

	doc, err := f.manager.Export(ctx, "portable")
	require.NoError(t, err)

	// Import into a fresh manager.
	other := newFixture(t)
	cp, err := other.manager.Import(ctx, doc, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "portable", cp.Name)

	res, err := other.manager.Restore(ctx, "portable")
	require.NoError(t, err)
	assert.Equal(t, "n1", res.Checkpoint.Facts[factstore.CategoryNotes].Fields["note"])
}

func TestImportRejectsBadDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: "{nope"},
		{name: "wrong schema version", doc: `{"schema_version":9,"name":"x","id":"i","level":"full","created_at":"2026-01-02T03:04:05Z"}`},
		{name: "missing name", doc: `{"schema_version":1,"id":"i","level":"full","created_at":"2026-01-02T03:04:05Z"}`},
		{name: "bad level", doc: `{"schema_version":1,"name":"x","id":"i","level":"huge","created_at":"2026-01-02T03:04:05Z"}`},
		{name: "missing id", doc: `{"schema_version":1,"name":"x","level":"full","created_at":"2026-01-02T03:04:05Z"}`},
		{name: "confidence out of range", doc: `{"schema_version":1,"name":"x","id":"i","level":"full","created_at":"2026-01-02T03:04:05Z","instincts":[{"id":"p","confidence":3.0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Import(ctx, []byte(tt.doc), SaveOptions{})
			require.Error(t, err)
		})
	}
}

func TestImportDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Save(ctx, "dup", LevelQuick, SaveOptions{})
	require.NoError(t, err)

	doc, err := f.manager.Export(ctx, "dup")
	require.NoError(t, err)

	_, err = f.manager.Import(ctx, doc, SaveOptions{})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = f.manager.Import(ctx, doc, SaveOptions{Overwrite: true})
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("quick")
	require.NoError(t, err)
	assert.Equal(t, LevelQuick, level)

	// Empty defaults to standard.
	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelStandard, level)

	_, err = ParseLevel("mega")
	assert.Error(t, err)
}
