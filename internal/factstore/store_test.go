package factstore

import (
	"context"
	"errors"
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
	s, err := NewStore(DefaultConfig(t.TempDir()), nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("dependencies")
	require.NoError(t, err)
	assert.Equal(t, CategoryDependencies, c)

	_, err = ParseCategory("vibes")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoadAbsentReturnsDefault(t *testing.T) {
	s := newTestStore(t)

	doc := s.Load(context.Background(), CategoryStructure)
	require.NotNil(t, doc)
	assert.Equal(t, CategoryStructure, doc.Category)
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Empty(t, doc.Fields)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fields := map[string]any{"language": "go", "packages": 12.0}
	_, err := s.Save(ctx, CategoryStructure, fields, SaveOptions{})
	require.NoError(t, err)

	doc := s.Load(ctx, CategoryStructure)
	assert.Equal(t, "go", doc.Fields["language"])
	assert.Equal(t, 12.0, doc.Fields["packages"])
	assert.False(t, doc.LastUpdated.IsZero())
}

func TestSaveMergeIsShallowReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, CategoryDependencies, map[string]any{
		"libs":  []any{"a", "b"},
		"count": 2.0,
	}, SaveOptions{})
	require.NoError(t, err)

	// List-valued fields are replaced wholesale, not appended.
	_, err = s.Save(ctx, CategoryDependencies, map[string]any{
		"libs": []any{"c"},
	}, SaveOptions{})
	require.NoError(t, err)

	doc := s.Load(ctx, CategoryDependencies)
	assert.Equal(t, []any{"c"}, doc.Fields["libs"])
	assert.Equal(t, 2.0, doc.Fields["count"]) // untouched field survives
}

func TestLoadCorruptDocumentSelfHeals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(s.config.Dir, 0700))
	require.NoError(t, os.WriteFile(s.path(CategoryBuild), []byte("{not json"), 0600))

	doc := s.Load(ctx, CategoryBuild)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Fields)

	// A save over the corrupt file resets it cleanly.
	_, err := s.Save(ctx, CategoryBuild, map[string]any{"tool": "make"}, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "make", s.Load(ctx, CategoryBuild).Fields["tool"])
}

func TestLoadNewerSchemaTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, os.MkdirAll(s.config.Dir, 0700))
	raw := `{"category":"test","schema_version":99,"fields":{"x":1}}`
	require.NoError(t, os.WriteFile(s.path(CategoryTest), []byte(raw), 0600))

	doc := s.Load(context.Background(), CategoryTest)
	assert.Empty(t, doc.Fields)
}

func TestQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, CategoryStructure, map[string]any{"layout": "Standard Go Layout"}, SaveOptions{})
	require.NoError(t, err)
	_, err = s.Save(ctx, CategoryBuild, map[string]any{"tool": "mage"}, SaveOptions{})
	require.NoError(t, err)

	// Case-insensitive substring over the serialized form.
	results := s.Query(ctx, "standard go")
	require.Len(t, results, 1)
	assert.Equal(t, CategoryStructure, results[0].Category)

	assert.Empty(t, s.Query(ctx, "gradle"))
}

func TestSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, CategoryNotes, map[string]any{"note": "x"}, SaveOptions{})
	require.NoError(t, err)

	summary := s.Summary(ctx)
	require.Len(t, summary, len(Categories()))
	assert.True(t, summary[CategoryNotes].Exists)
	assert.False(t, summary[CategoryNotes].LastUpdated.IsZero())
	assert.False(t, summary[CategoryStructure].Exists)
}

func TestForget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, CategoryNotes, map[string]any{"note": "x"}, SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Forget(ctx, CategoryNotes))
	assert.Empty(t, s.Load(ctx, CategoryNotes).Fields)

	// Forgetting an absent category is a no-op.
	require.NoError(t, s.Forget(ctx, CategoryNotes))
}

type stubExtractor struct {
	fields    map[string]any
	signature string
	err       error
}

func (e *stubExtractor) Extract(ctx context.Context, root string) (map[string]any, string, error) {
	return e.fields, e.signature, e.err
}

type stubRegistry struct {
	extractors map[Category]Extractor
}

func (r *stubRegistry) Extractor(category Category) (Extractor, bool) {
	e, ok := r.extractors[category]
	return e, ok
}

func TestSaveWithRefresh(t *testing.T) {
	reg := &stubRegistry{extractors: map[Category]Extractor{
		CategoryStructure: &stubExtractor{
			fields:    map[string]any{"dirs": []any{"cmd", "internal"}},
			signature: "sig-1",
		},
	}}
	s, err := NewStore(DefaultConfig(t.TempDir()), reg, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	doc, err := s.Save(ctx, CategoryStructure, map[string]any{"extra": true}, SaveOptions{RefreshFromExtractor: true})
	require.NoError(t, err)

	assert.Equal(t, []any{"cmd", "internal"}, doc.Fields["dirs"])
	assert.Equal(t, true, doc.Fields["extra"])
	assert.Equal(t, "sig-1", doc.SourceSignature)
}

func TestSaveRefreshWithoutExtractor(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save(context.Background(), CategoryStructure, nil, SaveOptions{RefreshFromExtractor: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRefreshPartialResultPersisted(t *testing.T) {
	reg := &stubRegistry{extractors: map[Category]Extractor{
		CategoryStructure: &stubExtractor{
			fields: map[string]any{"dirs": []any{"cmd"}},
			err:    errors.New("scan bound exceeded"),
		},
	}}
	s, err := NewStore(DefaultConfig(t.TempDir()), reg, zap.NewNop())
	require.NoError(t, err)

	doc, err := s.Save(context.Background(), CategoryStructure, nil, SaveOptions{RefreshFromExtractor: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"cmd"}, doc.Fields["dirs"])
}

func TestRefreshMultipleCategories(t *testing.T) {
	reg := &stubRegistry{extractors: map[Category]Extractor{
		CategoryStructure:    &stubExtractor{fields: map[string]any{"a": 1.0}},
		CategoryDependencies: &stubExtractor{err: errors.New("boom")},
	}}
	s, err := NewStore(DefaultConfig(t.TempDir()), reg, zap.NewNop())
	require.NoError(t, err)

	out := s.Refresh(context.Background(), nil)
	require.Len(t, out, 2)
	assert.NoError(t, out[CategoryStructure])
	assert.Error(t, out[CategoryDependencies])
}

func TestSaveRejectsOversizeDocument(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.MaxDocumentBytes = 64
	s, err := NewStore(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	big := make(map[string]any)
	big["blob"] = string(make([]byte, 256))
	_, err = s.Save(context.Background(), CategoryNotes, big, SaveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExternalModificationIsReRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, CategoryNotes, map[string]any{"note": "old"}, SaveOptions{})
	require.NoError(t, err)
	_ = s.Load(ctx, CategoryNotes)

	// Simulate an external tool rewriting the file.
	path := s.path(CategoryNotes)
	raw := `{"category":"notes","schema_version":1,"fields":{"note":"new"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	// Last write wins: the store re-reads from disk.
	doc := s.Load(ctx, CategoryNotes)
	assert.Equal(t, "new", doc.Fields["note"])
}

func TestWriteIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, CategoryNotes, map[string]any{"note": "x"}, SaveOptions{})
	require.NoError(t, err)

	// No temp files left behind.
	entries, err := os.ReadDir(s.config.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, ".json", filepath.Ext(e.Name()))
	}
}
