package factstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors for fact store operations.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SchemaVersion is the current fact document schema version.
const SchemaVersion = 1

// Category names one structured document about the project. The set is
// finite at the boundary; payloads stay schema-free underneath.
type Category string

const (
	CategoryStructure    Category = "structure"
	CategoryDependencies Category = "dependencies"
	CategoryConventions  Category = "conventions"
	CategoryBuild        Category = "build"
	CategoryTest         Category = "test"
	CategoryArchitecture Category = "architecture"
	CategoryNotes        Category = "notes"
)

// Categories returns all known categories in stable order.
func Categories() []Category {
	return []Category{
		CategoryStructure,
		CategoryDependencies,
		CategoryConventions,
		CategoryBuild,
		CategoryTest,
		CategoryArchitecture,
		CategoryNotes,
	}
}

// ParseCategory validates a category name from the boundary.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

// Document is one persisted fact document.
type Document struct {
	// Category is the unique key for this document.
	Category Category `json:"category"`

	// SchemaVersion is the document schema version.
	SchemaVersion int `json:"schema_version"`

	// Fields is the category-specific payload. Its internal structure is
	// opaque to the store.
	Fields map[string]any `json:"fields"`

	// SourceSignature fingerprints the inputs that produced this document,
	// used to detect staleness without re-scanning. Empty when unknown.
	SourceSignature string `json:"source_signature,omitempty"`

	// LastUpdated is when this document was last written.
	LastUpdated time.Time `json:"last_updated"`
}

// emptyDocument is the zero-value schema for a category. A missing
// document is valid and maps to this, never to an error.
func emptyDocument(category Category) *Document {
	return &Document{
		Category:      category,
		SchemaVersion: SchemaVersion,
		Fields:        map[string]any{},
	}
}

// CategoryStatus is a cheap existence/freshness probe result.
type CategoryStatus struct {
	Exists      bool      `json:"exists"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// QueryResult pairs a matching category with its document.
type QueryResult struct {
	Category Category  `json:"category"`
	Document *Document `json:"document"`
}

// SaveOptions controls Save behavior.
type SaveOptions struct {
	// RefreshFromExtractor re-runs the registered extractor for the
	// category before merging.
	RefreshFromExtractor bool
}

// Extractor produces a fresh fields payload for a category. The project
// root is passed explicitly; extractors hold no shared state. The
// returned signature fingerprints the inputs that were scanned.
//
// An extractor may return partial fields together with an error when a
// scan bound was hit; the store persists what it got.
type Extractor interface {
	Extract(ctx context.Context, root string) (fields map[string]any, signature string, err error)
}

// ExtractorRegistry resolves the extractor for a category.
type ExtractorRegistry interface {
	Extractor(category Category) (Extractor, bool)
}
