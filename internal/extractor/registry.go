// Package extractor produces fresh fact documents on demand.
//
// Extractors are pluggable collaborators of the fact store: each one
// walks some bounded slice of the project tree and hands back a fields
// payload plus a source signature. The project root is always passed
// explicitly; extractors keep no shared state between calls.
package extractor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
)

// Registry maps categories to extractors. Implements
// factstore.ExtractorRegistry.
type Registry struct {
	mu         sync.RWMutex
	extractors map[factstore.Category]factstore.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[factstore.Category]factstore.Extractor),
	}
}

// NewDefaultRegistry creates a registry with the built-in extractors.
func NewDefaultRegistry(scan ScanConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := NewRegistry()
	r.Register(factstore.CategoryStructure, &StructureExtractor{Scan: scan, Logger: logger})
	r.Register(factstore.CategoryDependencies, &DependenciesExtractor{Logger: logger})
	return r
}

// Register binds an extractor to a category, replacing any previous one.
func (r *Registry) Register(category factstore.Category, ext factstore.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[category] = ext
}

// Extractor resolves the extractor for a category.
func (r *Registry) Extractor(category factstore.Category) (factstore.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extractors[category]
	return ext, ok
}

var _ factstore.ExtractorRegistry = (*Registry)(nil)
