package factstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/factstore"

// Config configures the fact store.
type Config struct {
	// Dir is the directory holding one JSON document per category.
	Dir string

	// ProjectRoot is passed to extractors on refresh.
	ProjectRoot string

	// MaxDocumentBytes caps a serialized document (default: 1MB).
	MaxDocumentBytes int64
}

// DefaultConfig returns sensible defaults rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:              dir,
		MaxDocumentBytes: 1 << 20,
	}
}

// Store persists typed, schema-versioned fact documents keyed by
// category. Reads never fail: absence and corruption both degrade to
// the category's empty default.
type Store struct {
	config   *Config
	registry ExtractorRegistry
	logger   *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	saveCounter metric.Int64Counter

	mu sync.RWMutex
	// seen tracks the last mtime observed per category so external
	// modification of the underlying file can be logged on read.
	seen map[Category]time.Time
}

// NewStore creates a fact store. The registry may be nil when no
// extractors are wired; refresh requests then report NotFound.
func NewStore(cfg *Config, registry ExtractorRegistry, logger *zap.Logger) (*Store, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, errors.New("store dir is required")
	}
	if cfg.MaxDocumentBytes == 0 {
		cfg.MaxDocumentBytes = 1 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		config:   cfg,
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		seen:     make(map[Category]time.Time),
	}

	var err error
	s.saveCounter, err = s.meter.Int64Counter(
		"instinctd.factstore.saves_total",
		metric.WithDescription("Total number of fact document saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		logger.Warn("failed to create save counter", zap.Error(err))
	}

	return s, nil
}

// path returns the document file for a category.
func (s *Store) path(category Category) string {
	return filepath.Join(s.config.Dir, string(category)+".json")
}

// Load returns the persisted document for a category, or the category's
// empty default when absent or unreadable. Load never fails.
func (s *Store) Load(ctx context.Context, category Category) *Document {
	_, span := s.tracer.Start(ctx, "factstore.load")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(category)))

	doc, err := s.read(category)
	if err != nil {
		s.logger.Warn("fact document unreadable, using default",
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return emptyDocument(category)
	}
	if doc == nil {
		return emptyDocument(category)
	}
	return doc
}

// Save merges fields into the category's document and persists it.
// Merge is a shallow field-by-field replace: list-valued fields are
// replaced wholesale, never appended.
func (s *Store) Save(ctx context.Context, category Category, fields map[string]any, opts SaveOptions) (*Document, error) {
	ctx, span := s.tracer.Start(ctx, "factstore.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", string(category)),
		attribute.Bool("refresh", opts.RefreshFromExtractor),
	)

	signature := ""
	if opts.RefreshFromExtractor {
		extracted, sig, err := s.extract(ctx, category)
		if err != nil {
			return nil, err
		}
		signature = sig
		// Extracted fields form the base; explicit fields win on top.
		merged := make(map[string]any, len(extracted)+len(fields))
		for k, v := range extracted {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		fields = merged
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked(category)
	if err != nil {
		// Corrupt document self-heals to the default.
		s.logger.Warn("resetting corrupt fact document",
			zap.String("category", string(category)),
			zap.Error(err),
		)
		doc = nil
	}
	if doc == nil {
		doc = emptyDocument(category)
	}

	for k, v := range fields {
		doc.Fields[k] = v
	}
	if signature != "" {
		doc.SourceSignature = signature
	}
	doc.SchemaVersion = SchemaVersion
	doc.LastUpdated = time.Now()

	if err := s.writeLocked(doc); err != nil {
		return nil, err
	}

	if s.saveCounter != nil {
		s.saveCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(category)),
			attribute.Bool("refresh", opts.RefreshFromExtractor),
		))
	}

	s.logger.Debug("saved fact document",
		zap.String("category", string(category)),
		zap.Int("field_count", len(doc.Fields)),
	)
	return doc, nil
}

// Query returns every document whose serialized form contains text,
// case-insensitively. It never fails; unreadable documents are skipped.
func (s *Store) Query(ctx context.Context, text string) []QueryResult {
	_, span := s.tracer.Start(ctx, "factstore.query")
	defer span.End()

	needle := strings.ToLower(text)
	var results []QueryResult

	for _, category := range Categories() {
		doc, err := s.read(category)
		if err != nil || doc == nil {
			continue
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(raw)), needle) {
			results = append(results, QueryResult{Category: category, Document: doc})
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	return results
}

// Summary reports existence and freshness per category without
// deserializing payloads.
func (s *Store) Summary(ctx context.Context) map[Category]CategoryStatus {
	_, span := s.tracer.Start(ctx, "factstore.summary")
	defer span.End()

	out := make(map[Category]CategoryStatus, len(Categories()))
	for _, category := range Categories() {
		info, err := os.Stat(s.path(category))
		if err != nil {
			out[category] = CategoryStatus{Exists: false}
			continue
		}
		out[category] = CategoryStatus{Exists: true, LastUpdated: info.ModTime()}
	}
	return out
}

// Forget deletes the persisted document. The category reverts to its
// default on the next Load. Forgetting an absent category is a no-op.
func (s *Store) Forget(ctx context.Context, category Category) error {
	_, span := s.tracer.Start(ctx, "factstore.forget")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(category)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(category)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete fact document: %w", err)
	}
	delete(s.seen, category)

	s.logger.Info("forgot fact category", zap.String("category", string(category)))
	return nil
}

// Refresh forces re-extraction for the given categories, or for every
// category with a registered extractor when none are given. The result
// maps each category to its outcome; one failed extraction does not
// abort the rest.
func (s *Store) Refresh(ctx context.Context, categories []Category) map[Category]error {
	ctx, span := s.tracer.Start(ctx, "factstore.refresh")
	defer span.End()

	if len(categories) == 0 {
		for _, category := range Categories() {
			if s.registry != nil {
				if _, ok := s.registry.Extractor(category); ok {
					categories = append(categories, category)
				}
			}
		}
	}

	out := make(map[Category]error, len(categories))
	for _, category := range categories {
		_, err := s.Save(ctx, category, nil, SaveOptions{RefreshFromExtractor: true})
		out[category] = err
	}
	return out
}

// extract runs the registered extractor for a category. A partial
// result (bounded scan cut short) is persisted with a warning rather
// than failing the request.
func (s *Store) extract(ctx context.Context, category Category) (map[string]any, string, error) {
	if s.registry == nil {
		return nil, "", fmt.Errorf("%w: no extractor registry configured", ErrNotFound)
	}
	ext, ok := s.registry.Extractor(category)
	if !ok {
		return nil, "", fmt.Errorf("%w: no extractor for category %q", ErrNotFound, category)
	}

	fields, signature, err := ext.Extract(ctx, s.config.ProjectRoot)
	if err != nil {
		if fields == nil {
			return nil, "", fmt.Errorf("extraction failed for %q: %w", category, err)
		}
		s.logger.Warn("extraction returned partial result",
			zap.String("category", string(category)),
			zap.Error(err),
		)
	}
	return fields, signature, nil
}

// read loads a document from disk, logging when the file changed
// underneath the store since it was last observed. Returns (nil, nil)
// when absent.
func (s *Store) read(category Category) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(category)
}

func (s *Store) readLocked(category Category) (*Document, error) {
	path := s.path(category)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat fact document: %w", err)
	}

	if prev, ok := s.seen[category]; ok && !prev.Equal(info.ModTime()) {
		s.logger.Warn("fact document modified externally, re-reading",
			zap.String("category", string(category)),
			zap.Time("cached_mtime", prev),
			zap.Time("disk_mtime", info.ModTime()),
		)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fact document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: document version %d newer than supported %d",
			ErrSchemaMismatch, doc.SchemaVersion, SchemaVersion)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	doc.Category = category

	s.seen[category] = info.ModTime()
	return &doc, nil
}

// writeLocked persists a document all-or-nothing: temp file in the same
// directory, then atomic rename.
func (s *Store) writeLocked(doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fact document: %w", err)
	}
	if int64(len(raw)) > s.config.MaxDocumentBytes {
		return fmt.Errorf("%w: document for %q is %d bytes (max %d)",
			ErrInvalidInput, doc.Category, len(raw), s.config.MaxDocumentBytes)
	}

	if err := os.MkdirAll(s.config.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}

	path := s.path(doc.Category)
	tmp, err := os.CreateTemp(s.config.Dir, string(doc.Category)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace fact document: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		s.seen[doc.Category] = info.ModTime()
	}
	return nil
}
