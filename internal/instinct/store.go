package instinct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/instinct"

// Config configures the instinct store.
type Config struct {
	// Path is the JSON file holding the full store.
	Path string

	// MaxExamples caps the examples kept per record (default: 5).
	MaxExamples int

	// Reinforcement tunes the confidence algorithm.
	Reinforcement ReinforcementConfig

	// DecayStep is the confidence reduction applied per Decay call to
	// stale records (default: 0.05).
	DecayStep float64

	// DecayFloor is the lowest confidence Decay can reach (default: 0.1).
	DecayFloor float64
}

// DefaultConfig returns sensible defaults for a store at path.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:          path,
		MaxExamples:   5,
		Reinforcement: DefaultReinforcementConfig(),
		DecayStep:     0.05,
		DecayFloor:    0.1,
	}
}

// storeDocument is the persisted envelope for the whole store.
type storeDocument struct {
	SchemaVersion int       `json:"schema_version"`
	Records       []*Record `json:"records"`
}

// Store holds pattern records keyed by a stable identifier and owns the
// reinforcement confidence algorithm. The whole store persists as a
// single JSON document, rewritten atomically on every mutation.
type Store struct {
	config *Config
	logger *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	recordCounter metric.Int64Counter

	mu      sync.RWMutex
	records map[string]*Record
}

// NewStore creates an instinct store, loading any persisted records.
// A corrupt store file is treated as empty (logged, not fatal).
func NewStore(cfg *Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("store path is required")
	}
	if cfg.MaxExamples == 0 {
		cfg.MaxExamples = 5
	}
	if cfg.Reinforcement == (ReinforcementConfig{}) {
		cfg.Reinforcement = DefaultReinforcementConfig()
	}
	if cfg.DecayStep == 0 {
		cfg.DecayStep = 0.05
	}
	if cfg.DecayFloor == 0 {
		cfg.DecayFloor = 0.1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
		records: make(map[string]*Record),
	}

	var err error
	s.recordCounter, err = s.meter.Int64Counter(
		"instinctd.instinct.records_total",
		metric.WithDescription("Total number of instinct record calls"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		logger.Warn("failed to create record counter", zap.Error(err))
	}

	s.load()
	return s, nil
}

// Record inserts a new pattern or reinforces an existing one.
//
// Unseen ids are inserted with the candidate's confidence and an
// observation count of 1. Seen ids get their count incremented, the
// example appended (deduplicated, capped, oldest dropped), and
// confidence recomputed by the reinforcement algorithm. Confidence
// never leaves [0,1] and never decreases on this path.
func (s *Store) Record(ctx context.Context, candidate *Candidate) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "instinct.record")
	defer span.End()

	if candidate == nil {
		return nil, fmt.Errorf("%w: nil candidate", ErrInvalidInput)
	}
	if err := candidate.Validate(); err != nil {
		span.SetAttributes(attribute.Bool("rejected", true))
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	span.SetAttributes(attribute.String("instinct_id", candidate.ID))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec, seen := s.records[candidate.ID]
	if !seen {
		rec = &Record{
			ID:               candidate.ID,
			Description:      candidate.Description,
			Context:          candidate.Context,
			Confidence:       clamp01(candidate.Confidence),
			ObservationCount: 1,
			Source:           candidate.Source,
			FirstSeen:        now,
			LastUsed:         now,
		}
		if rec.Source == "" {
			rec.Source = SourceDirect
		}
		if candidate.Example != "" {
			rec.Examples = []string{candidate.Example}
		}
		s.records[rec.ID] = rec
	} else {
		rec.ObservationCount++
		rec.Confidence = s.config.Reinforcement.reinforce(
			rec.Confidence, candidate.Confidence, rec.ObservationCount)
		if candidate.Description != "" {
			rec.Description = candidate.Description
		}
		if candidate.Context != "" {
			rec.Context = candidate.Context
		}
		if candidate.Example != "" {
			rec.Examples = appendExample(rec.Examples, candidate.Example, s.config.MaxExamples)
		}
		rec.LastUsed = now
	}

	if err := s.persistLocked(); err != nil {
		if !seen {
			delete(s.records, candidate.ID)
		}
		return nil, err
	}

	if s.recordCounter != nil {
		s.recordCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("reinforced", seen),
		))
	}

	s.logger.Debug("recorded instinct",
		zap.String("id", rec.ID),
		zap.Int("observation_count", rec.ObservationCount),
		zap.Float64("confidence", rec.Confidence),
	)

	copied := *rec
	copied.Examples = append([]string(nil), rec.Examples...)
	return &copied, nil
}

// Get returns the record for an id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *rec
	copied.Examples = append([]string(nil), rec.Examples...)
	return &copied, nil
}

// List returns records matching the filter, ordered by confidence
// descending, ties broken by id. A nil filter returns everything.
func (s *Store) List(ctx context.Context, filter *Filter) []*Record {
	_, span := s.tracer.Start(ctx, "instinct.list")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter != nil {
			if rec.Confidence < filter.MinConfidence {
				continue
			}
			if filter.Context != "" && rec.Context != filter.Context {
				continue
			}
		}
		copied := *rec
		copied.Examples = append([]string(nil), rec.Examples...)
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out
}

// Decay lowers confidence for records not used since the cutoff. It is
// an opt-in policy hook: nothing in the default request paths calls it,
// so the default algorithm stays non-decreasing. Each call subtracts
// one DecayStep from every stale record, floored at DecayFloor.
// Returns the number of records decayed.
func (s *Store) Decay(ctx context.Context, olderThan time.Duration) (int, error) {
	_, span := s.tracer.Start(ctx, "instinct.decay")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	decayed := 0
	for _, rec := range s.records {
		if rec.LastUsed.After(cutoff) {
			continue
		}
		if rec.Confidence <= s.config.DecayFloor {
			continue
		}
		rec.Confidence -= s.config.DecayStep
		if rec.Confidence < s.config.DecayFloor {
			rec.Confidence = s.config.DecayFloor
		}
		decayed++
	}

	if decayed > 0 {
		if err := s.persistLocked(); err != nil {
			return 0, err
		}
		s.logger.Info("decayed stale instincts",
			zap.Int("count", decayed),
			zap.Duration("older_than", olderThan),
		)
	}

	span.SetAttributes(attribute.Int("decayed", decayed))
	return decayed, nil
}

// Snapshot returns a deep copy of every record, for checkpointing.
func (s *Store) Snapshot(ctx context.Context) []*Record {
	return s.List(ctx, nil)
}

// appendExample appends a deduplicated example, trimming to cap by
// dropping the oldest entries.
func appendExample(examples []string, example string, max int) []string {
	for _, e := range examples {
		if e == example {
			return examples
		}
	}
	examples = append(examples, example)
	if len(examples) > max {
		examples = examples[len(examples)-max:]
	}
	return examples
}

// load reads the persisted store; corruption degrades to empty.
func (s *Store) load() {
	raw, err := os.ReadFile(s.config.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read instinct store", zap.Error(err))
		}
		return
	}

	var doc storeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("instinct store corrupt, starting empty", zap.Error(err))
		return
	}
	if doc.SchemaVersion > SchemaVersion {
		s.logger.Warn("instinct store schema newer than supported, starting empty",
			zap.Int("found", doc.SchemaVersion),
			zap.Int("supported", SchemaVersion),
		)
		return
	}

	for _, rec := range doc.Records {
		if rec == nil || rec.ID == "" {
			continue
		}
		rec.Confidence = clamp01(rec.Confidence)
		s.records[rec.ID] = rec
	}
}

// persistLocked writes the whole store atomically.
func (s *Store) persistLocked() error {
	doc := storeDocument{SchemaVersion: SchemaVersion}
	doc.Records = make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		doc.Records = append(doc.Records, rec)
	}
	sort.Slice(doc.Records, func(i, j int) bool {
		return doc.Records[i].ID < doc.Records[j].ID
	})

	raw, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instinct store: %w", err)
	}

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "instincts.*.tmp")
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
	if err := os.Rename(tmpName, s.config.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace instinct store: %w", err)
	}
	return nil
}
