package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/checkpoint"

// nameRe constrains checkpoint names to filesystem-safe identifiers.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// Config configures the checkpoint manager.
type Config struct {
	// Dir is the directory holding one JSON document per checkpoint.
	Dir string

	// ProjectRoot anchors VCS pointer capture.
	ProjectRoot string

	// Keep is the retention count used by automatic pruning (default: 20).
	Keep int
}

// DefaultConfig returns sensible defaults rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{Dir: dir, Keep: 20}
}

// Manager snapshots both stores atomically as one unit. It is the only
// component that reads the fact store and the instinct store together.
// Restore is non-destructive: it returns the snapshot plus a diff, and
// the caller decides what to apply.
type Manager struct {
	config    *Config
	facts     *factstore.Store
	instincts *instinct.Store
	logger    *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	saveCounter metric.Int64Counter
}

// NewManager creates a checkpoint manager.
func NewManager(cfg *Config, facts *factstore.Store, instincts *instinct.Store, logger *zap.Logger) (*Manager, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, errors.New("checkpoint dir is required")
	}
	if facts == nil {
		return nil, errors.New("fact store is required")
	}
	if instincts == nil {
		return nil, errors.New("instinct store is required")
	}
	if cfg.Keep == 0 {
		cfg.Keep = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		config:    cfg,
		facts:     facts,
		instincts: instincts,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}

	var err error
	m.saveCounter, err = m.meter.Int64Counter(
		"instinctd.checkpoint.saves_total",
		metric.WithDescription("Total number of checkpoints saved"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		logger.Warn("failed to create save counter", zap.Error(err))
	}

	return m, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.config.Dir, name+".json")
}

// Save creates a checkpoint from the live stores. It fails only when
// the name is invalid or already taken without Overwrite.
func (m *Manager) Save(ctx context.Context, name string, level Level, opts SaveOptions) (*Checkpoint, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("name", name),
		attribute.String("level", string(level)),
	)

	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid checkpoint name %q", ErrInvalidInput, name)
	}
	if _, err := ParseLevel(string(level)); err != nil {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidInput, level)
	}

	if _, err := os.Stat(m.path(name)); err == nil && !opts.Overwrite {
		return nil, fmt.Errorf("%w: %s (pass overwrite to replace)", ErrAlreadyExists, name)
	}

	cp := &Checkpoint{
		ID:            uuid.New().String(),
		Name:          name,
		SchemaVersion: SchemaVersion,
		Level:         level,
		VCS:           CaptureVCS(m.config.ProjectRoot, m.logger),
		Facts:         make(map[factstore.Category]*factstore.Document),
		CreatedAt:     time.Now(),
	}

	for _, category := range level.factSubset() {
		cp.Facts[category] = m.facts.Load(ctx, category)
	}
	if level.includesInstincts() {
		cp.Instincts = m.instincts.Snapshot(ctx)
	}

	if err := m.write(cp); err != nil {
		return nil, err
	}

	if m.saveCounter != nil {
		m.saveCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", string(level)),
		))
	}

	m.logger.Info("saved checkpoint",
		zap.String("name", cp.Name),
		zap.String("level", string(cp.Level)),
		zap.Int("fact_count", len(cp.Facts)),
		zap.Int("instinct_count", len(cp.Instincts)),
	)
	return cp, nil
}

// List returns checkpoint descriptors, newest first.
func (m *Manager) List(ctx context.Context) ([]Descriptor, error) {
	_, span := m.tracer.Start(ctx, "checkpoint.list")
	defer span.End()

	entries, err := os.ReadDir(m.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Descriptor{}, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint dir: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		cp, err := m.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			m.logger.Warn("skipping unreadable checkpoint",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		descriptors = append(descriptors, Descriptor{
			Name:      cp.Name,
			Level:     cp.Level,
			CreatedAt: cp.CreatedAt,
		})
	}

	sort.Slice(descriptors, func(i, j int) bool {
		if !descriptors[i].CreatedAt.Equal(descriptors[j].CreatedAt) {
			return descriptors[i].CreatedAt.After(descriptors[j].CreatedAt)
		}
		return descriptors[i].Name < descriptors[j].Name
	})

	span.SetAttributes(attribute.Int("result_count", len(descriptors)))
	return descriptors, nil
}

// Restore returns the stored snapshot unchanged, plus a diff against
// the live stores. The live stores are never mutated.
func (m *Manager) Restore(ctx context.Context, name string) (*RestoreResult, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.restore")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	cp, err := m.read(name)
	if err != nil {
		return nil, err
	}

	diff := Diff{
		LiveInstinctCount:     len(m.instincts.Snapshot(ctx)),
		SnapshotInstinctCount: len(cp.Instincts),
	}
	for category, snapDoc := range cp.Facts {
		liveDoc := m.facts.Load(ctx, category)
		if !reflect.DeepEqual(snapDoc.Fields, liveDoc.Fields) {
			diff.ChangedCategories = append(diff.ChangedCategories, category)
		}
	}
	sort.Slice(diff.ChangedCategories, func(i, j int) bool {
		return diff.ChangedCategories[i] < diff.ChangedCategories[j]
	})

	m.logger.Info("restored checkpoint snapshot",
		zap.String("name", name),
		zap.Int("changed_categories", len(diff.ChangedCategories)),
	)
	return &RestoreResult{Checkpoint: cp, Diff: diff}, nil
}

// Delete removes a checkpoint.
func (m *Manager) Delete(ctx context.Context, name string) error {
	_, span := m.tracer.Start(ctx, "checkpoint.delete")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid checkpoint name %q", ErrInvalidInput, name)
	}
	if err := os.Remove(m.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("deleted checkpoint", zap.String("name", name))
	return nil
}

// Prune deletes all but the keep most recently created checkpoints,
// ties broken by name. keep <= 0 uses the configured retention.
func (m *Manager) Prune(ctx context.Context, keep int) (int, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.prune")
	defer span.End()

	if keep <= 0 {
		keep = m.config.Keep
	}

	descriptors, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(descriptors) <= keep {
		return 0, nil
	}

	pruned := 0
	for _, d := range descriptors[keep:] {
		if err := m.Delete(ctx, d.Name); err != nil {
			m.logger.Warn("failed to prune checkpoint",
				zap.String("name", d.Name),
				zap.Error(err),
			)
			continue
		}
		pruned++
	}

	span.SetAttributes(attribute.Int("pruned", pruned))
	m.logger.Info("pruned checkpoints", zap.Int("pruned", pruned), zap.Int("keep", keep))
	return pruned, nil
}

// Export serializes one checkpoint to a portable JSON document.
func (m *Manager) Export(ctx context.Context, name string) ([]byte, error) {
	_, span := m.tracer.Start(ctx, "checkpoint.export")
	defer span.End()

	cp, err := m.read(name)
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return raw, nil
}

// Import validates a portable document and inserts it as a checkpoint.
// Schema or field mismatches reject the document; nothing is coerced.
func (m *Manager) Import(ctx context.Context, document []byte, opts SaveOptions) (*Checkpoint, error) {
	_, span := m.tracer.Start(ctx, "checkpoint.import")
	defer span.End()

	var cp Checkpoint
	if err := json.Unmarshal(document, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if cp.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: document version %d, supported %d",
			ErrSchemaMismatch, cp.SchemaVersion, SchemaVersion)
	}
	if !nameRe.MatchString(cp.Name) {
		return nil, fmt.Errorf("%w: invalid checkpoint name %q", ErrInvalidInput, cp.Name)
	}
	if _, err := ParseLevel(string(cp.Level)); err != nil || cp.Level == "" {
		return nil, fmt.Errorf("%w: unknown level %q", ErrSchemaMismatch, cp.Level)
	}
	if cp.ID == "" || cp.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing required fields", ErrSchemaMismatch)
	}
	for _, rec := range cp.Instincts {
		if rec.Confidence < 0 || rec.Confidence > 1 {
			return nil, fmt.Errorf("%w: instinct %q confidence out of range", ErrSchemaMismatch, rec.ID)
		}
	}

	if _, err := os.Stat(m.path(cp.Name)); err == nil && !opts.Overwrite {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, cp.Name)
	}

	if err := m.write(&cp); err != nil {
		return nil, err
	}

	m.logger.Info("imported checkpoint", zap.String("name", cp.Name))
	return &cp, nil
}

// read loads and validates a checkpoint document.
func (m *Manager) read(name string) (*Checkpoint, error) {
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid checkpoint name %q", ErrInvalidInput, name)
	}

	raw, err := os.ReadFile(m.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if cp.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: document version %d newer than supported %d",
			ErrSchemaMismatch, cp.SchemaVersion, SchemaVersion)
	}
	if cp.Facts == nil {
		cp.Facts = make(map[factstore.Category]*factstore.Document)
	}
	return &cp, nil
}

// write persists a checkpoint all-or-nothing.
func (m *Manager) write(cp *Checkpoint) error {
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(m.config.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(m.config.Dir, cp.Name+".*.tmp")
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
	if err := os.Rename(tmpName, m.path(cp.Name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}
