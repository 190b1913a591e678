package compaction

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/compaction"

// Retention scores. The exact values only matter relative to each
// other: focus beats protected beats everything else.
const (
	scoreHigh   = 1.0
	scoreMedium = 0.5
	scoreLow    = 0.1
)

// Config configures the planner.
type Config struct {
	// ProtectedConfidence is the instinct confidence at or above which
	// an item may never land in drop (default: 0.7).
	ProtectedConfidence float64

	// SynopsisBytes caps each synopsis when the budget does not set its
	// own limit (default: 256).
	SynopsisBytes int
}

// DefaultConfig returns the planner defaults.
func DefaultConfig() *Config {
	return &Config{
		ProtectedConfidence: 0.7,
		SynopsisBytes:       256,
	}
}

// Planner partitions context items into retain/summarize/drop under a
// size budget. It is a pure decision function per invocation: no state
// is carried between calls and nothing is ever applied to the stores.
type Planner struct {
	config *Config
	logger *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	planCounter metric.Int64Counter
}

// NewPlanner creates a compaction planner.
func NewPlanner(cfg *Config, logger *zap.Logger) (*Planner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ProtectedConfidence == 0 {
		cfg.ProtectedConfidence = 0.7
	}
	if cfg.SynopsisBytes == 0 {
		cfg.SynopsisBytes = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Planner{
		config: cfg,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	p.planCounter, err = p.meter.Int64Counter(
		"instinctd.compaction.plans_total",
		metric.WithDescription("Total number of compaction plans produced"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		logger.Warn("failed to create plan counter", zap.Error(err))
	}

	return p, nil
}

// Plan scores every item against the focus hint and strategy, then
// greedily fills retain by score under the budget. Over-budget items
// with a non-trivial score (and every protected instinct) move to
// summarize; the rest is dropped.
func (p *Planner) Plan(ctx context.Context, items []Item, budget Budget, focus FocusHint, strategy Strategy) (*Plan, error) {
	ctx, span := p.tracer.Start(ctx, "compaction.plan")
	defer span.End()
	span.SetAttributes(
		attribute.Int("item_count", len(items)),
		attribute.Int("budget_bytes", budget.MaxBytes),
		attribute.String("strategy", string(strategy)),
	)

	if budget.MaxBytes <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive, got %d", ErrInvalidInput, budget.MaxBytes)
	}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: unknown strategy", ErrInvalidInput)
	}
	for _, item := range items {
		if item.Ref == "" {
			return nil, fmt.Errorf("%w: item ref is required", ErrInvalidInput)
		}
		if item.SizeBytes < 0 {
			return nil, fmt.Errorf("%w: item %q has negative size", ErrInvalidInput, item.Ref)
		}
	}

	synopsisBytes := budget.SynopsisBytes
	if synopsisBytes <= 0 {
		synopsisBytes = p.config.SynopsisBytes
	}

	type scored struct {
		item      Item
		score     float64
		protected bool
	}
	ranked := make([]scored, 0, len(items))
	sizeBefore := 0
	for _, item := range items {
		sizeBefore += item.SizeBytes
		ranked = append(ranked, scored{
			item:      item,
			score:     p.score(item, focus, strategy),
			protected: item.Kind == KindInstinct && item.Confidence >= p.config.ProtectedConfidence,
		})
	}

	// Score descending, ref as a deterministic tie-break.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.Ref < ranked[j].item.Ref
	})

	plan := &Plan{
		Retain:              []Item{},
		Summarize:           []Summary{},
		Drop:                []Item{},
		EstimatedSizeBefore: sizeBefore,
	}

	used := 0
	for _, r := range ranked {
		if used+r.item.SizeBytes <= budget.MaxBytes {
			plan.Retain = append(plan.Retain, r.item)
			used += r.item.SizeBytes
			continue
		}
		// Synopses are budgeted separately from retain.
		if r.protected || r.score > scoreLow {
			plan.Summarize = append(plan.Summarize, Summary{
				Ref:      r.item.Ref,
				Synopsis: synopsize(r.item, synopsisBytes),
			})
			continue
		}
		plan.Drop = append(plan.Drop, r.item)
	}

	plan.EstimatedSizeAfter = used
	for _, s := range plan.Summarize {
		plan.EstimatedSizeAfter += len(s.Synopsis)
	}

	if p.planCounter != nil {
		p.planCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", string(strategy)),
		))
	}
	p.logger.Debug("produced compaction plan",
		zap.String("strategy", string(strategy)),
		zap.Int("retain", len(plan.Retain)),
		zap.Int("summarize", len(plan.Summarize)),
		zap.Int("drop", len(plan.Drop)),
		zap.Int("size_before", plan.EstimatedSizeBefore),
		zap.Int("size_after", plan.EstimatedSizeAfter),
	)
	span.SetAttributes(attribute.Int("dropped", len(plan.Drop)))
	return plan, nil
}

// score assigns the retention score for one item.
func (p *Planner) score(item Item, focus FocusHint, strategy Strategy) float64 {
	if p.matchesFocus(item, focus, strategy) {
		return scoreHigh
	}
	if item.Kind == KindInstinct && item.Confidence >= p.config.ProtectedConfidence {
		return scoreMedium
	}
	return scoreLow
}

// matchesFocus decides whether an item counts as focus-relevant under
// the given strategy.
func (p *Planner) matchesFocus(item Item, focus FocusHint, strategy Strategy) bool {
	instinctMatch := item.Kind == KindInstinct &&
		focus.ActiveInstinctContext != "" &&
		item.Context == focus.ActiveInstinctContext

	switch strategy {
	case StrategyModuleFocused:
		return item.Kind == KindFact &&
			focus.ActiveCategory != "" &&
			item.Category == focus.ActiveCategory
	case StrategyLayerFocused:
		return item.Kind == KindFact &&
			(item.Category == factstore.CategoryArchitecture ||
				item.Category == factstore.CategoryStructure)
	case StrategyTestFocused:
		return item.Kind == KindFact && item.Category == factstore.CategoryTest
	default: // smart
		if instinctMatch {
			return true
		}
		return item.Kind == KindFact &&
			focus.ActiveCategory != "" &&
			item.Category == focus.ActiveCategory
	}
}

// synopsize trims an item's body to a fixed byte budget without
// splitting a UTF-8 sequence. An item with no body falls back to its
// ref.
func synopsize(item Item, maxBytes int) string {
	body := item.Body
	if body == "" {
		body = item.Ref
	}
	if len(body) <= maxBytes {
		return body
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
