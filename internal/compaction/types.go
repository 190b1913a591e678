package compaction

import (
	"errors"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
)

// Common errors for compaction planning.
var (
	ErrInvalidInput = errors.New("invalid input")
)

// Kind classifies a context item for scoring purposes.
type Kind string

const (
	// KindFact is a fact document payload (or a slice of one).
	KindFact Kind = "fact"

	// KindInstinct is an instinct record. High-confidence instincts are
	// protected from dropping.
	KindInstinct Kind = "instinct"

	// KindNote is free-form working context with no special protection.
	KindNote Kind = "note"
)

// Strategy selects which items count as focus-relevant.
type Strategy string

const (
	// StrategyModuleFocused favors items about the active category.
	StrategyModuleFocused Strategy = "moduleFocused"

	// StrategyLayerFocused favors architectural and structural items.
	StrategyLayerFocused Strategy = "layerFocused"

	// StrategyTestFocused favors test-related items.
	StrategyTestFocused Strategy = "testFocused"

	// StrategySmart combines the focus hint with a broad relevance net.
	StrategySmart Strategy = "smart"
)

// ParseStrategy validates a strategy name from the boundary. Empty
// defaults to smart.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyModuleFocused, StrategyLayerFocused, StrategyTestFocused, StrategySmart:
		return Strategy(s), nil
	case "":
		return StrategySmart, nil
	}
	return "", ErrInvalidInput
}

// Item is one unit of context under consideration. Items are opaque to
// the planner beyond the metadata carried here.
type Item struct {
	// Ref identifies the item to the caller (fact category, instinct
	// id, or any caller-chosen key).
	Ref string `json:"ref"`

	// Kind classifies the item.
	Kind Kind `json:"kind"`

	// Category is set for fact-derived items.
	Category factstore.Category `json:"category,omitempty"`

	// Context is the grouping tag for instinct-derived items.
	Context string `json:"context,omitempty"`

	// Confidence is the instinct confidence, when Kind is instinct.
	Confidence float64 `json:"confidence,omitempty"`

	// SizeBytes is the item's serialized size.
	SizeBytes int `json:"size_bytes"`

	// Body is the item's text, used only to derive a synopsis.
	Body string `json:"body,omitempty"`
}

// FocusHint tells the planner what the caller is working on right now.
type FocusHint struct {
	// ActiveCategory is the fact category in active use, if any.
	ActiveCategory factstore.Category `json:"active_category,omitempty"`

	// ActiveInstinctContext is the instinct grouping tag in active use.
	ActiveInstinctContext string `json:"active_instinct_context,omitempty"`
}

// Budget bounds the retained set.
type Budget struct {
	// MaxBytes is the cumulative size allowed in retain.
	MaxBytes int `json:"max_bytes"`

	// SynopsisBytes caps each synopsis; zero uses the planner default.
	SynopsisBytes int `json:"synopsis_bytes,omitempty"`
}

// Summary replaces an over-budget item with a fixed-size synopsis.
type Summary struct {
	Ref      string `json:"ref"`
	Synopsis string `json:"synopsis"`
}

// Plan partitions the input items into retain, summarize and drop. The
// plan is advisory: applying it is a separate caller action, and
// callers should checkpoint before applying any plan with drops.
type Plan struct {
	Retain    []Item    `json:"retain"`
	Summarize []Summary `json:"summarize"`
	Drop      []Item    `json:"drop"`

	// EstimatedSizeBefore and EstimatedSizeAfter compare the full input
	// against retain plus synopses.
	EstimatedSizeBefore int `json:"estimated_size_before"`
	EstimatedSizeAfter  int `json:"estimated_size_after"`
}
