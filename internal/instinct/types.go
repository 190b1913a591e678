package instinct

import (
	"errors"
	"fmt"
	"time"
)

// Common errors for instinct store operations.
var (
	ErrNotFound          = errors.New("instinct not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyID           = errors.New("instinct id cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
)

// SchemaVersion is the current instinct store schema version.
const SchemaVersion = 1

// Source indicates how a pattern was captured.
type Source string

const (
	// SourceDirect means the pattern was captured from a single artifact.
	SourceDirect Source = "direct"

	// SourceObserved means the pattern was inferred by cross-session analysis.
	SourceObserved Source = "observed"
)

// Record is one recognized recurring pattern with an evolving
// confidence score.
type Record struct {
	// ID is the stable, detector-assigned identifier and dedup key.
	ID string `json:"id"`

	// Description summarizes the pattern.
	Description string `json:"description"`

	// Context is a grouping tag, e.g. a pattern family.
	Context string `json:"context"`

	// Confidence is the reliability score, always within [0,1].
	Confidence float64 `json:"confidence"`

	// ObservationCount is how many times the pattern has been recorded.
	ObservationCount int `json:"observation_count"`

	// Examples holds recent observation examples, deduplicated and
	// capped; the oldest entry is dropped first.
	Examples []string `json:"examples,omitempty"`

	// Source records how the pattern was captured.
	Source Source `json:"source"`

	FirstSeen time.Time `json:"first_seen"`
	LastUsed  time.Time `json:"last_used"`
}

// Candidate is a pattern observation handed in by a detector.
type Candidate struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Context     string  `json:"context"`
	Confidence  float64 `json:"confidence"`
	Example     string  `json:"example,omitempty"`
	Source      Source  `json:"source,omitempty"`
}

// Validate checks candidate invariants before they enter the store.
func (c *Candidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w", ErrEmptyID)
	}
	if c.Confidence < 0.0 || c.Confidence > 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, c.Confidence)
	}
	if c.Source != "" && c.Source != SourceDirect && c.Source != SourceObserved {
		return fmt.Errorf("%w: source must be %q or %q", ErrInvalidInput, SourceDirect, SourceObserved)
	}
	return nil
}

// Filter narrows List results.
type Filter struct {
	// MinConfidence excludes records below this confidence.
	MinConfidence float64

	// Context, when set, matches records with this grouping tag.
	Context string
}
