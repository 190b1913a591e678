package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
)

// Common errors for checkpoint operations.
var (
	ErrNotFound       = errors.New("checkpoint not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrAlreadyExists is a rejected-input case: saving over an existing
	// name requires the explicit overwrite flag.
	ErrAlreadyExists = fmt.Errorf("%w: checkpoint already exists", ErrInvalidInput)
)

// SchemaVersion is the current checkpoint document schema version.
const SchemaVersion = 1

// Level selects how much state a checkpoint captures.
type Level string

const (
	// LevelQuick captures a minimal fact subset and no instincts.
	LevelQuick Level = "quick"

	// LevelStandard adds build/test-relevant facts and the full
	// instinct snapshot.
	LevelStandard Level = "standard"

	// LevelFull captures every registered fact category and the full
	// instinct snapshot.
	LevelFull Level = "full"
)

// ParseLevel validates a level name from the boundary.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelQuick, LevelStandard, LevelFull:
		return Level(s), nil
	case "":
		return LevelStandard, nil
	}
	return "", ErrInvalidInput
}

// factSubset returns the categories captured at this level.
func (l Level) factSubset() []factstore.Category {
	switch l {
	case LevelQuick:
		return []factstore.Category{factstore.CategoryStructure}
	case LevelStandard:
		return []factstore.Category{
			factstore.CategoryStructure,
			factstore.CategoryDependencies,
			factstore.CategoryBuild,
			factstore.CategoryTest,
		}
	default:
		return factstore.Categories()
	}
}

// includesInstincts reports whether this level snapshots the instinct store.
func (l Level) includesInstincts() bool {
	return l == LevelStandard || l == LevelFull
}

// VCSPointer is an opaque pass-through pointer into version control,
// captured at save time and never interpreted by the manager.
type VCSPointer struct {
	Branch   string `json:"branch,omitempty"`
	Revision string `json:"revision,omitempty"`
	Dirty    bool   `json:"dirty"`
}

// Checkpoint is an immutable point-in-time snapshot of both stores.
type Checkpoint struct {
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`

	// Name is the unique, caller-chosen name.
	Name string `json:"name"`

	// SchemaVersion is the checkpoint document schema version.
	SchemaVersion int `json:"schema_version"`

	// Level is the capture level this checkpoint was taken at.
	Level Level `json:"level"`

	// VCS points at the version-control state at save time.
	VCS VCSPointer `json:"vcs"`

	// Facts is the captured fact subset, keyed by category.
	Facts map[factstore.Category]*factstore.Document `json:"facts"`

	// Instincts is the full instinct snapshot (empty at quick level).
	Instincts []*instinct.Record `json:"instincts,omitempty"`

	// CreatedAt is when this checkpoint was created.
	CreatedAt time.Time `json:"created_at"`
}

// SaveOptions controls Save behavior.
type SaveOptions struct {
	// Overwrite replaces an existing checkpoint with the same name.
	Overwrite bool
}

// Descriptor is a checkpoint listing entry.
type Descriptor struct {
	Name      string    `json:"name"`
	Level     Level     `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// Diff describes how a snapshot differs from the live stores. Restore
// returns it alongside the snapshot; applying it is the caller's
// responsibility.
type Diff struct {
	// ChangedCategories are captured categories whose snapshot payload
	// differs from the live document.
	ChangedCategories []factstore.Category `json:"changed_categories,omitempty"`

	// LiveInstinctCount and SnapshotInstinctCount compare store sizes.
	LiveInstinctCount     int `json:"live_instinct_count"`
	SnapshotInstinctCount int `json:"snapshot_instinct_count"`
}

// RestoreResult pairs the read-only snapshot with its diff against the
// live stores.
type RestoreResult struct {
	Checkpoint *Checkpoint `json:"checkpoint"`
	Diff       Diff        `json:"diff"`
}
