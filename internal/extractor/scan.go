package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// ErrScanBound reports that a bounded scan was cut short. Callers still
// receive the partial result gathered before the bound was hit.
var ErrScanBound = errors.New("extraction scan bound exceeded")

// ScanConfig bounds a file-tree walk.
type ScanConfig struct {
	// MaxFiles stops the walk after visiting this many files.
	MaxFiles int

	// MaxDepth skips directories nested deeper than this.
	MaxDepth int

	// Timeout is the wall-clock cutoff for the whole walk.
	Timeout time.Duration
}

// DefaultScanConfig returns conservative bounds.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		MaxFiles: 5000,
		MaxDepth: 12,
		Timeout:  5 * time.Second,
	}
}

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".instinctd":   true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"target":       true,
	"dist":         true,
}

// walk visits regular files under root within the configured bounds,
// calling visit with the path relative to root. It returns ErrScanBound
// (wrapped) when a bound cut the walk short; everything visited up to
// that point has already been delivered.
func walk(ctx context.Context, root string, cfg ScanConfig, visit func(rel string, d fs.DirEntry) error) error {
	deadline := time.Now().Add(cfg.Timeout)
	visited := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrScanBound, err)
		}
		if cfg.Timeout > 0 && time.Now().After(deadline) {
			return fmt.Errorf("%w: wall-clock cutoff after %s", ErrScanBound, cfg.Timeout)
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if cfg.MaxDepth > 0 && strings.Count(rel, string(filepath.Separator))+1 >= cfg.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		visited++
		if cfg.MaxFiles > 0 && visited > cfg.MaxFiles {
			return fmt.Errorf("%w: file limit %d reached", ErrScanBound, cfg.MaxFiles)
		}

		return visit(rel, d)
	})

	return err
}
