package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// StructureExtractor produces a census of the project tree: top-level
// directories, file counts by extension, and totals. Bounded by its
// ScanConfig; when a bound is hit the partial census is returned with
// ErrScanBound so the store can persist what was gathered.
type StructureExtractor struct {
	Scan   ScanConfig
	Logger *zap.Logger
}

// Extract implements factstore.Extractor.
func (e *StructureExtractor) Extract(ctx context.Context, root string) (map[string]any, string, error) {
	topDirs := map[string]bool{}
	byExt := map[string]int{}
	totalFiles := 0
	hash := sha256.New()

	walkErr := walk(ctx, root, e.Scan, func(rel string, d fs.DirEntry) error {
		totalFiles++

		if i := strings.IndexByte(rel, filepath.Separator); i > 0 {
			topDirs[rel[:i]] = true
		}

		ext := filepath.Ext(rel)
		if ext != "" {
			byExt[ext]++
		}

		hash.Write([]byte(rel))
		hash.Write([]byte{0})
		return nil
	})

	if walkErr != nil && !errors.Is(walkErr, ErrScanBound) {
		return nil, "", walkErr
	}
	if walkErr != nil && e.Logger != nil {
		e.Logger.Warn("structure scan cut short", zap.Error(walkErr))
	}

	dirs := make([]string, 0, len(topDirs))
	for d := range topDirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	// JSON round-trips map values as plain types, so counts are stored
	// as a string-keyed map of numbers.
	extCounts := make(map[string]any, len(byExt))
	for ext, n := range byExt {
		extCounts[ext] = n
	}

	fields := map[string]any{
		"top_level_dirs":     dirs,
		"files_by_extension": extCounts,
		"total_files":        totalFiles,
	}

	signature := hex.EncodeToString(hash.Sum(nil))
	return fields, signature, walkErr
}
