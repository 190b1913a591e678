package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces environment overrides, e.g.
	// INSTINCTD_STORE_DIR -> store.dir.
	envPrefix = "INSTINCTD_"
)

// Load loads configuration for a project root.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (INSTINCTD_STORE_DIR, INSTINCTD_CHECKPOINT_KEEP, ...)
//  2. YAML config file (<project>/.instinctd/config.yaml, or configPath if given)
//  3. Defaults anchored at <project>/.instinctd
//
// A missing config file is not an error; the defaults apply.
func Load(projectRoot, configPath string) (*Config, error) {
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		projectRoot = wd
	}
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	k := koanf.New(".")

	if configPath == "" {
		configPath = filepath.Join(projectRoot, DataDirName, "config.yaml")
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides. INSTINCTD_STORE_MAX_DOCUMENT_BYTES maps to
	// store.max_document_bytes: first underscore separates section from field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg, projectRoot)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureDataDirs creates the storage directories with owner-only permissions.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.Store.Dir, cfg.Checkpoint.Dir, filepath.Dir(cfg.Instinct.Path)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}
