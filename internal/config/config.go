// Package config provides configuration loading for instinctd.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// DataDirName is the project-local directory holding all persisted state.
const DataDirName = ".instinctd"

// Config is the root configuration for the daemon.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Instinct   InstinctConfig   `koanf:"instinct"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Compaction CompactionConfig `koanf:"compaction"`
	Logging    LoggingConfig    `koanf:"logging"`
	HTTP       HTTPConfig       `koanf:"http"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// StoreConfig configures the fact store.
type StoreConfig struct {
	// Dir is the directory holding fact documents. Defaults to
	// <project>/.instinctd/facts.
	Dir string `koanf:"dir"`

	// MaxDocumentBytes caps the serialized size of a single fact document.
	MaxDocumentBytes int64 `koanf:"max_document_bytes"`
}

// InstinctConfig configures the instinct store and its confidence algorithm.
type InstinctConfig struct {
	// Path is the file holding the full instinct store. Defaults to
	// <project>/.instinctd/instincts.json.
	Path string `koanf:"path"`

	// MaxExamples caps the examples kept per record.
	MaxExamples int `koanf:"max_examples"`

	// ReinforcementStep is the confidence bonus applied when the observation
	// count crosses a multiple of ReinforcementThreshold.
	ReinforcementStep float64 `koanf:"reinforcement_step"`

	// ReinforcementThreshold is the observation-count multiple that triggers
	// a reinforcement bonus.
	ReinforcementThreshold int `koanf:"reinforcement_threshold"`

	// ConfidenceCeiling caps reinforced confidence.
	ConfidenceCeiling float64 `koanf:"confidence_ceiling"`
}

// CheckpointConfig configures checkpoint retention.
type CheckpointConfig struct {
	// Dir is the directory holding checkpoint documents. Defaults to
	// <project>/.instinctd/checkpoints.
	Dir string `koanf:"dir"`

	// Keep is the number of checkpoints retained by automatic pruning.
	Keep int `koanf:"keep"`
}

// ExtractionConfig bounds extractor file-tree scans.
type ExtractionConfig struct {
	MaxFiles int      `koanf:"max_files"`
	MaxDepth int      `koanf:"max_depth"`
	Timeout  Duration `koanf:"timeout"`
}

// CompactionConfig configures the compaction planner.
type CompactionConfig struct {
	// SynopsisBytes is the fixed budget charged for a summarized item.
	SynopsisBytes int `koanf:"synopsis_bytes"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// HTTPConfig configures the optional health/metrics sidecar.
type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// TelemetryConfig configures OpenTelemetry export. Disabled by default;
// when disabled the global noop providers are left in place.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// applyDefaults sets default values for missing configuration fields.
// projectRoot anchors the relative storage paths.
func applyDefaults(cfg *Config, projectRoot string) {
	dataDir := filepath.Join(projectRoot, DataDirName)

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = filepath.Join(dataDir, "facts")
	}
	if cfg.Store.MaxDocumentBytes == 0 {
		cfg.Store.MaxDocumentBytes = 1 << 20 // 1MB
	}

	if cfg.Instinct.Path == "" {
		cfg.Instinct.Path = filepath.Join(dataDir, "instincts.json")
	}
	if cfg.Instinct.MaxExamples == 0 {
		cfg.Instinct.MaxExamples = 5
	}
	if cfg.Instinct.ReinforcementStep == 0 {
		cfg.Instinct.ReinforcementStep = 0.15
	}
	if cfg.Instinct.ReinforcementThreshold == 0 {
		cfg.Instinct.ReinforcementThreshold = 3
	}
	if cfg.Instinct.ConfidenceCeiling == 0 {
		cfg.Instinct.ConfidenceCeiling = 0.9
	}

	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = filepath.Join(dataDir, "checkpoints")
	}
	if cfg.Checkpoint.Keep == 0 {
		cfg.Checkpoint.Keep = 20
	}

	if cfg.Extraction.MaxFiles == 0 {
		cfg.Extraction.MaxFiles = 5000
	}
	if cfg.Extraction.MaxDepth == 0 {
		cfg.Extraction.MaxDepth = 12
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = Duration(5 * time.Second)
	}

	if cfg.Compaction.SynopsisBytes == 0 {
		cfg.Compaction.SynopsisBytes = 256
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:9632"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "instinctd"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if c.Instinct.MaxExamples < 1 {
		return fmt.Errorf("instinct.max_examples must be >= 1, got %d", c.Instinct.MaxExamples)
	}
	if c.Instinct.ReinforcementStep < 0 || c.Instinct.ReinforcementStep > 1 {
		return fmt.Errorf("instinct.reinforcement_step must be in [0,1], got %v", c.Instinct.ReinforcementStep)
	}
	if c.Instinct.ReinforcementThreshold < 1 {
		return fmt.Errorf("instinct.reinforcement_threshold must be >= 1, got %d", c.Instinct.ReinforcementThreshold)
	}
	if c.Instinct.ConfidenceCeiling <= 0 || c.Instinct.ConfidenceCeiling > 1 {
		return fmt.Errorf("instinct.confidence_ceiling must be in (0,1], got %v", c.Instinct.ConfidenceCeiling)
	}
	if c.Checkpoint.Keep < 1 {
		return fmt.Errorf("checkpoint.keep must be >= 1, got %d", c.Checkpoint.Keep)
	}
	if c.Extraction.MaxFiles < 1 {
		return fmt.Errorf("extraction.max_files must be >= 1, got %d", c.Extraction.MaxFiles)
	}
	if c.Extraction.MaxDepth < 1 {
		return fmt.Errorf("extraction.max_depth must be >= 1, got %d", c.Extraction.MaxDepth)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
