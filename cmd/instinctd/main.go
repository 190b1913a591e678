// Instinctd is a session-spanning project memory daemon.
//
// It persists project facts, confidence-scored instincts and
// checkpoints under a project-local .instinctd directory, and serves
// them over the MCP stdio transport. An optional HTTP sidecar exposes
// health and metrics endpoints.
//
// Usage:
//
//	# Serve MCP on stdio for the current directory
//	instinctd
//
//	# Serve another project
//	instinctd --project /path/to/repo
//
//	# Configure via environment
//	INSTINCTD_CHECKPOINT_KEEP=50 instinctd
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/checkpoint"
	"github.com/fyrsmithlabs/instinctd/internal/compaction"
	"github.com/fyrsmithlabs/instinctd/internal/config"
	"github.com/fyrsmithlabs/instinctd/internal/extractor"
	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/httpapi"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
	"github.com/fyrsmithlabs/instinctd/internal/logging"
	"github.com/fyrsmithlabs/instinctd/internal/mcp"
	"github.com/fyrsmithlabs/instinctd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	projectRoot string
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "instinctd",
	Short: "Project memory daemon over MCP stdio",
	Long: `instinctd persists project facts, confidence-scored instincts and
checkpoints under a project-local .instinctd directory, and serves them
to MCP clients over the stdio transport.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("instinctd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <project>/.instinctd/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServe wires every service and blocks on the stdio transport until
// the client disconnects or a signal arrives.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(projectRoot, configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.EnsureDataDirs(cfg); err != nil {
		return fmt.Errorf("failed to create data directories: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting instinctd",
		zap.String("version", version),
		zap.String("project", projectRoot),
		zap.String("store_dir", cfg.Store.Dir),
	)

	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry := extractor.NewDefaultRegistry(extractor.ScanConfig{
		MaxFiles: cfg.Extraction.MaxFiles,
		MaxDepth: cfg.Extraction.MaxDepth,
		Timeout:  cfg.Extraction.Timeout.Duration(),
	}, logger.Named("extractor"))

	facts, err := factstore.NewStore(&factstore.Config{
		Dir:              cfg.Store.Dir,
		ProjectRoot:      projectRoot,
		MaxDocumentBytes: cfg.Store.MaxDocumentBytes,
	}, registry, logger.Named("factstore"))
	if err != nil {
		return fmt.Errorf("failed to create fact store: %w", err)
	}

	instincts, err := instinct.NewStore(&instinct.Config{
		Path:        cfg.Instinct.Path,
		MaxExamples: cfg.Instinct.MaxExamples,
		Reinforcement: instinct.ReinforcementConfig{
			Step:      cfg.Instinct.ReinforcementStep,
			Threshold: cfg.Instinct.ReinforcementThreshold,
			Ceiling:   cfg.Instinct.ConfidenceCeiling,
		},
	}, logger.Named("instinct"))
	if err != nil {
		return fmt.Errorf("failed to create instinct store: %w", err)
	}

	checkpoints, err := checkpoint.NewManager(&checkpoint.Config{
		Dir:         cfg.Checkpoint.Dir,
		ProjectRoot: projectRoot,
		Keep:        cfg.Checkpoint.Keep,
	}, facts, instincts, logger.Named("checkpoint"))
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	planner, err := compaction.NewPlanner(&compaction.Config{
		SynopsisBytes: cfg.Compaction.SynopsisBytes,
	}, logger.Named("compaction"))
	if err != nil {
		return fmt.Errorf("failed to create compaction planner: %w", err)
	}

	if cfg.HTTP.Enabled {
		httpSrv, err := httpapi.NewServer(&httpapi.Config{
			Addr:    cfg.HTTP.Addr,
			DataDir: cfg.Store.Dir,
		}, facts, instincts, logger.Named("http"))
		if err != nil {
			return fmt.Errorf("failed to create http server: %w", err)
		}
		go func() {
			if err := httpSrv.Start(); err != nil {
				logger.Warn("http server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
		}()
	}

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "instinctd",
		Version: version,
		Logger:  logger.Named("mcp"),
	}, facts, instincts, checkpoints, planner)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
