package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/checkpoint"
)

// ===== CHECKPOINT TOOLS =====

type checkpointSaveInput struct {
	Name      string `json:"name" jsonschema:"required,Unique checkpoint name"`
	Level     string `json:"level,omitempty" jsonschema:"Capture level: quick standard or full (default: standard)"`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema:"Replace an existing checkpoint with the same name"`
}

type checkpointSaveOutput struct {
	ID            string `json:"id" jsonschema:"Checkpoint ID"`
	Name          string `json:"name" jsonschema:"Checkpoint name"`
	Level         string `json:"level" jsonschema:"Capture level used"`
	FactCount     int    `json:"fact_count" jsonschema:"Number of fact categories captured"`
	InstinctCount int    `json:"instinct_count" jsonschema:"Number of instinct records captured"`
}

type checkpointListInput struct{}

type checkpointListOutput struct {
	Checkpoints []checkpoint.Descriptor `json:"checkpoints" jsonschema:"Checkpoints newest first"`
	Count       int                     `json:"count" jsonschema:"Number of checkpoints"`
}

type checkpointRestoreInput struct {
	Name string `json:"name" jsonschema:"required,Checkpoint name to restore"`
}

type checkpointRestoreOutput struct {
	Snapshot *checkpoint.Checkpoint `json:"snapshot" jsonschema:"The stored snapshot, unchanged"`
	Diff     checkpoint.Diff        `json:"diff" jsonschema:"How the snapshot differs from the live stores"`
}

type checkpointDeleteInput struct {
	Name string `json:"name" jsonschema:"required,Checkpoint name to delete"`
}

type checkpointDeleteOutput struct {
	Status string `json:"status" jsonschema:"Result status"`
}

type checkpointExportInput struct {
	Name string `json:"name" jsonschema:"required,Checkpoint name to export"`
}

type checkpointExportOutput struct {
	Document json.RawMessage `json:"document" jsonschema:"Portable checkpoint JSON document"`
}

type checkpointImportInput struct {
	Document  json.RawMessage `json:"document" jsonschema:"required,Portable checkpoint JSON document"`
	Overwrite bool            `json:"overwrite,omitempty" jsonschema:"Replace an existing checkpoint with the same name"`
}

type checkpointImportOutput struct {
	Name string `json:"name" jsonschema:"Imported checkpoint name"`
	ID   string `json:"id" jsonschema:"Imported checkpoint ID"`
}

func (s *Server) registerCheckpointTools() {
	// checkpoint_save
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "checkpoint_save",
		Description: "Snapshot the fact and instinct stores under a unique name",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkpointSaveInput) (*mcp.CallToolResult, checkpointSaveOutput, error) {
		level, err := checkpoint.ParseLevel(args.Level)
		if err != nil {
			return nil, checkpointSaveOutput{}, fmt.Errorf("unknown level %q", args.Level)
		}

		cp, err := s.checkpoints.Save(ctx, args.Name, level, checkpoint.SaveOptions{Overwrite: args.Overwrite})
		if err != nil {
			return nil, checkpointSaveOutput{}, fmt.Errorf("checkpoint save failed: %w", err)
		}

		// Retention is enforced opportunistically on each save.
		if _, err := s.checkpoints.Prune(ctx, 0); err != nil {
			s.logger.Warn("checkpoint prune failed", zap.Error(err))
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Checkpoint saved: %s", cp.Name)},
			},
		}, checkpointSaveOutput{
			ID:            cp.ID,
			Name:          cp.Name,
			Level:         string(cp.Level),
			FactCount:     len(cp.Facts),
			InstinctCount: len(cp.Instincts),
		}, nil
	})

	// checkpoint_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "checkpoint_list",
		Description: "List checkpoints, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkpointListInput) (*mcp.CallToolResult, checkpointListOutput, error) {
		descriptors, err := s.checkpoints.List(ctx)
		if err != nil {
			return nil, checkpointListOutput{}, fmt.Errorf("checkpoint list failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d checkpoints", len(descriptors))},
			},
		}, checkpointListOutput{Checkpoints: descriptors, Count: len(descriptors)}, nil
	})

	// checkpoint_restore
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "checkpoint_restore",
		Description: "Read a checkpoint snapshot and its diff against the live stores; live state is never mutated",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkpointRestoreInput) (*mcp.CallToolResult, checkpointRestoreOutput, error) {
		res, err := s.checkpoints.Restore(ctx, args.Name)
		if err != nil {
			return nil, checkpointRestoreOutput{}, fmt.Errorf("checkpoint restore failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Restored snapshot %s (%d categories changed since)",
					args.Name, len(res.Diff.ChangedCategories))},
			},
		}, checkpointRestoreOutput{Snapshot: res.Checkpoint, Diff: res.Diff}, nil
	})

	// checkpoint_delete
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "checkpoint_delete",
		Description: "Delete a checkpoint by name",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkpointDeleteInput) (*mcp.CallToolResult, checkpointDeleteOutput, error) {
		if err := s.checkpoints.Delete(ctx, args.Name); err != nil {
			return nil, checkpointDeleteOutput{}, fmt.Errorf("checkpoint delete failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Checkpoint deleted: %s", args.Name)},
			},
		}, checkpointDeleteOutput{Status: "ok"}, nil
	})

	// checkpoint_export
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "checkpoint_export",
		Description: "Export a checkpoint as a portable JSON document",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkpointExportInput) (*mcp.CallToolResult, checkpointExportOutput, error) {
		doc, err := s.checkpoints.Export(ctx, args.Name)
		if err != nil {
			return nil, checkpointExportOutput{}, fmt.Errorf("checkpoint export failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Exported checkpoint %s (%d bytes)", args.Name, len(doc))},
			},
		}, checkpointExportOutput{Document: doc}, nil
	})

	// checkpoint_import
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "checkpoint_import",
		Description: "Import a portable checkpoint document; schema mismatches are rejected, never coerced",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkpointImportInput) (*mcp.CallToolResult, checkpointImportOutput, error) {
		cp, err := s.checkpoints.Import(ctx, args.Document, checkpoint.SaveOptions{Overwrite: args.Overwrite})
		if err != nil {
			return nil, checkpointImportOutput{}, fmt.Errorf("checkpoint import failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Imported checkpoint %s", cp.Name)},
			},
		}, checkpointImportOutput{Name: cp.Name, ID: cp.ID}, nil
	})
}
