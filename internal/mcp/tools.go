package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() error {
	// Fact store tools
	s.registerStoreTools()

	// Checkpoint tools
	s.registerCheckpointTools()

	// Instinct tools
	s.registerInstinctTools()

	// Compaction tools
	s.registerCompactionTools()

	return nil
}

// parseCategory maps a boundary string onto the category enum.
func parseCategory(name string) (factstore.Category, error) {
	category, err := factstore.ParseCategory(name)
	if err != nil {
		return "", fmt.Errorf("unknown category %q", name)
	}
	return category, nil
}

// ===== FACT STORE TOOLS =====

type storeSaveInput struct {
	Category string         `json:"category" jsonschema:"required,Fact category to write"`
	Data     map[string]any `json:"data,omitempty" jsonschema:"Fields to merge into the document (top-level keys replace wholesale)"`
	Refresh  bool           `json:"refresh,omitempty" jsonschema:"Re-run the category extractor before merging"`
}

type storeSaveOutput struct {
	Status   string `json:"status" jsonschema:"Result status"`
	Category string `json:"category" jsonschema:"Category written"`
}

type storeLoadInput struct {
	Category string `json:"category" jsonschema:"required,Fact category to read"`
}

type storeLoadOutput struct {
	Document *factstore.Document `json:"document" jsonschema:"The fact document, default-empty when absent"`
}

type storeQueryInput struct {
	Text string `json:"text" jsonschema:"required,Substring to search for across all documents"`
}

type storeQueryOutput struct {
	Results []factstore.QueryResult `json:"results" jsonschema:"Matching categories with their documents"`
	Count   int                     `json:"count" jsonschema:"Number of matches"`
}

type storeSummaryInput struct{}

type storeSummaryOutput struct {
	Categories map[string]factstore.CategoryStatus `json:"categories" jsonschema:"Per-category existence and last update time"`
}

type storeForgetInput struct {
	Category string `json:"category" jsonschema:"required,Fact category to delete"`
}

type storeForgetOutput struct {
	Status   string `json:"status" jsonschema:"Result status"`
	Category string `json:"category" jsonschema:"Category deleted"`
}

type storeRefreshInput struct {
	Categories []string `json:"categories,omitempty" jsonschema:"Categories to re-extract; empty means every category with an extractor"`
}

type storeRefreshOutput struct {
	Statuses map[string]string `json:"statuses" jsonschema:"Per-category refresh outcome (ok or the error text)"`
}

func (s *Server) registerStoreTools() {
	// store_save
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_save",
		Description: "Merge fields into a fact category document, optionally refreshing from the extractor first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeSaveInput) (*mcp.CallToolResult, storeSaveOutput, error) {
		category, err := parseCategory(args.Category)
		if err != nil {
			return nil, storeSaveOutput{}, err
		}

		_, err = s.facts.Save(ctx, category, args.Data, factstore.SaveOptions{
			RefreshFromExtractor: args.Refresh,
		})
		if err != nil {
			return nil, storeSaveOutput{}, fmt.Errorf("store save failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Saved facts for %s", category)},
			},
		}, storeSaveOutput{Status: "ok", Category: string(category)}, nil
	})

	// store_load
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_load",
		Description: "Load a fact category document; absent categories return the empty default",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeLoadInput) (*mcp.CallToolResult, storeLoadOutput, error) {
		category, err := parseCategory(args.Category)
		if err != nil {
			return nil, storeLoadOutput{}, err
		}

		doc := s.facts.Load(ctx, category)

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Loaded facts for %s", category)},
			},
		}, storeLoadOutput{Document: doc}, nil
	})

	// store_query
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_query",
		Description: "Search all fact documents for a substring",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeQueryInput) (*mcp.CallToolResult, storeQueryOutput, error) {
		results := s.facts.Query(ctx, args.Text)
		if results == nil {
			results = []factstore.QueryResult{}
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d categories match", len(results))},
			},
		}, storeQueryOutput{Results: results, Count: len(results)}, nil
	})

	// store_summary
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_summary",
		Description: "Report per-category existence and last update time",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeSummaryInput) (*mcp.CallToolResult, storeSummaryOutput, error) {
		summary := s.facts.Summary(ctx)

		out := storeSummaryOutput{Categories: make(map[string]factstore.CategoryStatus, len(summary))}
		for category, status := range summary {
			out.Categories[string(category)] = status
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d categories known", len(out.Categories))},
			},
		}, out, nil
	})

	// store_forget
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_forget",
		Description: "Delete a fact category document; deleting an absent category is a no-op",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeForgetInput) (*mcp.CallToolResult, storeForgetOutput, error) {
		category, err := parseCategory(args.Category)
		if err != nil {
			return nil, storeForgetOutput{}, err
		}

		if err := s.facts.Forget(ctx, category); err != nil {
			return nil, storeForgetOutput{}, fmt.Errorf("store forget failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Forgot facts for %s", category)},
			},
		}, storeForgetOutput{Status: "ok", Category: string(category)}, nil
	})

	// store_refresh
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_refresh",
		Description: "Re-run extractors and persist fresh fact documents",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeRefreshInput) (*mcp.CallToolResult, storeRefreshOutput, error) {
		categories := make([]factstore.Category, 0, len(args.Categories))
		for _, name := range args.Categories {
			category, err := parseCategory(name)
			if err != nil {
				return nil, storeRefreshOutput{}, err
			}
			categories = append(categories, category)
		}

		outcomes := s.facts.Refresh(ctx, categories)

		out := storeRefreshOutput{Statuses: make(map[string]string, len(outcomes))}
		failed := 0
		for category, err := range outcomes {
			if err != nil {
				out.Statuses[string(category)] = err.Error()
				failed++
				continue
			}
			out.Statuses[string(category)] = "ok"
		}
		if failed > 0 {
			s.logger.Warn("partial refresh", zap.Int("failed", failed))
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Refreshed %d categories (%d failed)", len(outcomes), failed)},
			},
		}, out, nil
	})
}
