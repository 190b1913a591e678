package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/instinctd/internal/compaction"
	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
)

// ===== INSTINCT TOOLS =====

type instinctRecordInput struct {
	ID          string  `json:"id" jsonschema:"required,Stable pattern identifier and dedup key"`
	Description string  `json:"description,omitempty" jsonschema:"What the pattern is"`
	Context     string  `json:"context,omitempty" jsonschema:"Grouping tag for the pattern"`
	Confidence  float64 `json:"confidence" jsonschema:"required,Observed confidence in [0 1]"`
	Example     string  `json:"example,omitempty" jsonschema:"Concrete example of the pattern"`
	Source      string  `json:"source,omitempty" jsonschema:"How the pattern was captured: direct or observed"`
}

type instinctRecordOutput struct {
	Record *instinct.Record `json:"record" jsonschema:"The stored record after reinforcement"`
}

type instinctListInput struct {
	MinConfidence float64 `json:"min_confidence,omitempty" jsonschema:"Exclude records below this confidence"`
	Context       string  `json:"context,omitempty" jsonschema:"Only records with this grouping tag"`
}

type instinctListOutput struct {
	Records []*instinct.Record `json:"records" jsonschema:"Matching records, highest confidence first"`
	Count   int                `json:"count" jsonschema:"Number of records returned"`
}

func (s *Server) registerInstinctTools() {
	// instinct_record
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "instinct_record",
		Description: "Record a pattern observation; repeat observations reinforce confidence",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args instinctRecordInput) (*mcp.CallToolResult, instinctRecordOutput, error) {
		record, err := s.instincts.Record(ctx, &instinct.Candidate{
			ID:          args.ID,
			Description: args.Description,
			Context:     args.Context,
			Confidence:  args.Confidence,
			Example:     args.Example,
			Source:      instinct.Source(args.Source),
		})
		if err != nil {
			return nil, instinctRecordOutput{}, fmt.Errorf("instinct record failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Recorded %s (confidence %.2f, %d observations)",
					record.ID, record.Confidence, record.ObservationCount)},
			},
		}, instinctRecordOutput{Record: record}, nil
	})

	// instinct_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "instinct_list",
		Description: "List recorded patterns, optionally filtered by confidence or context",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args instinctListInput) (*mcp.CallToolResult, instinctListOutput, error) {
		records := s.instincts.List(ctx, &instinct.Filter{
			MinConfidence: args.MinConfidence,
			Context:       args.Context,
		})

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d instincts", len(records))},
			},
		}, instinctListOutput{Records: records, Count: len(records)}, nil
	})
}

// ===== COMPACTION TOOLS =====

type compactionItemInput struct {
	Ref        string  `json:"ref" jsonschema:"required,Caller-chosen item key"`
	Kind       string  `json:"kind" jsonschema:"required,Item kind: fact instinct or note"`
	Category   string  `json:"category,omitempty" jsonschema:"Fact category for fact items"`
	Context    string  `json:"context,omitempty" jsonschema:"Instinct grouping tag for instinct items"`
	Confidence float64 `json:"confidence,omitempty" jsonschema:"Instinct confidence for instinct items"`
	SizeBytes  int     `json:"size_bytes" jsonschema:"required,Serialized item size"`
	Body       string  `json:"body,omitempty" jsonschema:"Item text used to derive a synopsis"`
}

type compactionPlanInput struct {
	Items                 []compactionItemInput `json:"items" jsonschema:"required,Context items under consideration"`
	BudgetBytes           int                   `json:"budget_bytes" jsonschema:"required,Cumulative size allowed in retain"`
	SynopsisBytes         int                   `json:"synopsis_bytes,omitempty" jsonschema:"Per-synopsis cap (default from config)"`
	ActiveCategory        string                `json:"active_category,omitempty" jsonschema:"Fact category in active use"`
	ActiveInstinctContext string                `json:"active_instinct_context,omitempty" jsonschema:"Instinct grouping tag in active use"`
	Strategy              string                `json:"strategy,omitempty" jsonschema:"moduleFocused layerFocused testFocused or smart (default: smart)"`
}

type compactionPlanOutput struct {
	Plan *compaction.Plan `json:"plan" jsonschema:"Advisory retain/summarize/drop partition"`
}

func (s *Server) registerCompactionTools() {
	// compaction_plan
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "compaction_plan",
		Description: "Plan a retain/summarize/drop partition of context items under a size budget; advisory only — checkpoint before applying a plan with drops",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args compactionPlanInput) (*mcp.CallToolResult, compactionPlanOutput, error) {
		strategy, err := compaction.ParseStrategy(args.Strategy)
		if err != nil {
			return nil, compactionPlanOutput{}, fmt.Errorf("unknown strategy %q", args.Strategy)
		}

		items := make([]compaction.Item, 0, len(args.Items))
		for _, in := range args.Items {
			items = append(items, compaction.Item{
				Ref:        in.Ref,
				Kind:       compaction.Kind(in.Kind),
				Category:   factstore.Category(in.Category),
				Context:    in.Context,
				Confidence: in.Confidence,
				SizeBytes:  in.SizeBytes,
				Body:       in.Body,
			})
		}

		plan, err := s.planner.Plan(ctx, items,
			compaction.Budget{MaxBytes: args.BudgetBytes, SynopsisBytes: args.SynopsisBytes},
			compaction.FocusHint{
				ActiveCategory:        factstore.Category(args.ActiveCategory),
				ActiveInstinctContext: args.ActiveInstinctContext,
			},
			strategy,
		)
		if err != nil {
			return nil, compactionPlanOutput{}, fmt.Errorf("compaction plan failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Plan: retain %d, summarize %d, drop %d",
					len(plan.Retain), len(plan.Summarize), len(plan.Drop))},
			},
		}, compactionPlanOutput{Plan: plan}, nil
	})
}
