package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
)

// factResourceURI is the URI for one fact category resource.
func factResourceURI(category factstore.Category) string {
	return fmt.Sprintf("instinctd://facts/%s", category)
}

// registerResources publishes one read-only resource per fact category.
// Reading a resource returns the fact document JSON; absent categories
// read as the empty default, same as store_load.
func (s *Server) registerResources() {
	for _, category := range factstore.Categories() {
		s.mcp.AddResource(&mcp.Resource{
			URI:         factResourceURI(category),
			Name:        fmt.Sprintf("facts-%s", category),
			Description: fmt.Sprintf("Project facts: %s", category),
			MIMEType:    "application/json",
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			doc := s.facts.Load(ctx, category)
			raw, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal fact document: %w", err)
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{
						URI:      req.Params.URI,
						MIMEType: "application/json",
						Text:     string(raw),
					},
				},
			}, nil
		})
	}
}
