// Package search provides the web search tool offered to the chatbot and the
// backends that answer it.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/studyflow/pkg/schema"
	"github.com/papercomputeco/studyflow/pkg/tool"
)

// ToolName is the name the model uses to call the search tool.
const ToolName = "search"

// Backend answers a search query with a plain text observation.
type Backend interface {
	Search(ctx context.Context, query string) (string, error)
}

// Tool wraps b as the search tool.
func Tool(b Backend) *tool.Definition {
	return &tool.Definition{
		Name:        ToolName,
		Description: "Search for information on the web.",
		Input: schema.Object(
			schema.Prop("query", schema.String().Describe("The search query.")),
		),
		Output: schema.String(),
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("empty query")
			}

			return b.Search(ctx, query)
		},
	}
}
