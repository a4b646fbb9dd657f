package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/flows"
)

// Version is reported to MCP clients.
var Version = "dev"

// newMCPServer publishes every catalog flow as an MCP tool. Tool arguments
// are the flow input; the result carries the flow output both as JSON text
// and as structured content.
func newMCPServer(service *flows.Service, logger *zap.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "studyflow", Version: Version}, nil)

	for _, def := range service.Catalog().All() {
		srv.AddTool(&mcp.Tool{
			Name:         def.Name(),
			Description:  def.Description(),
			InputSchema:  def.InputSchema().JSONSchema(),
			OutputSchema: def.OutputSchema().JSONSchema(),
		}, flowTool(service.Executor(), def, logger))
	}

	return srv
}

func flowTool(exec *flow.Executor, def *flow.Definition, logger *zap.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &raw); err != nil {
				return toolError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}

		res, err := exec.Run(ctx, def, raw)
		if err != nil {
			_, body := statusFor(err)
			logger.Debug("mcp tool call failed", zap.String("tool", def.Name()), zap.Error(err))
			return toolError(body.Kind + ": " + body.Error), nil
		}

		text, err := json.Marshal(res.Output)
		if err != nil {
			return nil, fmt.Errorf("marshal %s output: %w", def.Name(), err)
		}

		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
			StructuredContent: json.RawMessage(text),
		}, nil
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
