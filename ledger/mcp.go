package ledger

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/kit"
)

// RegisterMCP registers the vitrine_status tool on an MCP server.
func (l *Ledger) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_status",
		Description: "Report recent batch runs and the latest failed folders from the outreach ledger.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max runs to return (default 10)"},
		}, nil),
	}

	type statusReq struct {
		Limit int `json:"limit"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*statusReq)
		return l.Status(ctx, r.Limit)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r statusReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
