package pitch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/kit"
	"github.com/hazyhaar/vitrine/prospect"
)

// RegisterMCP exposes drafting as a single tool taking one business.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerDraftTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- draft ---

type draftReq struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Verdict  string `json:"verdict"`
	Words    int    `json:"words"`
}

func (s *Service) registerDraftTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_draft",
		Description: "Draft demo-site marketing copy for one business.",
		InputSchema: inputSchema(map[string]any{
			"name":     map[string]any{"type": "string", "description": "Business name"},
			"category": map[string]any{"type": "string", "description": "Business category, e.g. \"coiffeur\""},
			"address":  map[string]any{"type": "string", "description": "Street address"},
			"phone":    map[string]any{"type": "string", "description": "Contact phone number"},
			"verdict":  map[string]any{"type": "string", "description": "Existing web presence: none or thin"},
			"words":    map[string]any{"type": "integer", "description": "Word count of the existing site, if any"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*draftReq)
		verdict := prospect.Verdict(r.Verdict)
		if verdict == "" {
			verdict = prospect.VerdictNone
		}
		return s.Draft(ctx, prospect.Prospect{
			Business: prospect.Business{
				Name:     r.Name,
				Category: r.Category,
				Address:  r.Address,
				Phone:    r.Phone,
			},
			Verdict: verdict,
			Words:   r.Words,
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r draftReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Name == "" {
			return nil, fmt.Errorf("name is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
