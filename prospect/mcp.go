package prospect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/kit"
)

// RegisterMCP exposes discovery as one tool: search plus sift in a single
// call, returning only the businesses worth pitching.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerProspectTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- prospect ---

type prospectReq struct {
	Query string `json:"query"`
	City  string `json:"city"`
	Limit int    `json:"limit"`
}

type prospectResp struct {
	Query     string     `json:"query"`
	City      string     `json:"city,omitempty"`
	Found     int        `json:"found"`
	Prospects []Prospect `json:"prospects"`
}

func (s *Service) registerProspectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_prospect",
		Description: "Search local businesses and keep those with no website or a thin one.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Business type to search for, e.g. \"coiffeur\""},
			"city":  map[string]any{"type": "string", "description": "City to search in, e.g. \"Lyon\""},
			"limit": map[string]any{"type": "integer", "description": "Maximum businesses to consider (default 20)"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*prospectReq)
		businesses, err := s.Search(ctx, r.Query, r.City, r.Limit)
		if err != nil {
			return nil, err
		}
		prospects, err := s.Sift(ctx, businesses)
		if err != nil {
			return nil, err
		}
		return &prospectResp{
			Query:     r.Query,
			City:      r.City,
			Found:     len(businesses),
			Prospects: prospects,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r prospectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Query == "" {
			return nil, fmt.Errorf("query is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
