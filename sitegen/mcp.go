package sitegen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/kit"
	"github.com/hazyhaar/vitrine/pitch"
	"github.com/hazyhaar/vitrine/prospect"
)

// RegisterMCP exposes rendering as one tool taking a business plus the
// pitch produced by vitrine_draft.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerRenderTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- render ---

type renderReq struct {
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Address  string      `json:"address"`
	Phone    string      `json:"phone"`
	Pitch    pitch.Pitch `json:"pitch"`
}

type renderResp struct {
	Folder string `json:"folder"`
	Index  string `json:"index"`
}

func (s *Service) registerRenderTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_render",
		Description: "Render the demo site for one business from its drafted pitch.",
		InputSchema: inputSchema(map[string]any{
			"name":     map[string]any{"type": "string", "description": "Business name"},
			"category": map[string]any{"type": "string", "description": "Business category"},
			"address":  map[string]any{"type": "string", "description": "Street address shown on the contact section"},
			"phone":    map[string]any{"type": "string", "description": "Phone number shown on the contact section"},
			"pitch":    map[string]any{"type": "object", "description": "Pitch object as returned by vitrine_draft"},
		}, []string{"name", "pitch"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*renderReq)
		folder, err := s.Render(pitch.Drafted{
			Business: prospect.Business{
				Name:     r.Name,
				Category: r.Category,
				Address:  r.Address,
				Phone:    r.Phone,
			},
			Pitch: r.Pitch,
		})
		if err != nil {
			return nil, err
		}
		return &renderResp{
			Folder: folder,
			Index:  "sites/" + folder + "/index.html",
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r renderReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Name == "" {
			return nil, fmt.Errorf("name is required")
		}
		if err := r.Pitch.Validate(); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
