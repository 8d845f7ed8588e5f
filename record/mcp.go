package record

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/kit"
)

// RegisterMCP exposes the recorder over MCP: one tool for a single folder,
// one for the whole resources root.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerFolderTool(srv)
	s.registerBatchTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- record folder ---

type recordFolderReq struct {
	Folder string `json:"folder"`
}

func (s *Service) registerFolderTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_record_folder",
		Description: "Record a browsing session video for one business folder.",
		InputSchema: inputSchema(map[string]any{
			"folder": map[string]any{"type": "string", "description": "Business folder name under the resources root"},
		}, []string{"folder"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*recordFolderReq)
		return s.RecordFolder(ctx, r.Folder)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r recordFolderReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Folder == "" {
			return nil, fmt.Errorf("folder is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- record batch ---

type recordBatchReq struct{}

func (s *Service) registerBatchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vitrine_record_batch",
		Description: "Record browsing session videos for every business folder under the resources root.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		result, err := s.RecordBatch(ctx)
		if err != nil {
			// Partial failure still carries a result worth returning.
			if result != nil && len(result.Failures) > 0 {
				return result, nil
			}
			return nil, err
		}
		return result, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &recordBatchReq{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
