package kit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var trail []string
	tag := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				trail = append(trail, name+">")
				resp, err := next(ctx, req)
				trail = append(trail, "<"+name)
				return resp, err
			}
		}
	}
	record := func(_ context.Context, _ any) (any, error) {
		trail = append(trail, "record")
		return "done", nil
	}

	resp, err := Chain(tag("log"), tag("ledger"), tag("timing"))(record)(context.Background(), nil)
	if err != nil {
		t.Fatalf("chained endpoint: %v", err)
	}
	if resp != "done" {
		t.Errorf("response = %v, want done", resp)
	}

	got := strings.Join(trail, " ")
	want := "log> ledger> timing> record <timing <ledger <log"
	if got != want {
		t.Errorf("call order = %q, want %q", got, want)
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	failed := errors.New("chrome did not start")
	record := func(_ context.Context, _ any) (any, error) { return nil, failed }
	passthrough := func(next Endpoint) Endpoint { return next }

	_, err := Chain(passthrough, passthrough)(record)(context.Background(), nil)
	if !errors.Is(err, failed) {
		t.Errorf("error = %v, want %v", err, failed)
	}
}

func TestContext_TransportDefaultsToCLI(t *testing.T) {
	if got := GetTransport(context.Background()); got != "cli" {
		t.Errorf("default transport = %q, want cli", got)
	}
	if got := GetTransport(WithTransport(context.Background(), "mcp")); got != "mcp" {
		t.Errorf("transport = %q, want mcp", got)
	}
}

func TestContext_StringValues(t *testing.T) {
	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"request id", WithRequestID, GetRequestID},
		{"run id", WithRunID, GetRunID},
		{"remote addr", WithRemoteAddr, GetRemoteAddr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(context.Background()); got != "" {
				t.Errorf("unset value = %q, want empty", got)
			}
			ctx := tt.set(context.Background(), "val-42")
			if got := tt.get(ctx); got != "val-42" {
				t.Errorf("after set = %q, want val-42", got)
			}
		})
	}
}

// echoReq / echoTool wire a minimal endpoint through the MCP bridge the
// way the real services do.
type echoReq struct {
	Folder string `json:"folder"`
}

func echoSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)

	endpoint := func(ctx context.Context, request any) (any, error) {
		req := request.(*echoReq)
		if req.Folder == "missing" {
			return nil, errors.New("no such folder")
		}
		return map[string]string{
			"folder":    req.Folder,
			"transport": GetTransport(ctx),
		}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r echoReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Folder == "" {
			return nil, errors.New("folder is required")
		}
		return &MCPDecodeResult{Request: &r}, nil
	}
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo_folder",
		Description: "Echo a business folder name.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"folder": map[string]any{"type": "string"}},
		},
	}, endpoint, decode)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(impl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestRegisterMCPTool_RoundTrip(t *testing.T) {
	session := echoSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo_folder",
		Arguments: map[string]any{"folder": "cafe_luna"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}

	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] = %T, want TextContent", result.Content[0])
	}
	var resp struct {
		Folder    string `json:"folder"`
		Transport string `json:"transport"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &resp); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if resp.Folder != "cafe_luna" {
		t.Errorf("folder = %q, want cafe_luna", resp.Folder)
	}
	if resp.Transport != "mcp" {
		t.Errorf("transport = %q, want mcp", resp.Transport)
	}
}

func TestRegisterMCPTool_EndpointErrorStaysInResult(t *testing.T) {
	session := echoSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo_folder",
		Arguments: map[string]any{"folder": "missing"},
	})
	if err != nil {
		t.Fatalf("CallTool must not surface tool failures as protocol errors, got: %v", err)
	}
	if result.GetError() == nil {
		t.Fatal("want tool-level error in result, got none")
	}
}

func TestRegisterMCPTool_DecodeErrorStaysInResult(t *testing.T) {
	session := echoSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo_folder",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	toolErr := result.GetError()
	if toolErr == nil {
		t.Fatal("want decode error in result, got none")
	}
	if !strings.Contains(toolErr.Error(), "invalid arguments") {
		t.Errorf("error = %q, want it to mention invalid arguments", toolErr.Error())
	}
}
