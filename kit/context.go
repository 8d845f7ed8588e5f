package kit

import "context"

type contextKey string

// Context keys for request-scoped metadata. Values are always strings.
const (
	TransportKey  contextKey = "kit_transport" // "cli", "http", "mcp"
	RequestIDKey  contextKey = "kit_request_id"
	RunIDKey      contextKey = "kit_run_id"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithTransport records which surface carried the request.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, TransportKey, transport)
}

// GetTransport returns the carrying surface, defaulting to "cli": the
// pipeline binary is the one caller that never tags its context.
func GetTransport(ctx context.Context) string {
	if v := stringValue(ctx, TransportKey); v != "" {
		return v
	}
	return "cli"
}

// WithRequestID carries the preview server's per-request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// WithRunID tags ctx with the batch run identifier so every folder
// recorded under one invocation lands in the ledger under the same run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

func GetRunID(ctx context.Context) string { return stringValue(ctx, RunIDKey) }

// WithRemoteAddr records the peer address on HTTP requests.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}

func GetRemoteAddr(ctx context.Context) string { return stringValue(ctx, RemoteAddrKey) }
