// Package kit holds the small transport-agnostic plumbing shared by the
// vitrine surfaces: the Endpoint abstraction, middleware chaining, context
// propagation and the MCP tool bridge. Every operation (prospect, draft,
// render, record) is an Endpoint first; HTTP, CLI and MCP are thin adapters
// on top.
package kit

import "context"

// Endpoint is a single operation: typed request in, typed response out.
// Decoding and encoding live in the transport adapters.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one listed is the outermost.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}
