// Package shield provides the HTTP middleware stack for the vitrine preview
// server: security headers, request body limits, HEAD handling, and
// per-request structured logging with a request ID.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.PreviewStack() {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// PreviewStack returns the middleware stack for the preview server.
// Middleware is ordered: HeadToGet → SecurityHeaders → MaxBody → RequestID.
// The preview server is read-only and local, so there is no rate limiting
// and no maintenance gate.
func PreviewStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(64 * 1024),
		RequestID,
	}
}

// HeadToGet converts HEAD requests to GET so that route handlers registered
// with r.Get() respond with 200 instead of 405 (Method Not Allowed).
// Go's net/http automatically strips the body for HEAD responses.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBody returns middleware that caps the request body size. The preview
// server takes no uploads, so the cap applies to every method.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
