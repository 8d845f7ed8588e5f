package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/vitrine/idgen"
	"github.com/hazyhaar/vitrine/kit"
)

// newRequestID mints the short per-request identifiers that show up in
// log lines and the X-Request-ID header.
var newRequestID = idgen.Prefixed("req_", idgen.NanoID(8))

// RequestID mints an ID for each request and injects it into the context,
// the response headers, and a per-request structured logger. The ID is
// stored under kit.RequestIDKey and the logger under LoggerKey.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := newRequestID()

		ctx := kit.WithRequestID(r.Context(), requestID)
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		w.Header().Set("X-Request-ID", requestID)

		logger := slog.Default().With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Info("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
