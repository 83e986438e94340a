package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/koustubh-k/Synk-App/pkg/logging"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger creates a middleware that logs requests and injects the logger.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// child logger with request details
			reqLog := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				reqLog = reqLog.With(logging.TraceID(sc.TraceID().String()), logging.SpanID(sc.SpanID().String()))
			}

			ctx := logging.WithContext(r.Context(), reqLog)
			reqLog.Debug("request started")

			next.ServeHTTP(w, r.WithContext(ctx))

			reqLog.Debug("request finished", "duration", time.Since(start))
		})
	}
}
