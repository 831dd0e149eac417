// Package correlation propagates a per-request correlation id through
// context, logs, and the response header, without threading it through
// every call site.
package correlation

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/btorch/internal/logging"
)

// HeaderName is the HTTP header clients may set to supply their own
// correlation id; when absent, a fresh version-4 UUID is generated.
const HeaderName = "X-Correlation-Id"

// Middleware reads HeaderName or generates a UUID, installs it in the
// request context, echoes it on the response header, and restores nothing
// on exit — context values are request-scoped already, so there is no
// previous value to restore in Go's per-request context model.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderName, id)
		ctx := logging.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the correlation id set by Middleware, or "" if none.
func FromContext(ctx context.Context) string {
	return logging.GetCorrelationID(ctx)
}

// statusRecorder captures the status code written by downstream handlers so
// the request logger can report it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger must run inside Middleware (Middleware wraps it) and, once
// the downstream handler returns, emits one structured log line carrying the
// correlation id Middleware placed in the request context, the method, path,
// response status, and elapsed time.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			logging.FromContext(r.Context(), logger).Info("http request",
				"correlationId", FromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"elapsedMs", elapsed.Milliseconds(),
			)
		})
	}
}
