package httpapi

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/jmylchreest/btorch/internal/correlation"
)

// recoverer converts a panicking handler into the standard error response
// instead of an abrupt connection close, logging the stack trace against
// the request's correlation id.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"correlationId", correlation.FromContext(r.Context()),
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					writeError(w, r, http.StatusInternalServerError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
