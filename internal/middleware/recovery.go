package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/util"
)

// Recovery returns a middleware that recovers from panics, guaranteeing a
// well-formed JSON 500 instead of a crashed process or a hung connection.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						observability.String("path", r.URL.Path),
						observability.String("method", r.Method),
						observability.Any("error", rec),
						observability.String("stack", string(debug.Stack())),
					)

					recordPanicRecovered()

					util.WriteError(w, http.StatusInternalServerError, util.ErrorResponse{
						Error:         "internal server error",
						Timestamp:     time.Now().UTC(),
						CorrelationID: util.CorrelationIDFromContext(r.Context()),
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
