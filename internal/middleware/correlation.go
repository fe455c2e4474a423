// Package middleware provides the HTTP middleware chain for the gateway.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dkovalev/taskgw/internal/util"
)

// Correlation returns a middleware that tracks the per-request correlation
// identifier. A client-provided X-Correlation-ID is honored; otherwise one
// is generated. The ID and the request start time are stored in the context
// for downstream hops and response annotation, and the ID is echoed on the
// response.
func Correlation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(util.HeaderCorrelationID)
			if id == "" {
				id = uuid.New().String()
			}

			ctx := util.ContextWithCorrelationID(r.Context(), id)
			ctx = util.ContextWithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			w.Header().Set(util.HeaderCorrelationID, id)

			next.ServeHTTP(w, r)
		})
	}
}
