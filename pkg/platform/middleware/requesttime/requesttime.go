// Package requesttime provides middleware for request-scoped time.
// Every timestamp taken while serving one request (token expiry, audit
// events) uses the same "now".
package requesttime

import (
	"net/http"

	"github.com/jonboulle/clockwork"

	"conductor-console/pkg/requestcontext"
)

// Middleware captures the clock's current time at the start of the request
// and stores it in the context.
func Middleware(clock clockwork.Clock) func(http.Handler) http.Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
