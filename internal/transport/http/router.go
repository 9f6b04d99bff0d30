package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"conductor-console/internal/platform/metrics"
	"conductor-console/internal/platform/middleware"
	"conductor-console/pkg/platform/middleware/metadata"
	"conductor-console/pkg/platform/middleware/requesttime"
)

// Common returns the middleware stack every console route runs behind.
func Common(logger *slog.Logger, m *metrics.Metrics, clock clockwork.Clock) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestID,
		requesttime.Middleware(clock),
		metadata.ClientMetadata,
		middleware.Logger(logger),
	}
	if m != nil {
		stack = append(stack, middleware.Latency(m))
	}
	return stack
}

// NewRouter serves the auth backend routes. Callers mount it under /api.
func NewRouter(h *AuthHandler) chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}
