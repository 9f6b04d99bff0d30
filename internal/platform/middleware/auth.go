package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "conductor-console/pkg/domain-errors"
	"conductor-console/pkg/platform/httputil"
	"conductor-console/pkg/requestcontext"
)

type contextKeyBearerToken struct{}

// ContextKeyBearerToken is exported for use in handler tests.
var ContextKeyBearerToken = contextKeyBearerToken{}

// GetBearerToken retrieves the bearer token stored by RequireBearer.
func GetBearerToken(ctx context.Context) string {
	token, ok := ctx.Value(ContextKeyBearerToken).(string)
	if !ok {
		return ""
	}
	return token
}

// WithBearerToken injects a bearer token into a context.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextKeyBearerToken, token)
}

// RequireBearer rejects requests without an "Authorization: Bearer <token>"
// header. The token itself is not validated here; the IdP is the authority.
func RequireBearer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBearerToken(r.Context(), token)))
		})
	}
}
