package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"conductor-console/internal/auth/idp"
	"conductor-console/internal/auth/models"
	"conductor-console/internal/platform/middleware"
	dErrors "conductor-console/pkg/domain-errors"
	"conductor-console/pkg/platform/httputil"
	"conductor-console/pkg/requestcontext"
)

// AuthService is the backend behind the /auth routes.
type AuthService interface {
	Login(ctx context.Context, redirectURI string) (string, error)
	Token(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)
	Logout(ctx context.Context, accessToken, redirectURI string) (string, error)
	User(ctx context.Context, accessToken, idToken string) (*models.UserInfo, error)
}

type LoginRequest struct {
	RedirectURI string `json:"redirectURI"`
}

type TokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectURI"`
}

type LogoutRequest struct {
	AccessToken string `json:"access_token"`
	RedirectURI string `json:"redirect_uri"`
}

type UserRequest struct {
	IDToken string `json:"idToken"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// Register mounts the auth routes on r.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/token", h.handleToken)
	r.Post("/auth/logout", h.handleLogout)
	r.With(middleware.RequireBearer(h.logger)).Post("/auth/user", h.handleUser)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[LoginRequest](r)
	if err != nil {
		h.writeError(ctx, w, "/auth/login", err)
		return
	}
	if err := validateRedirectURI(req.RedirectURI, "redirectURI"); err != nil {
		h.writeError(ctx, w, "/auth/login", err)
		return
	}

	loginURL, err := h.auth.Login(ctx, req.RedirectURI)
	if err != nil {
		h.writeError(ctx, w, "/auth/login", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, URLResponse{URL: loginURL})
}

func (h *AuthHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[TokenRequest](r)
	if err != nil {
		h.writeError(ctx, w, "/auth/token", err)
		return
	}
	if req.Code == "" {
		h.writeError(ctx, w, "/auth/token", dErrors.New(dErrors.CodeBadRequest, "code is required"))
		return
	}
	if err := validateRedirectURI(req.RedirectURI, "redirectURI"); err != nil {
		h.writeError(ctx, w, "/auth/token", err)
		return
	}

	set, err := h.auth.Token(ctx, req.Code, req.RedirectURI)
	if err != nil {
		h.writeError(ctx, w, "/auth/token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, set)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[LogoutRequest](r)
	if err != nil {
		h.writeError(ctx, w, "/auth/logout", err)
		return
	}
	if err := validateRedirectURI(req.RedirectURI, "redirect_uri"); err != nil {
		h.writeError(ctx, w, "/auth/logout", err)
		return
	}

	signOutURL, err := h.auth.Logout(ctx, req.AccessToken, req.RedirectURI)
	if err != nil {
		h.writeError(ctx, w, "/auth/logout", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, URLResponse{URL: signOutURL})
}

func (h *AuthHandler) handleUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[UserRequest](r)
	if err != nil {
		h.writeError(ctx, w, "/auth/user", err)
		return
	}

	info, err := h.auth.User(ctx, middleware.GetBearerToken(ctx), req.IDToken)
	if err != nil {
		h.writeError(ctx, w, "/auth/user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// writeError relays IdP answers verbatim and renders everything else through
// the JSON error envelope.
func (h *AuthHandler) writeError(ctx context.Context, w http.ResponseWriter, route string, err error) {
	h.logger.ErrorContext(ctx, "auth route failed",
		"route", route,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	var uf idp.UpstreamFailure
	if errors.As(err, &uf) {
		httputil.WriteRaw(w, uf.HTTPStatus(), uf.ResponseContentType(), uf.ResponseBody())
		return
	}
	httputil.WriteError(w, err)
}

func validateRedirectURI(uri, field string) error {
	if !govalidator.StringLength(uri, "1", "2048") || !govalidator.IsURL(uri) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid "+field)
	}
	return nil
}
