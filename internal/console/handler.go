package console

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"conductor-console/internal/auth/models"
	"conductor-console/internal/auth/projection"
	"conductor-console/internal/auth/session"
	"conductor-console/internal/auth/watchdog"
	dErrors "conductor-console/pkg/domain-errors"
	"conductor-console/pkg/platform/httputil"
	"conductor-console/pkg/requestcontext"
)

//go:embed static/*.html
var staticFiles embed.FS

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Handler serves the console: the auth gate in front of every page, the
// static landing pages and the session API the UI polls.
type Handler struct {
	registry *Registry
	logger   *slog.Logger
	pages    http.Handler
	origin   *url.URL
	secure   bool
	health   map[string]HealthCheck
	api      []func(chi.Router)
}

type HandlerOption func(*Handler)

// WithPages sets the handler for protected console views. It only runs
// once the session is authorized.
func WithPages(pages http.Handler) HandlerOption {
	return func(h *Handler) {
		if pages != nil {
			h.pages = pages
		}
	}
}

func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithSecureCookies(secure bool) HandlerOption {
	return func(h *Handler) {
		h.secure = secure
	}
}

// WithOrigin fixes the public origin used to build locations. Without it
// the origin is derived from each request.
func WithOrigin(origin string) HandlerOption {
	return func(h *Handler) {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			h.origin = u
		}
	}
}

func WithHealthChecks(checks map[string]HealthCheck) HandlerOption {
	return func(h *Handler) {
		for name, check := range checks {
			h.health[name] = check
		}
	}
}

// WithAPI mounts extra routes under /api, such as the auth endpoints.
func WithAPI(register func(chi.Router)) HandlerOption {
	return func(h *Handler) {
		if register != nil {
			h.api = append(h.api, register)
		}
	}
}

func NewHandler(registry *Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		logger:   slog.Default(),
		pages:    defaultPages(),
		health:   make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts every console route on r.
func (h *Handler) Register(r chi.Router) {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(static))

	r.Get("/healthz", h.handleHealth)
	r.Get(session.UnauthorizedPage, files.ServeHTTP)
	r.Get(session.LogoutPage, files.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(DeviceMiddleware(h.secure))

		r.Route("/api", func(r chi.Router) {
			r.Get("/session", h.handleSession)
			r.Post("/activity", h.handleActivity)
			for _, register := range h.api {
				register(r)
			}
		})
		r.Get("/logout", h.handleLogout)
		r.Post("/logout", h.handleLogout)
		r.Get("/*", h.handleGate)
	})
}

// SessionResponse is the projected session plus any navigation the browser
// still has to perform.
type SessionResponse struct {
	Session  projection.State `json:"session"`
	Navigate *Navigation      `json:"navigate,omitempty"`
}

// ActivityRequest reports one user interaction.
type ActivityRequest struct {
	Event watchdog.EventKind `json:"event"`
}

func (h *Handler) handleGate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device := h.device(r)

	nav, phase, err := device.Load(ctx, h.location(r))
	if err != nil {
		h.logger.WarnContext(ctx, "page load ended without a session", "phase", phase, "error", err)
	}

	if next := nav.Pending(); next != nil {
		nav.Write(w, r, gateMessage(phase, device.Snapshot()))
		return
	}
	if phase == models.PhaseAuthorized {
		h.pages.ServeHTTP(w, r.WithContext(withState(ctx, device.Snapshot())))
		return
	}
	http.Redirect(w, r, session.LogoutPage, http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device := h.device(r)

	nav, err := device.Logout(ctx, h.location(r))
	if err != nil {
		h.logger.WarnContext(ctx, "logout finished with error", "error", err)
	}
	if nav.Pending() == nil {
		nav.Navigate(session.LogoutPage)
	}
	nav.Write(w, r, "Signing out.")
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	device := h.device(r)
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{
		Session:  device.Snapshot(),
		Navigate: device.TakeNavigation(),
	})
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[ActivityRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !watchdog.Known(req.Event) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown interaction event"))
		return
	}
	h.device(r).Activity(req.Event)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}
	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{"status": result, "checks": checks})
}

func (h *Handler) device(r *http.Request) *Device {
	return h.registry.Device(requestcontext.DeviceID(r.Context()))
}

// location is the absolute browser URL of r.
func (h *Handler) location(r *http.Request) *url.URL {
	loc := &url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	if h.origin != nil {
		loc.Scheme = h.origin.Scheme
		loc.Host = h.origin.Host
		return loc
	}
	loc.Scheme = "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		loc.Scheme = "https"
	}
	loc.Host = r.Host
	return loc
}

func gateMessage(phase models.Phase, state projection.State) string {
	if phase != models.PhaseError {
		return "Redirecting."
	}
	if state.Error != nil && state.Error.Message != "" {
		return "Sign-in failed: " + state.Error.Message
	}
	return "Sign-in failed."
}

type stateKey struct{}

func withState(ctx context.Context, s projection.State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFrom returns the authorized session a protected page is served for.
func StateFrom(ctx context.Context) (projection.State, bool) {
	s, ok := ctx.Value(stateKey{}).(projection.State)
	return s, ok
}

var homePage = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Conductor</title></head>
<body>
<h1>Conductor</h1>
{{with .User}}<p>Signed in as {{.Name}} ({{.Email}}), role {{.PrimaryRole}}.</p>{{end}}
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body>
</html>
`))

// defaultPages renders a minimal landing view for the authorized user.
func defaultPages() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := StateFrom(r.Context())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := homePage.Execute(w, state); err != nil {
			slog.Default().WarnContext(r.Context(), "render home page", "error", err)
		}
	})
}
