// Package session drives the browser-side authorization state machine: it
// inspects the current location and stored tokens on page load, performs
// the login redirect, code exchange and user-info resolution, and ends the
// session on logout or inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"conductor-console/internal/audit"
	"conductor-console/internal/auth/idtoken"
	"conductor-console/internal/auth/models"
	"conductor-console/internal/auth/projection"
	"conductor-console/internal/platform/metrics"
	pkgstrings "conductor-console/pkg/platform/strings"
)

const (
	UnauthorizedPage = "/Unauthorized.html"
	LogoutPage       = "/Logout.html"
	RootPath         = "/"

	// DefaultErrorRedirectDelay is how long a failed exchange leaves the
	// error visible before moving to the logout page.
	DefaultErrorRedirectDelay = 3 * time.Second
)

var (
	ErrAccessDenied     = errors.New("access denied by identity provider")
	ErrTokenExchange    = errors.New("token exchange failed")
	ErrInsufficientRole = errors.New("user holds no authorized console role")
	ErrUserInfoFetch    = errors.New("user info fetch failed")
)

// Backend is the console's backend-for-frontend.
type Backend interface {
	Login(ctx context.Context, redirectURI string) (string, error)
	Token(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)
	Logout(ctx context.Context, accessToken, redirectURI string) (string, error)
	User(ctx context.Context, accessToken, idToken string) (*models.UserInfo, error)
}

// TokenStore persists the credential pair in durable browser storage.
type TokenStore interface {
	Save(ctx context.Context, accessToken, idToken string, expiresInSeconds int64) (time.Time, error)
	LoadValid(ctx context.Context) (models.Tokens, bool, error)
	Peek(ctx context.Context) (models.Tokens, bool, error)
	Clear(ctx context.Context) error
}

// RedirectStore holds the page to return to after login.
type RedirectStore interface {
	Save(ctx context.Context, uri string) error
	Take(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// Dispatcher accepts transition events and returns the resulting state.
type Dispatcher interface {
	Dispatch(ev models.Event) projection.State
}

// Navigator moves the browser. NavigateAfter schedules the move.
type Navigator interface {
	Navigate(target string)
	NavigateAfter(target string, delay time.Duration)
}

// Orchestrator owns the session of one browser. Operations are serialized.
type Orchestrator struct {
	mu sync.Mutex

	backend   Backend
	tokens    TokenStore
	redirects RedirectStore
	state     Dispatcher
	validator idtoken.Validator

	roles      models.RoleSet
	errorDelay time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	auditor    audit.Emitter

	last projection.State
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithAuditor(a audit.Emitter) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.auditor = a
		}
	}
}

// WithRoles replaces the authorized role set.
func WithRoles(rs models.RoleSet) Option {
	return func(o *Orchestrator) {
		o.roles = rs
	}
}

func WithErrorRedirectDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.errorDelay = d
		}
	}
}

// New wires an orchestrator for one browser environment.
func New(backend Backend, tokens TokenStore, redirects RedirectStore, state Dispatcher, validator idtoken.Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:    backend,
		tokens:     tokens,
		redirects:  redirects,
		state:      state,
		validator:  validator,
		roles:      models.AuthorizedRoles,
		errorDelay: DefaultErrorRedirectDelay,
		logger:     slog.Default(),
		auditor:    audit.Nop{},
		last:       projection.Initial(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Start runs the page-load decision for loc and returns the phase the
// session ended in. Navigation, if any, goes through nav.
func (o *Orchestrator) Start(ctx context.Context, loc *url.URL, nav Navigator) (models.Phase, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	query := loc.Query()
	if query.Get("error") == "access_denied" {
		return o.denyAccess(ctx, query.Get("error_description"), nav)
	}
	if code := query.Get("code"); code != "" {
		return o.exchange(ctx, loc, code, nav)
	}

	tokens, ok, err := o.tokens.LoadValid(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to read stored tokens, starting a new login", "error", err)
		ok = false
	}
	if ok {
		return o.resume(ctx, tokens, nav)
	}
	return o.redirectToLogin(ctx, loc, nav)
}

// Logout revokes the session at the backend, clears stored tokens whatever
// the outcome, and sends the browser to the sign-out page.
func (o *Orchestrator) Logout(ctx context.Context, loc *url.URL, nav Navigator) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.logout(ctx, loc, nav)
}

// ExpireInactive ends the session after idle time without interaction.
// The current page is remembered so the next login returns to it.
func (o *Orchestrator) ExpireInactive(ctx context.Context, loc *url.URL, idle time.Duration, nav Navigator) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.logger.InfoContext(ctx, "session expired after inactivity", "idle", idle.String())
	o.rememberLocation(ctx, loc)
	o.dispatch(models.UserInactive{InactiveFor: idle})
	if o.metrics != nil {
		o.metrics.IncInactivityTimeout()
	}
	o.emit(ctx, audit.Event{
		Action:  audit.ActionInactivityTimeout,
		Subject: o.subject(),
		Reason:  idle.String(),
	})
	return o.logout(ctx, loc, nav)
}

// State returns the last state this orchestrator dispatched.
func (o *Orchestrator) State() projection.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last.Clone()
}

func (o *Orchestrator) denyAccess(ctx context.Context, description string, nav Navigator) (models.Phase, error) {
	o.logger.WarnContext(ctx, "identity provider denied access", "description", description)
	o.clearSession(ctx)

	err := ErrAccessDenied
	if description != "" {
		err = fmt.Errorf("%w: %s", ErrAccessDenied, description)
	}
	o.dispatch(models.LoginRedirectFailed{Error: models.NewErrorInfo(err)})
	o.dispatch(models.StatusChanged{Status: models.StatusError})
	if o.metrics != nil {
		o.metrics.IncLoginRedirect("denied")
	}
	o.emit(ctx, audit.Event{Action: audit.ActionAccessDenied, Decision: "deny", Reason: description})
	nav.Navigate(UnauthorizedPage)
	return models.PhaseError, err
}

func (o *Orchestrator) redirectToLogin(ctx context.Context, loc *url.URL, nav Navigator) (models.Phase, error) {
	o.rememberLocation(ctx, loc)

	loginURL, err := o.backend.Login(ctx, origin(loc))
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to obtain login url", "error", err)
		if clearErr := o.redirects.Clear(ctx); clearErr != nil {
			o.logger.WarnContext(ctx, "failed to clear pending redirect", "error", clearErr)
		}
		o.dispatch(models.LoginRedirectFailed{Error: models.NewErrorInfo(err)})
		o.dispatch(models.StatusChanged{Status: models.StatusError})
		if o.metrics != nil {
			o.metrics.IncLoginRedirect("failure")
		}
		o.emit(ctx, audit.Event{Action: audit.ActionLoginRedirectFailed, Reason: err.Error()})
		nav.Navigate(LogoutPage)
		return models.PhaseError, fmt.Errorf("request login url: %w", err)
	}

	if o.metrics != nil {
		o.metrics.IncLoginRedirect("success")
	}
	o.emit(ctx, audit.Event{Action: audit.ActionLoginRedirect})
	nav.Navigate(loginURL)
	return models.PhasePendingRedirect, nil
}

func (o *Orchestrator) exchange(ctx context.Context, loc *url.URL, code string, nav Navigator) (models.Phase, error) {
	o.dispatch(models.LoginRedirectSucceeded{Code: code})
	o.dispatch(models.StatusChanged{Status: models.StatusPending})

	set, err := o.backend.Token(ctx, code, origin(loc))
	var expiresAt time.Time
	if err == nil {
		expiresAt, err = o.tokens.Save(ctx, set.AccessToken, set.IDToken, set.ExpiresIn)
	}
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to secure access token", "error", err)
		o.clearSession(ctx)
		o.dispatch(models.LoginFailed{Error: models.NewErrorInfo(err)})
		o.dispatch(models.AuthorizationReset{Status: models.StatusError})
		if o.metrics != nil {
			o.metrics.IncTokenExchange("failure")
		}
		o.emit(ctx, audit.Event{Action: audit.ActionTokenExchangeFailed, Reason: err.Error()})
		nav.NavigateAfter(LogoutPage, o.errorDelay)
		return models.PhaseError, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}

	o.dispatch(models.LoginSucceeded{
		AccessToken: set.AccessToken,
		IDToken:     set.IDToken,
		ExpiresIn:   set.ExpiresIn,
		ExpiresAt:   expiresAt,
	})
	if o.metrics != nil {
		o.metrics.IncTokenExchange("success")
	}
	o.emit(ctx, audit.Event{Action: audit.ActionTokenExchanged})

	tokens := models.Tokens{AccessToken: set.AccessToken, IDToken: set.IDToken, ExpiresAt: expiresAt}
	return o.authorize(ctx, tokens, true, nav)
}

func (o *Orchestrator) resume(ctx context.Context, tokens models.Tokens, nav Navigator) (models.Phase, error) {
	o.dispatch(models.StatusChanged{Status: models.StatusPending})
	o.dispatch(models.LoginSucceeded{
		AccessToken: tokens.AccessToken,
		IDToken:     tokens.IDToken,
		ExpiresAt:   tokens.ExpiresAt,
	})
	o.emit(ctx, audit.Event{Action: audit.ActionSessionResumed})
	return o.authorize(ctx, tokens, false, nav)
}

// authorize resolves the user behind tokens and decides the role.
func (o *Orchestrator) authorize(ctx context.Context, tokens models.Tokens, exchanged bool, nav Navigator) (models.Phase, error) {
	token, err := idtoken.Decode(tokens.IDToken)
	if err == nil {
		err = o.validator.Validate(ctx, token)
	}
	if err != nil {
		o.dispatch(models.InfoFailed{Error: models.NewErrorInfo(err)})
		return o.forbid(ctx, "", fmt.Errorf("validate id token: %w", err), nav)
	}

	info, err := o.backend.User(ctx, tokens.AccessToken, tokens.IDToken)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUserInfoFetch, err)
		o.dispatch(models.InfoFailed{Error: models.NewErrorInfo(err)})
		return o.forbid(ctx, "", err, nav)
	}

	_, primary, ok := o.roles.Resolve(info.Roles)
	if !ok {
		return o.forbid(ctx, info.Email, ErrInsufficientRole, nav)
	}

	user := models.User{
		Name:              info.Name,
		PreferredUsername: info.PreferredUsername,
		Email:             info.Email,
		Roles:             pkgstrings.DedupeAndTrim(info.Roles),
		PrimaryRole:       primary,
	}
	o.dispatch(models.StatusChanged{Status: models.StatusSuccessful})
	o.dispatch(models.InfoSucceeded{User: user})
	if o.metrics != nil {
		o.metrics.IncAuthorization(string(primary))
	}
	o.emit(ctx, audit.Event{
		Action:   audit.ActionAuthorized,
		Subject:  user.Email,
		Decision: string(primary),
	})
	o.logger.InfoContext(ctx, "user authorized", "user", user.Email, "role", primary)

	target, pending, err := o.redirects.Take(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to read pending redirect", "error", err)
	}
	if pending && !localPath(target) {
		o.logger.WarnContext(ctx, "dropping pending redirect outside the console", "target", target)
		target = RootPath
	}
	switch {
	case pending:
		nav.Navigate(target)
	case exchanged:
		nav.Navigate(RootPath)
	}
	return models.PhaseAuthorized, nil
}

func (o *Orchestrator) forbid(ctx context.Context, subject string, cause error, nav Navigator) (models.Phase, error) {
	o.logger.WarnContext(ctx, "user not authorized for console", "user", subject, "error", cause)
	o.clearSession(ctx)
	o.dispatch(models.AuthorizationReset{Status: models.StatusForbidden})
	if o.metrics != nil {
		o.metrics.IncAuthorization("forbidden")
	}
	o.emit(ctx, audit.Event{
		Action:   audit.ActionForbidden,
		Subject:  subject,
		Decision: "deny",
		Reason:   cause.Error(),
	})
	nav.Navigate(UnauthorizedPage)
	return models.PhaseForbidden, cause
}

func (o *Orchestrator) logout(ctx context.Context, loc *url.URL, nav Navigator) error {
	subject := o.subject()
	tokens, _, err := o.tokens.Peek(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to read stored tokens for logout", "error", err)
	}

	target, logoutErr := o.backend.Logout(ctx, tokens.AccessToken, origin(loc))
	clearErr := o.tokens.Clear(ctx)
	if clearErr != nil {
		o.logger.ErrorContext(ctx, "failed to clear stored tokens", "error", clearErr)
	}

	if logoutErr != nil {
		o.logger.ErrorContext(ctx, "logout failed", "error", logoutErr)
		o.dispatch(models.LogoutFailed{Error: models.NewErrorInfo(logoutErr)})
		o.dispatch(models.AuthorizationReset{Status: models.StatusUnauthenticated})
		if o.metrics != nil {
			o.metrics.IncLogout("failure")
		}
		o.emit(ctx, audit.Event{Action: audit.ActionLogoutFailed, Subject: subject, Reason: logoutErr.Error()})
		nav.Navigate(LogoutPage)
		return fmt.Errorf("logout: %w", logoutErr)
	}

	o.dispatch(models.LogoutSucceeded{})
	o.dispatch(models.AuthorizationReset{Status: models.StatusUnauthenticated})
	if o.metrics != nil {
		o.metrics.IncLogout("success")
	}
	o.emit(ctx, audit.Event{Action: audit.ActionLogout, Subject: subject})
	nav.Navigate(target)
	if clearErr != nil {
		return fmt.Errorf("logout: %w", clearErr)
	}
	return nil
}

// rememberLocation records loc as the pending redirect. The console root
// is never recorded.
func (o *Orchestrator) rememberLocation(ctx context.Context, loc *url.URL) {
	target := returnPath(loc)
	if target == "" {
		return
	}
	if err := o.redirects.Save(ctx, target); err != nil {
		o.logger.WarnContext(ctx, "failed to record pending redirect", "error", err)
	}
}

// clearSession drops stored tokens and any pending redirect.
func (o *Orchestrator) clearSession(ctx context.Context) {
	if err := o.tokens.Clear(ctx); err != nil {
		o.logger.ErrorContext(ctx, "failed to clear stored tokens", "error", err)
	}
	if err := o.redirects.Clear(ctx); err != nil {
		o.logger.WarnContext(ctx, "failed to clear pending redirect", "error", err)
	}
}

func (o *Orchestrator) dispatch(ev models.Event) {
	o.last = o.state.Dispatch(ev)
}

func (o *Orchestrator) subject() string {
	if o.last.User != nil {
		return o.last.User.Email
	}
	return ""
}

func (o *Orchestrator) emit(ctx context.Context, ev audit.Event) {
	if err := o.auditor.Emit(ctx, ev); err != nil {
		o.logger.WarnContext(ctx, "failed to emit audit event", "action", ev.Action, "error", err)
	}
}

// origin returns scheme://host of loc.
func origin(loc *url.URL) string {
	return (&url.URL{Scheme: loc.Scheme, Host: loc.Host}).String()
}

// returnPath is the path and query of loc, or "" for the console root and
// for paths a browser would resolve off the console origin.
func returnPath(loc *url.URL) string {
	if loc == nil {
		return ""
	}
	path := loc.EscapedPath()
	if (path == "" || path == RootPath) && loc.RawQuery == "" {
		return ""
	}
	if path == "" {
		path = RootPath
	}
	if loc.RawQuery != "" {
		path += "?" + loc.RawQuery
	}
	if !localPath(path) {
		return ""
	}
	return path
}

// localPath reports whether target is an absolute path on the current
// origin. "//host" and "/\host" are network-path references to browsers.
func localPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	if strings.ContainsAny(target, "\\\r\n\t") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == "" && u.User == nil
}
