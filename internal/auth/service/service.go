// Package service is the server side of the console's auth backend: it
// builds IdP login URLs, exchanges codes, revokes tokens on logout, and
// resolves the user behind an ID token.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"conductor-console/internal/audit"
	"conductor-console/internal/auth/idp"
	"conductor-console/internal/auth/idtoken"
	"conductor-console/internal/auth/models"
	dErrors "conductor-console/pkg/domain-errors"
	pkgstrings "conductor-console/pkg/platform/strings"
)

// IdentityProvider is the subset of idp.Client the service drives.
type IdentityProvider interface {
	BuildLoginURL(redirectURI string) (string, string, error)
	ProbeLogin(ctx context.Context, loginURL string) error
	ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)
	Revoke(ctx context.Context, token, tokenTypeHint string) error
	SignOutURL(fromURI string) string
}

// Service implements the four backend operations. Errors that carry an IdP
// response implement idp.UpstreamFailure and are relayed verbatim by the
// transport; everything else is a coded domain error.
type Service struct {
	idp       IdentityProvider
	validator idtoken.Validator
	probe     bool
	logger    *slog.Logger
	auditor   audit.Emitter
}

type Option func(*Service)

// WithLoginProbe makes Login issue a GET against the authorize URL before
// handing it out, so IdP misconfiguration surfaces as the IdP's own error.
func WithLoginProbe(enabled bool) Option {
	return func(s *Service) {
		s.probe = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

func New(provider IdentityProvider, validator idtoken.Validator, opts ...Option) *Service {
	s := &Service{
		idp:       provider,
		validator: validator,
		logger:    slog.Default(),
		auditor:   audit.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login returns the IdP authorize URL for redirectURI.
func (s *Service) Login(ctx context.Context, redirectURI string) (string, error) {
	if strings.TrimSpace(redirectURI) == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "redirectURI is required")
	}
	loginURL, _, err := s.idp.BuildLoginURL(redirectURI)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to build login url")
	}
	if s.probe {
		if err := s.idp.ProbeLogin(ctx, loginURL); err != nil {
			s.logger.ErrorContext(ctx, "identity provider rejected login request", "error", err)
			return "", err
		}
	}
	return loginURL, nil
}

// Token exchanges an authorization code for tokens.
func (s *Service) Token(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "code is required")
	}
	if strings.TrimSpace(redirectURI) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "redirectURI is required")
	}
	set, err := s.idp.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to secure access token", "error", err)
		return nil, err
	}
	return set, nil
}

// Logout revokes accessToken and returns the IdP sign-out URL. A revocation
// the IdP answered is logged and ignored; an unreachable IdP fails the call.
func (s *Service) Logout(ctx context.Context, accessToken, redirectURI string) (string, error) {
	if strings.TrimSpace(redirectURI) == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "redirect_uri is required")
	}
	if accessToken != "" {
		if err := s.idp.Revoke(ctx, accessToken, "access_token"); err != nil {
			var rev *idp.TokenRevocationError
			if !errors.As(err, &rev) || unreachable(rev) {
				s.logger.ErrorContext(ctx, "token revocation failed", "error", err)
				return "", err
			}
			s.logger.WarnContext(ctx, "token revocation rejected, continuing logout", "status", rev.StatusCode, "error", err)
			if emitErr := s.auditor.Emit(ctx, audit.Event{
				Action: audit.ActionTokenRevocationFailed,
				Reason: err.Error(),
			}); emitErr != nil {
				s.logger.WarnContext(ctx, "failed to emit audit event", "error", emitErr)
			}
		}
	}
	return s.idp.SignOutURL(redirectURI), nil
}

// User resolves the profile carried by a validated ID token. accessToken
// must be present; it is the caller's proof of a completed exchange.
func (s *Service) User(ctx context.Context, accessToken, rawIDToken string) (*models.UserInfo, error) {
	if accessToken == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}
	if rawIDToken == "" || rawIDToken == "undefined" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unable to retrieve user details because of invalid token ["+rawIDToken+"]")
	}
	token, err := idtoken.Decode(rawIDToken)
	if err == nil {
		err = s.validator.Validate(ctx, token)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "id token rejected", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	}
	name := token.Claims.Name
	if name == "" {
		name = pkgstrings.NameFromEmail(token.Claims.Email)
	}
	return &models.UserInfo{
		Name:              name,
		PreferredUsername: token.Claims.PreferredUsername,
		Email:             token.Claims.Email,
		Roles:             pkgstrings.DedupeAndTrim(token.Claims.Groups),
	}, nil
}

func unreachable(rev *idp.TokenRevocationError) bool {
	return rev.StatusCode == 0 || rev.StatusCode == http.StatusServiceUnavailable
}
