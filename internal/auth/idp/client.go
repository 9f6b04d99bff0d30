// Package idp talks to the OAuth2/OIDC identity provider: it builds the
// authorization URL, exchanges codes for tokens and revokes tokens.
package idp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"conductor-console/internal/auth/models"
	"conductor-console/internal/platform/metrics"
)

// Scopes requested at login.
var Scopes = []string{"openid", "email", "profile"}

const maxErrorBody = 64 << 10

// Config is the console's client registration at the IdP.
type Config struct {
	ServiceURL     string
	AuthServerCode string
	ClientID       string
	ClientSecret   string
}

// Issuer is the authorization server URL, also the expected iss claim.
func (c Config) Issuer() string {
	return strings.TrimSuffix(c.ServiceURL, "/") + "/oauth2/" + c.AuthServerCode
}

// Client calls the IdP. It does not retry.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	tracer     trace.Tracer
	metrics    *metrics.Metrics
	newState   func() string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer("conductor-console/idp")
		}
	}
}

// WithBreakerSettings overrides the circuit breaker tuning. IsSuccessful is
// always replaced so only server faults count.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) {
		st.IsSuccessful = func(err error) bool { return !serverFault(err) }
		c.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// WithStateGenerator replaces the random login state source.
func WithStateGenerator(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newState = fn
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		tracer:     otel.Tracer("conductor-console/idp"),
		newState:   func() string { return "state-" + uuid.NewString() },
	}
	WithBreakerSettings(gobreaker.Settings{
		Name:        "idp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})(c)
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Issuer returns the expected iss claim of ID tokens.
func (c *Client) Issuer() string {
	return c.cfg.Issuer()
}

func (c *Client) endpoint() oauth2.Endpoint {
	base := c.cfg.Issuer() + "/v1"
	return oauth2.Endpoint{
		AuthURL:   base + "/authorize",
		TokenURL:  base + "/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

func (c *Client) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     c.endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
	}
}

// BuildLoginURL returns the authorization URL and the fresh state it carries.
func (c *Client) BuildLoginURL(redirectURI string) (string, string, error) {
	if redirectURI == "" {
		return "", "", errors.New("redirect uri is required")
	}
	state := c.newState()
	return c.oauthConfig(redirectURI).AuthCodeURL(state), state, nil
}

// SignOutURL is the IdP page that ends the IdP session and returns to fromURI.
func (c *Client) SignOutURL(fromURI string) string {
	return strings.TrimSuffix(c.cfg.ServiceURL, "/") + "/login/signout?fromURI=" + url.QueryEscape(fromURI)
}

// ProbeLogin issues a GET against loginURL and fails with *LoginProbeError
// unless the IdP answers 2xx or a redirect.
func (c *Client) ProbeLogin(ctx context.Context, loginURL string) error {
	_, err := c.call(ctx, "probe_login", func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
		if err != nil {
			return nil, NewLoginProbeError(0, nil, "", err)
		}
		resp, err := c.noRedirectClient().Do(req)
		if err != nil {
			return nil, NewLoginProbeError(0, nil, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, NewLoginProbeError(resp.StatusCode, body, resp.Header.Get("Content-Type"), nil)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}, func(err error) error { return NewLoginProbeError(http.StatusServiceUnavailable, nil, "", err) })
	return err
}

// ExchangeCode trades an authorization code for tokens. Non-2xx answers
// surface as *TokenExchangeError carrying the IdP status and body.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	res, err := c.call(ctx, "token", func(ctx context.Context) (any, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.tokenClient())
		tok, err := c.oauthConfig(redirectURI).Exchange(ctx, code)
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) && re.Response != nil {
				return nil, NewTokenExchangeError(re.Response.StatusCode, re.Body, re.Response.Header.Get("Content-Type"), err)
			}
			return nil, NewTokenExchangeError(0, nil, "", err)
		}
		idToken, _ := tok.Extra("id_token").(string)
		if idToken == "" {
			return nil, NewTokenExchangeError(http.StatusBadGateway, nil, "", errors.New("response missing id_token"))
		}
		return &models.TokenSet{
			AccessToken: tok.AccessToken,
			IDToken:     idToken,
			ExpiresIn:   expiresIn(tok),
		}, nil
	}, func(err error) error { return NewTokenExchangeError(http.StatusServiceUnavailable, nil, "", err) })
	if err != nil {
		return nil, err
	}
	return res.(*models.TokenSet), nil
}

// Revoke asks the IdP to revoke token. Failures surface as
// *TokenRevocationError; callers proceed with local logout regardless.
func (c *Client) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	_, err := c.call(ctx, "revoke", func(ctx context.Context) (any, error) {
		form := url.Values{"token": {token}}
		if tokenTypeHint != "" {
			form.Set("token_type_hint", tokenTypeHint)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Issuer()+"/v1/revoke", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, NewTokenRevocationError(0, nil, "", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Cache-Control", "no-cache")
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, NewTokenRevocationError(0, nil, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, NewTokenRevocationError(resp.StatusCode, body, resp.Header.Get("Content-Type"), nil)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}, func(err error) error { return NewTokenRevocationError(http.StatusServiceUnavailable, nil, "", err) })
	return err
}

// call runs fn behind the breaker inside a span and records its latency.
// onOpen converts breaker rejections into the operation's error type.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) (any, error), onOpen func(error) error) (any, error) {
	ctx, span := c.tracer.Start(ctx, "idp."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("idp.operation", op),
		attribute.String("idp.issuer", c.cfg.Issuer()),
	)
	if c.metrics != nil {
		defer c.metrics.ObserveIdPRequest(op, time.Now())
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = onOpen(err)
	}
	if err != nil {
		var uf UpstreamFailure
		if errors.As(err, &uf) {
			span.SetAttributes(attribute.Int("http.response.status_code", uf.HTTPStatus()))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s failed", op))
		return nil, err
	}
	return res, nil
}

// noRedirectClient reuses the transport but reports redirects as-is, so a
// login page redirect counts as a reachable IdP.
func (c *Client) noRedirectClient() *http.Client {
	hc := *c.httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &hc
}

// tokenClient sends the client credentials as plain base64(id:secret).
// x/oauth2 form-escapes them first, which changes secrets containing '+',
// '/' or '='.
func (c *Client) tokenClient() *http.Client {
	hc := *c.httpClient
	hc.Transport = &basicAuthTransport{
		base:     c.httpClient.Transport,
		clientID: c.cfg.ClientID,
		secret:   c.cfg.ClientSecret,
	}
	return &hc
}

type basicAuthTransport struct {
	base     http.RoundTripper
	clientID string
	secret   string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.clientID, t.secret)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

func expiresIn(tok *oauth2.Token) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		return int64(time.Until(tok.Expiry).Seconds())
	}
	return 0
}
