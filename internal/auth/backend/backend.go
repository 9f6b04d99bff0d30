// Package backend calls a remote console auth backend over HTTP. It is the
// browser side of the /auth routes and satisfies session.Backend when the
// console host and the backend run as separate processes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conductor-console/internal/auth/models"
)

const maxResponseBytes = 1 << 20

// UpstreamError is a non-2xx answer from the backend. Body is kept verbatim.
type UpstreamError struct {
	Route      string
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Route, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Route, e.StatusCode, body)
}

// Client talks to the backend rooted at baseURL, e.g. https://console/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type loginRequest struct {
	RedirectURI string `json:"redirectURI"`
}

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectURI"`
}

type logoutRequest struct {
	AccessToken string `json:"access_token"`
	RedirectURI string `json:"redirect_uri"`
}

type userRequest struct {
	IDToken string `json:"idToken"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (c *Client) Login(ctx context.Context, redirectURI string) (string, error) {
	var out urlResponse
	if err := c.post(ctx, "/auth/login", "", loginRequest{RedirectURI: redirectURI}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("/auth/login: response missing url")
	}
	return out.URL, nil
}

func (c *Client) Token(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	var out models.TokenSet
	if err := c.post(ctx, "/auth/token", "", tokenRequest{Code: code, RedirectURI: redirectURI}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("/auth/token: unknown data received")
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, accessToken, redirectURI string) (string, error) {
	var out urlResponse
	if err := c.post(ctx, "/auth/logout", "", logoutRequest{AccessToken: accessToken, RedirectURI: redirectURI}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) User(ctx context.Context, accessToken, idToken string) (*models.UserInfo, error) {
	var out models.UserInfo
	if err := c.post(ctx, "/auth/user", accessToken, userRequest{IDToken: idToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, route, bearer string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", route, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", route, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", route, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", route, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Route: route, StatusCode: resp.StatusCode, Body: body}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", route, err)
	}
	return nil
}
