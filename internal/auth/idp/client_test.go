package idp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"conductor-console/internal/platform/metrics"
)

const authServer = "aus123"

type fakeIdP struct {
	*httptest.Server
	tokenHandler  http.HandlerFunc
	revokeHandler http.HandlerFunc
	authorize     http.HandlerFunc
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	f := &fakeIdP{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/"+authServer+"/v1/token", func(w http.ResponseWriter, r *http.Request) { f.tokenHandler(w, r) })
	mux.HandleFunc("/oauth2/"+authServer+"/v1/revoke", func(w http.ResponseWriter, r *http.Request) { f.revokeHandler(w, r) })
	mux.HandleFunc("/oauth2/"+authServer+"/v1/authorize", func(w http.ResponseWriter, r *http.Request) { f.authorize(w, r) })
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(f *fakeIdP, opts ...Option) *Client {
	return New(Config{
		ServiceURL:     f.URL,
		AuthServerCode: authServer,
		ClientID:       "console",
		ClientSecret:   "s3cret",
	}, append([]Option{WithHTTPClient(f.Client())}, opts...)...)
}

func TestBuildLoginURL(t *testing.T) {
	c := New(Config{ServiceURL: "https://idp.example.com/", AuthServerCode: authServer, ClientID: "console"})

	raw, state, err := c.BuildLoginURL("https://console.example.com")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.Equal(t, "/oauth2/aus123/v1/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "console", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "https://console.example.com", q.Get("redirect_uri"))
	assert.Equal(t, state, q.Get("state"))
	assert.True(t, strings.HasPrefix(state, "state-"))

	_, second, err := c.BuildLoginURL("https://console.example.com")
	require.NoError(t, err)
	assert.NotEqual(t, state, second, "state is fresh per call")

	_, _, err = c.BuildLoginURL("")
	assert.Error(t, err)
}

func TestSignOutURLAndIssuer(t *testing.T) {
	c := New(Config{ServiceURL: "https://idp.example.com", AuthServerCode: authServer})

	assert.Equal(t, "https://idp.example.com/oauth2/aus123", c.Issuer())
	assert.Equal(t,
		"https://idp.example.com/login/signout?fromURI=https%3A%2F%2Fconsole.example.com",
		c.SignOutURL("https://console.example.com"))
}

func TestExchangeCode(t *testing.T) {
	f := newFakeIdP(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "console", id)
		assert.Equal(t, "s3cret", secret)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc", r.PostForm.Get("code"))
		assert.Equal(t, "https://console.example.com", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"id_token":     "it-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newTestClient(f, WithMetrics(m))

	tokens, err := c.ExchangeCode(context.Background(), "abc", "https://console.example.com")
	require.NoError(t, err)

	assert.Equal(t, "at-1", tokens.AccessToken)
	assert.Equal(t, "it-1", tokens.IDToken)
	assert.Equal(t, int64(3600), tokens.ExpiresIn)
	assert.Equal(t, 1, promtestutil.CollectAndCount(m.IdPRequestDuration))
}

func TestClientCredentialsAreNotEscaped(t *testing.T) {
	const secret = "a+b/c="
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("console:"+secret))

	f := newFakeIdP(t)
	var tokenAuth, revokeAuth string
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		tokenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"id_token":     "it-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
	f.revokeHandler = func(w http.ResponseWriter, r *http.Request) {
		revokeAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}
	c := New(Config{
		ServiceURL:     f.URL,
		AuthServerCode: authServer,
		ClientID:       "console",
		ClientSecret:   secret,
	}, WithHTTPClient(f.Client()))

	_, err := c.ExchangeCode(context.Background(), "abc", "https://console.example.com")
	require.NoError(t, err)
	require.NoError(t, c.Revoke(context.Background(), "at-1", "access_token"))

	assert.Equal(t, want, tokenAuth)
	assert.Equal(t, want, revokeAuth)
}

func TestExchangeCode_PropagatesIdPError(t *testing.T) {
	f := newFakeIdP(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}
	c := newTestClient(f)

	_, err := c.ExchangeCode(context.Background(), "stale", "https://console.example.com")

	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusBadRequest, exErr.HTTPStatus())
	assert.Contains(t, string(exErr.ResponseBody()), "invalid_grant")
	assert.Equal(t, "application/json", exErr.ResponseContentType())
}

func TestExchangeCode_MissingIDToken(t *testing.T) {
	f := newFakeIdP(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":60}`))
	}
	c := newTestClient(f)

	_, err := c.ExchangeCode(context.Background(), "abc", "https://console.example.com")

	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusBadGateway, exErr.HTTPStatus())
}

func TestRevoke(t *testing.T) {
	f := newFakeIdP(t)
	f.revokeHandler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "console", id)
		assert.Equal(t, "s3cret", secret)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "at-1", r.PostForm.Get("token"))
		assert.Equal(t, "access_token", r.PostForm.Get("token_type_hint"))
		w.WriteHeader(http.StatusOK)
	}
	c := newTestClient(f)

	require.NoError(t, c.Revoke(context.Background(), "at-1", "access_token"))

	f.revokeHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}
	err := c.Revoke(context.Background(), "at-1", "access_token")
	var revErr *TokenRevocationError
	require.ErrorAs(t, err, &revErr)
	assert.Equal(t, http.StatusUnauthorized, revErr.HTTPStatus())
}

func TestProbeLogin(t *testing.T) {
	f := newFakeIdP(t)
	c := newTestClient(f)
	loginURL, _, err := c.BuildLoginURL("https://console.example.com")
	require.NoError(t, err)

	t.Run("redirect to login page is reachable", func(t *testing.T) {
		f.authorize = func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/login", http.StatusFound)
		}
		assert.NoError(t, c.ProbeLogin(context.Background(), loginURL))
	})

	t.Run("error status and body propagate", func(t *testing.T) {
		f.authorize = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid client_id"))
		}
		err := c.ProbeLogin(context.Background(), loginURL)
		var probeErr *LoginProbeError
		require.ErrorAs(t, err, &probeErr)
		assert.Equal(t, http.StatusBadRequest, probeErr.HTTPStatus())
		assert.Equal(t, "invalid client_id", string(probeErr.ResponseBody()))
	})
}

func TestBreaker_OnlyServerFaultsTrip(t *testing.T) {
	f := newFakeIdP(t)
	var status atomic.Int32
	var calls atomic.Int32
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":"x"}`))
	}
	c := newTestClient(f, WithBreakerSettings(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))
	ctx := context.Background()

	status.Store(http.StatusBadRequest)
	for range 3 {
		_, err := c.ExchangeCode(ctx, "bad", "https://console.example.com")
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load(), "4xx answers never open the breaker")

	status.Store(http.StatusBadGateway)
	for range 2 {
		_, _ = c.ExchangeCode(ctx, "abc", "https://console.example.com")
	}
	assert.Equal(t, int32(5), calls.Load())

	_, err := c.ExchangeCode(ctx, "abc", "https://console.example.com")
	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusServiceUnavailable, exErr.HTTPStatus())
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(5), calls.Load(), "open breaker short-circuits")
}

func TestSpans(t *testing.T) {
	f := newFakeIdP(t)
	f.revokeHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	c := newTestClient(f, WithTracerProvider(tp))

	err := c.Revoke(context.Background(), "at", "access_token")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "idp.revoke", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
