package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the console auth flow.
type Metrics struct {
	LoginRedirects     *prometheus.CounterVec
	TokenExchanges     *prometheus.CounterVec
	Authorizations     *prometheus.CounterVec
	Logouts            *prometheus.CounterVec
	InactivityTimeouts prometheus.Counter
	IdPRequestDuration *prometheus.HistogramVec
	HTTPLatency        *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginRedirects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "console_login_redirects_total",
			Help: "Login redirects to the identity provider by result",
		}, []string{"result"}),
		TokenExchanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "console_token_exchanges_total",
			Help: "Authorization code exchanges by result",
		}, []string{"result"}),
		Authorizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "console_authorizations_total",
			Help: "Authorization decisions by outcome (ADMIN, VIEWER, forbidden)",
		}, []string{"outcome"}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "console_logouts_total",
			Help: "Logouts by result",
		}, []string{"result"}),
		InactivityTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "console_inactivity_timeouts_total",
			Help: "Sessions ended by the inactivity watchdog",
		}),
		IdPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_idp_request_duration_seconds",
			Help:    "Latency of identity provider calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IncLoginRedirect(result string) {
	m.LoginRedirects.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTokenExchange(result string) {
	m.TokenExchanges.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAuthorization(outcome string) {
	m.Authorizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLogout(result string) {
	m.Logouts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncInactivityTimeout() {
	m.InactivityTimeouts.Inc()
}

// ObserveIdPRequest records the duration since start for an IdP operation.
func (m *Metrics) ObserveIdPRequest(operation string, start time.Time) {
	m.IdPRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTPRequest(method, route string, start time.Time) {
	m.HTTPLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
