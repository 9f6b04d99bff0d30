package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default values applied when the environment leaves a setting empty.
const (
	DefaultAddr               = ":5000"
	DefaultOrigin             = "http://localhost:5000"
	DefaultInactivityTimeout  = 30 * time.Minute
	DefaultErrorRedirectDelay = 3 * time.Second
	DefaultAuditTopic         = "console.auth.audit"
	DefaultAuditBuffer        = 256
)

// Storage drivers for durable device storage.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr      string
	Origin    string
	LogLevel  string
	LogFormat string

	IdP     IdPConfig
	Session SessionConfig
	Storage StorageConfig
	Audit   AuditConfig
}

// IdPConfig describes the OAuth2/OIDC identity provider the console logs in against.
type IdPConfig struct {
	ServiceURL     string
	AuthServerCode string
	ClientID       string
	ClientSecret   string
	// ProbeLogin issues a GET against the authorize URL before handing it out.
	ProbeLogin bool
}

// SessionConfig tunes the browser-side session controller.
type SessionConfig struct {
	InactivityTimeout  time.Duration
	ErrorRedirectDelay time.Duration
	// BackendURL points the controller at a remote auth backend. Empty means
	// the in-process service is used.
	BackendURL    string
	SecureCookies bool
}

// StorageConfig selects the durable key/value backend.
type StorageConfig struct {
	Driver      string
	Redis       RedisConfig
	DatabaseURL string
}

// RedisConfig mirrors the go-redis options the console overrides.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig configures where auth decisions are published.
type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	BufferSize   int
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() Server {
	_ = godotenv.Load()

	addr := os.Getenv("CONSOLE_ADDR")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = DefaultAddr
		}
	}

	return Server{
		Addr:      addr,
		Origin:    strings.TrimSuffix(envOr("CONSOLE_ORIGIN", DefaultOrigin), "/"),
		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "json"),
		IdP: IdPConfig{
			ServiceURL:     strings.TrimSuffix(os.Getenv("OKTA_SERVICE_URL"), "/"),
			AuthServerCode: os.Getenv("OKTA_AUTH_SERVER_CODE"),
			ClientID:       os.Getenv("CLIENT_ID"),
			ClientSecret:   os.Getenv("CLIENT_SECRET"),
			ProbeLogin:     envBool("IDP_PROBE_LOGIN", true),
		},
		Session: SessionConfig{
			InactivityTimeout:  envDuration("INACTIVITY_TIMEOUT", DefaultInactivityTimeout),
			ErrorRedirectDelay: envDuration("ERROR_REDIRECT_DELAY", DefaultErrorRedirectDelay),
			BackendURL:         strings.TrimSuffix(os.Getenv("CONSOLE_BACKEND_URL"), "/"),
			SecureCookies:      envBool("SECURE_COOKIES", false),
		},
		Storage: StorageConfig{
			Driver: envOr("STORAGE_DRIVER", StorageMemory),
			Redis: RedisConfig{
				URL:          os.Getenv("REDIS_URL"),
				PoolSize:     envInt("REDIS_POOL_SIZE", 10),
				MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
				DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Audit: AuditConfig{
			KafkaBrokers: envList("AUDIT_KAFKA_BROKERS"),
			KafkaTopic:   envOr("AUDIT_KAFKA_TOPIC", DefaultAuditTopic),
			BufferSize:   envInt("AUDIT_BUFFER_SIZE", DefaultAuditBuffer),
		},
	}
}

// Validate reports every missing or malformed setting at once.
func (s Server) Validate() error {
	var errs []error
	if s.Session.BackendURL == "" {
		// The in-process auth service needs the full IdP registration.
		if s.IdP.ServiceURL == "" {
			errs = append(errs, errors.New("OKTA_SERVICE_URL is required"))
		}
		if s.IdP.AuthServerCode == "" {
			errs = append(errs, errors.New("OKTA_AUTH_SERVER_CODE is required"))
		}
		if s.IdP.ClientID == "" {
			errs = append(errs, errors.New("CLIENT_ID is required"))
		}
		if s.IdP.ClientSecret == "" {
			errs = append(errs, errors.New("CLIENT_SECRET is required"))
		}
	}
	if _, err := url.ParseRequestURI(s.Origin); err != nil {
		errs = append(errs, fmt.Errorf("CONSOLE_ORIGIN is invalid: %w", err))
	}
	if s.Session.InactivityTimeout <= 0 {
		errs = append(errs, errors.New("INACTIVITY_TIMEOUT must be positive"))
	}
	switch s.Storage.Driver {
	case StorageMemory:
	case StorageRedis:
		if s.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis storage driver"))
		}
	case StoragePostgres:
		if s.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", s.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Issuer is the OIDC issuer of the configured authorization server.
func (c IdPConfig) Issuer() string {
	return c.ServiceURL + "/oauth2/" + c.AuthServerCode
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
