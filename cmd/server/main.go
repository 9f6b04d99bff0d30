package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"conductor-console/internal/audit"
	auditkafka "conductor-console/internal/audit/kafka"
	auditmemory "conductor-console/internal/audit/memory"
	"conductor-console/internal/auth/backend"
	"conductor-console/internal/auth/idp"
	"conductor-console/internal/auth/idtoken"
	"conductor-console/internal/auth/service"
	"conductor-console/internal/auth/session"
	"conductor-console/internal/console"
	"conductor-console/internal/platform/config"
	"conductor-console/internal/platform/httpserver"
	"conductor-console/internal/platform/logger"
	"conductor-console/internal/platform/metrics"
	"conductor-console/internal/platform/postgres"
	"conductor-console/internal/platform/redis"
	"conductor-console/internal/storage"
	"conductor-console/internal/storage/memory"
	storagepostgres "conductor-console/internal/storage/postgres"
	storageredis "conductor-console/internal/storage/redis"
	httptransport "conductor-console/internal/transport/http"
)

const (
	shutdownGrace = 10 * time.Second
	sweepInterval = 5 * time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("console stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("console stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	clock := clockwork.NewRealClock()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	health := map[string]console.HealthCheck{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	durable, err := openStorage(ctx, cfg.Storage, health, &closers)
	if err != nil {
		return err
	}
	log.Info("device storage ready", "driver", cfg.Storage.Driver)

	auditStore, err := openAudit(ctx, cfg.Audit, health, &closers)
	if err != nil {
		return err
	}
	publisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(cfg.Audit.BufferSize),
		audit.WithLogger(log),
		audit.WithClock(clock),
	)
	closers = append(closers, publisher.Close)

	validator := idtoken.NewClaimsOnlyValidator(cfg.IdP.Issuer(), idtoken.WithClock(clock))
	handlerOpts := []console.HandlerOption{
		console.WithLogger(log),
		console.WithOrigin(cfg.Origin),
		console.WithSecureCookies(cfg.Session.SecureCookies),
		console.WithHealthChecks(health),
	}

	var sessionBackend session.Backend
	if cfg.Session.BackendURL != "" {
		sessionBackend = backend.New(cfg.Session.BackendURL)
		log.Info("using remote auth backend", "url", cfg.Session.BackendURL)
	} else {
		provider := idp.New(idp.Config{
			ServiceURL:     cfg.IdP.ServiceURL,
			AuthServerCode: cfg.IdP.AuthServerCode,
			ClientID:       cfg.IdP.ClientID,
			ClientSecret:   cfg.IdP.ClientSecret,
		}, idp.WithMetrics(m))
		svc := service.New(provider, validator,
			service.WithLoginProbe(cfg.IdP.ProbeLogin),
			service.WithLogger(log),
			service.WithAuditor(publisher),
		)
		sessionBackend = svc
		handlerOpts = append(handlerOpts, console.WithAPI(httptransport.NewAuthHandler(svc, log).Register))
	}

	registry := console.NewRegistry(console.Config{
		Backend:            sessionBackend,
		Validator:          validator,
		Durable:            durable,
		Transient:          memory.NewInMemoryStore(),
		Clock:              clock,
		InactivityTimeout:  cfg.Session.InactivityTimeout,
		ErrorRedirectDelay: cfg.Session.ErrorRedirectDelay,
		Logger:             log,
		Metrics:            m,
		Auditor:            publisher,
	})
	defer registry.Close()

	router := chi.NewRouter()
	router.Use(httptransport.Common(log, m, clock)...)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	console.NewHandler(registry, handlerOpts...).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting conductor console", "addr", cfg.Addr, "origin", cfg.Origin)
		return httpserver.Run(gctx, srv, shutdownGrace)
	})
	g.Go(func() error {
		return registry.Run(gctx, sweepInterval)
	})
	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.StorageConfig, health map[string]console.HealthCheck, closers *[]func()) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if client == nil {
			return nil, errors.New("redis storage selected without REDIS_URL")
		}
		health["redis"] = client.Health
		*closers = append(*closers, func() { _ = client.Close() })
		return storageredis.NewRedis(client.Client), nil
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = db.Close() })
		health["postgres"] = db.PingContext
		store := storagepostgres.NewPostgres(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure storage schema: %w", err)
		}
		return store, nil
	default:
		return memory.NewInMemoryStore(), nil
	}
}

func openAudit(ctx context.Context, cfg config.AuditConfig, health map[string]console.HealthCheck, closers *[]func()) (audit.Store, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return auditmemory.NewInMemoryStore(), nil
	}
	store, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("create audit producer: %w", err)
	}
	*closers = append(*closers, store.Close)
	if err := store.EnsureTopic(ctx, 1, 1); err != nil {
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	health["kafka"] = store.Health
	return store, nil
}
