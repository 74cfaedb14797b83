package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/af-corp/persona-assistant/internal/auth"
	"github.com/af-corp/persona-assistant/internal/automation"
	"github.com/af-corp/persona-assistant/internal/billing"
	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/gateway"
	"github.com/af-corp/persona-assistant/internal/geo"
	"github.com/af-corp/persona-assistant/internal/ratelimit"
	"github.com/af-corp/persona-assistant/internal/router"
	"github.com/af-corp/persona-assistant/internal/router/adapters"
	"github.com/af-corp/persona-assistant/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logLevel.Set(parseLevel(loader.Config().Telemetry.LogLevel))
	loader.OnReload(func() {
		logLevel.Set(parseLevel(loader.Config().Telemetry.LogLevel))
	})

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := loader.Watch(watchCtx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		logger.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (built-in models only, billing and auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (caches and rate limits disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	modelsCfg := func() *config.ModelsConfig { return loader.Models() }
	upstreamCfg := func() config.UpstreamConfig { return loader.Config().Upstream }
	backoff := func(i int) time.Duration {
		u := upstreamCfg()
		return router.LinearBackoff(u.BackoffBase, u.BackoffStep)(i)
	}

	geoResolver := geo.NewResolver(func() config.GeoConfig { return loader.Config().Geo }, &http.Client{}, rdb)
	geoResolver.OnResolve = metrics.RecordGeo

	queryTimeout := cfg.Database.QueryTimeout
	candidates := router.NewCandidateResolver(router.NewPGConfigStore(dbPool), modelsCfg, upstreamCfg, queryTimeout)
	completions := adapters.NewOpenAIGateway(upstreamCfg, adapters.NewHTTPClient(cfg.Upstream))
	orchestrator := router.NewOrchestrator(candidates, completions, backoff, metrics)

	handler := gateway.NewHandler(gateway.Deps{
		Geo:          geoResolver,
		Candidates:   candidates,
		Orchestrator: orchestrator,
		Provisioner: automation.NewProvisioner(automation.NewPGStore(dbPool),
			func() config.AutomationConfig { return loader.Config().Automation }, queryTimeout, metrics),
		Ledger:  billing.NewLedger(billing.NewPGStore(dbPool), modelsCfg, queryTimeout, metrics),
		Config:  loader.Config,
		Metrics: metrics,
	})

	sessions := auth.NewCachedSessionStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(gateway.RequestID)

	r.Get("/healthz", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))
		r.Get("/v1/models", handler.ListModels)
		r.With(ratelimit.Middleware(limiter, func() config.RateLimitConfig { return loader.Config().RateLimit }, metrics)).
			Post("/v1/chat", handler.Chat)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("assistant starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		errCh <- metricsSrv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	metricsSrv.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("assistant stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
