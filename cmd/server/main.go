package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/adapters/http/middleware"
	"github.com/JeanGrijp/request-guard/internal/adapters/http/router"
	"github.com/JeanGrijp/request-guard/internal/adapters/metrics"
	"github.com/JeanGrijp/request-guard/internal/adapters/session"
	"github.com/JeanGrijp/request-guard/internal/adapters/storage/memory"
	redisstorage "github.com/JeanGrijp/request-guard/internal/adapters/storage/redis"
	"github.com/JeanGrijp/request-guard/internal/config"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
	"github.com/JeanGrijp/request-guard/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	storage, users, closeFn, err := initStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init storage")
	}
	defer closeFn()

	var promMetrics *metrics.PrometheusMetrics
	var limiterMetrics ports.Metrics
	if cfg.Metrics.Enabled {
		promMetrics = metrics.NewPrometheusMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
		limiterMetrics = promMetrics
	}

	limiter, err := services.NewRateLimiterService(storage, services.Config{
		Rules:              cfg.RateLimiter.Rules,
		SweepInterval:      cfg.RateLimiter.SweepInterval,
		ThreatIdleTTL:      cfg.RateLimiter.ThreatIdleTTL,
		AutoBlockThreshold: cfg.RateLimiter.AutoBlockThreshold,
		AutoBlockDuration:  cfg.RateLimiter.AutoBlockDuration,
		Metrics:            limiterMetrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create limiter")
	}

	security, err := services.NewSecurityService(session.ContextResolver{}, users)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create security service")
	}

	signer, err := session.NewSigner(cfg.Security.SessionSecret, cfg.Security.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session signer")
	}

	apiRule, err := limiter.Rule("api")
	if err != nil {
		log.Fatal().Err(err).Msg("missing api rate limit rule")
	}
	adminRule, err := limiter.Rule("admin")
	if err != nil {
		log.Fatal().Err(err).Msg("missing admin rate limit rule")
	}

	deps := router.Deps{
		Limiter:        limiter,
		Guard:          security,
		Sessions:       signer,
		CookieName:     cfg.Security.CookieName,
		ThreatPatterns: middleware.DefaultThreatPatterns(),
		APIRule:        apiRule,
		AdminRule:      adminRule,
		MetricsPath:    cfg.Metrics.Path,
	}
	if promMetrics != nil {
		promMetrics.RegisterStatsGauges(cfg.Metrics.Namespace, limiter)
		deps.Metrics = promMetrics.Handler()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router.New(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter.Start(ctx)
	defer limiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("storage", cfg.Storage.Type).
			Int("rules", len(cfg.RateLimiter.Rules)).
			Msg("request guard listening")
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func initStorage(cfg config.Config) (ports.Storage, ports.UserStore, func(), error) {
	switch cfg.Storage.Type {
	case "redis":
		redisCfg := redisstorage.Config{
			Addr:      fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
			ThreatTTL: cfg.RateLimiter.ThreatIdleTTL,
		}
		storage, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		users := redisstorage.NewUserStore(storage.Client(), cfg.Storage.Redis.KeyPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, u := range cfg.Security.SeedUsers {
			if err := users.Save(ctx, u); err != nil {
				_ = storage.Close()
				return nil, nil, nil, fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}
		return storage, users, func() {
			if err := storage.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis storage")
			}
		}, nil
	case "memory":
		log.Warn().Msg("in-memory storage: limits are per instance and reset on restart")
		return memory.New(), memory.NewUserStore(cfg.Security.SeedUsers...), func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
