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

	"github.com/rs/zerolog/log"

	"github.com/smallwat3r/secretlink/internal/app"
	"github.com/smallwat3r/secretlink/internal/config"
	"github.com/smallwat3r/secretlink/internal/logging"
	"github.com/smallwat3r/secretlink/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build logger")
	}
	logging.SetGlobal(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	handler := app.NewHandler(backend.store, app.HandlerConfig{
		GateMode:    cfg.GateMode,
		TTL:         cfg.SecretTTL,
		MaxAttempts: cfg.MaxAttempts,
	})
	router := app.NewRouter(handler, app.RouterConfig{
		Security:   app.SecurityHeadersConfig{RequireHTTPS: cfg.RequireHTTPS},
		TrustProxy: cfg.TrustProxy,
		RateLimit:  backend.rateLimit,
		Logger:     log.Logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.StoreType).
			Str("gate_mode", cfg.GateMode).
			Dur("ttl", cfg.SecretTTL).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	return nil
}

type backend struct {
	store     store.Store
	rateLimit func(http.Handler) http.Handler
}

// openBackend connects the configured store. Redis also backs the rate
// limiter so limits hold across replicas; other stores limit per process.
func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	opts := store.DefaultOptions()
	opts.TTL = cfg.SecretTTL
	opts.MaxAttempts = cfg.MaxAttempts

	limits := app.RateLimitConfig{
		PostLimit: cfg.RateLimitPost,
		GetLimit:  cfg.RateLimitGet,
		Window:    cfg.RateLimitWindow,
	}

	switch cfg.StoreType {
	case config.StoreRedis:
		rdb, err := store.NewRedisClient(ctx, store.RedisOptions{
			URL:          cfg.RedisURL,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdle,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
			PoolTimeout:  cfg.RedisPoolTimeout,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{
			store:     store.NewRedisStore(rdb, opts),
			rateLimit: app.NewRateLimiter(rdb, limits).Handler,
		}, nil

	case config.StoreMySQL:
		db, err := store.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			return backend{}, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return backend{}, fmt.Errorf("connect to mysql: %w", err)
		}
		s, err := store.NewSQLStore(ctx, db, opts, cfg.CleanupInterval)
		if err != nil {
			db.Close()
			return backend{}, err
		}
		return backend{
			store:     s,
			rateLimit: app.NewLocalRateLimiter(ctx, limits).Handler,
		}, nil

	case config.StoreMemory:
		log.Warn().Msg("using in-memory store, secrets are lost on restart")
		return backend{
			store:     store.NewMemoryStore(opts, cfg.CleanupInterval),
			rateLimit: app.NewLocalRateLimiter(ctx, limits).Handler,
		}, nil
	}
	return backend{}, fmt.Errorf("unknown store type %q", cfg.StoreType)
}
