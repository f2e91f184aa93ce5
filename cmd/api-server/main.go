package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/prmjagdish/schedula/internal/api"
	"github.com/prmjagdish/schedula/internal/auth"
	"github.com/prmjagdish/schedula/internal/booking"
	"github.com/prmjagdish/schedula/internal/booking/pgstore"
	"github.com/prmjagdish/schedula/internal/config"
	"github.com/prmjagdish/schedula/internal/db"
	"github.com/prmjagdish/schedula/internal/logging"
	redisclient "github.com/prmjagdish/schedula/internal/redis"
	"github.com/prmjagdish/schedula/internal/retry"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("api-server", cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Int32("max_conns", cfg.DBMaxConns).Msg("connected to Postgres")

	store := pgstore.New(pgPool, pgstore.WithLockTimeout(5*time.Second))

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.TxMaxAttempts
	retryCfg.InitialDelay = cfg.TxRetryDelay
	opts := []booking.Option{booking.WithRetry(retryCfg)}

	// Redis only backs idempotency keys; without it booking still works.
	var rdb *redis.Client
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, Idempotency-Key disabled")
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		opts = append(opts, booking.WithDeduplicator(redisclient.NewIdempotencyStore(rdb, cfg.IdempotencyTTL, 30*time.Second)))
		log.Info().Msg("connected to Redis")
	}

	router := api.NewRouter(api.RouterConfig{
		Coordinator:  booking.NewCoordinator(store, opts...),
		Availability: booking.NewAvailabilityView(store),
		Slots:        booking.NewSlotService(store),
		Tokens:       auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
		Health:       api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
		RateLimitRPS: cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("api-server stopped")
}
