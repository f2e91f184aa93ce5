package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/prmjagdish/schedula/internal/config"
	"github.com/prmjagdish/schedula/internal/db"
	"github.com/prmjagdish/schedula/internal/logging"
	"github.com/prmjagdish/schedula/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("notify-relay", cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Str("queue", cfg.NotifyQueue).
		Msg("notify-relay starting up")

	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required for the notification relay")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 4)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	conn, err := amqp091.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("error closing rabbitmq connection")
		}
	}()

	publisher, err := notify.NewAMQPPublisher(conn, cfg.NotifyQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq channel setup error")
	}
	defer publisher.Close()
	log.Info().Msg("connected to RabbitMQ")

	outbox := notify.NewPgOutbox(pgPool)
	relay := notify.NewRelay(outbox, publisher, cfg.RelayBatchSize)

	// Run once at startup
	runOnce(rootCtx, relay, outbox)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping notify relay")
			return
		case amqpErr := <-closed:
			// the process supervisor restarts us with a fresh connection
			log.Fatal().Err(amqpErr).Msg("rabbitmq connection closed")
		case <-ticker.C:
			runOnce(rootCtx, relay, outbox)
		}
	}
}

func runOnce(ctx context.Context, relay *notify.Relay, outbox *notify.PgOutbox) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	logger := log.With().Str("component", "relay").Logger()
	runCtx = logger.WithContext(runCtx)

	start := time.Now()
	published, err := relay.RunOnce(runCtx)
	if err != nil {
		logger.Error().Err(err).Int("published", published).Msg("relay run error")
		return
	}

	ev := logger.Debug()
	if published > 0 {
		ev = logger.Info()
	}
	ev = ev.Int("published", published).Dur("took", time.Since(start))
	if backlog, err := outbox.Backlog(runCtx); err == nil {
		ev = ev.Int("backlog", backlog)
	}
	ev.Msg("relay run complete")
}
