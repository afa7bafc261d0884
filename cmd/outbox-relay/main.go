package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("prod", "info", "outbox-relay")
		l.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "outbox-relay")
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("outbox-relay failed")
	}
	log.Info().Msg("outbox-relay stopped")
}

func run(cfg config.Config, log zerolog.Logger) error {
	log.Info().
		Str("env", cfg.Env).
		Str("sink", cfg.EventSink).
		Str("stream", cfg.EventStream).
		Dur("interval", cfg.RelayInterval).
		Int("batch", cfg.RelayBatch).
		Msg("outbox-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: "outbox-relay", MaxConns: 4})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection error: %w", err)
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	publisher, closeSink, err := newPublisher(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.Error().Err(err).Msg("error closing event sink")
		}
	}()

	m := metrics.New(prometheus.NewRegistry())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.RelayMetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	relay := events.NewRelay(events.NewPgOutbox(pgPool), publisher, cfg.RelayBatch, m, log)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc("@every "+cfg.RelayInterval.String(), func() { runOnce(rootCtx, relay, log) }); err != nil {
		return fmt.Errorf("schedule relay: %w", err)
	}

	// Run once at startup
	runOnce(rootCtx, relay, log)
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping outbox relay")
	<-c.Stop().Done()
	return nil
}

// newPublisher builds the configured sink and the func that releases its
// connections.
func newPublisher(ctx context.Context, cfg config.Config) (events.Publisher, func() error, error) {
	switch cfg.EventSink {
	case "kafka":
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventStream)
		return p, p.Close, nil
	default:
		rdb, err := redisclient.NewClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection error: %w", err)
		}
		return events.NewRedisStreamPublisher(rdb, cfg.EventStream), rdb.Close, nil
	}
}

func runOnce(ctx context.Context, relay *events.Relay, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := relay.RunOnce(runCtx)
	if err != nil {
		// already logged by the relay
		return
	}
	log.Debug().Int("relayed", n).Dur("took", time.Since(start)).Msg("relay tick")
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
