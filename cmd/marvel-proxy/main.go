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

	"github.com/Sternrassler/marvel-client/internal/server"
	"github.com/Sternrassler/marvel-client/pkg/catalog"
	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/Sternrassler/marvel-client/pkg/config"
	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
	"github.com/Sternrassler/marvel-client/pkg/quota"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Proxy failed")
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("upstream", cfg.Upstream.BaseURL).
			Bool("quota", cfg.QuotaEnabled()).
			Str("version", version).
			Msg("Starting Marvel proxy")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("Proxy stopped")
	return nil
}

// app holds the wired components behind the HTTP handler.
type app struct {
	handler http.Handler
	client  *client.Client
	redis   *redis.Client
}

// newApp wires the proxy. Redis is only dialed when an address is
// configured; an unreachable Redis fails startup.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	var tracker *quota.Tracker
	if cfg.QuotaEnabled() {
		a.redis = redis.NewClient(cfg.RedisOptions())

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

		tracker = quota.NewTracker(a.redis, cfg.QuotaConfig(), logging.NewLogger("quota"))
	}

	c, err := client.New(cfg.ClientConfig(tracker))
	if err != nil {
		if a.redis != nil {
			a.redis.Close()
		}
		return nil, fmt.Errorf("create client: %w", err)
	}
	a.client = c

	svc := catalog.NewService(c)
	agg := pagination.NewAggregator(svc, cfg.AggregatorConfig())

	opts := server.Options{
		Version:               version,
		DefaultAggregateLimit: cfg.Batch.DefaultLimit,
		RequestTimeout:        cfg.Server.RequestTimeout,
	}
	if tracker != nil {
		opts.Ready = tracker
	}

	a.handler = server.New(svc, agg, opts).Handler()
	return a, nil
}

// Close releases pooled connections.
func (a *app) Close() {
	a.client.Close()
	if a.redis != nil {
		a.redis.Close()
	}
}
