package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/cio-segment-proxy/pkg/auth"
	"github.com/Sternrassler/cio-segment-proxy/pkg/client"
	"github.com/Sternrassler/cio-segment-proxy/pkg/config"
	"github.com/Sternrassler/cio-segment-proxy/pkg/logging"
	"github.com/Sternrassler/cio-segment-proxy/pkg/pagination"
	"github.com/Sternrassler/cio-segment-proxy/pkg/ratelimit"
	"github.com/Sternrassler/cio-segment-proxy/pkg/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.Setup(logging.DefaultConfig())
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := setupLogging(cfg, os.Stderr)

	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

// setupLogging configures the global logger from cfg and returns the logger
// for this package.
func setupLogging(cfg config.Config, out io.Writer) zerolog.Logger {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: out,
	})
	return logging.NewLogger("main")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		logger.Info().Str("addr", cfg.RedisURL).Msg("Connected to Redis")
	}

	srv, closeFn, err := buildServer(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeFn()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
		// No WriteTimeout: aggregation of large segments may run for a long time.
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("upstream", cfg.BaseURL).
			Bool("throttle_tracking", redisClient != nil).
			Msg("Starting segment proxy")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info().Msg("Shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildServer wires the client, pagination and HTTP layers. redisClient may be nil.
func buildServer(cfg config.Config, redisClient *redis.Client) (*server.Server, func(), error) {
	clientCfg := client.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.CustomerIOAPIKey,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.UpstreamRPS,
		Timeout:           cfg.UpstreamTimeout,
	}

	var ready server.ReadyFunc
	if redisClient != nil {
		clientCfg.Throttle = ratelimit.NewTracker(redisClient, logging.NewLogger("throttle-tracker"))
		ready = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	cioClient, err := client.New(clientCfg)
	if err != nil {
		return nil, nil, err
	}

	pacing := pagination.DefaultConfig()

	srv := server.New(server.Options{
		Aggregator: pagination.NewAggregator(cioClient, pacing),
		Pager:      pagination.NewPager(cioClient, pacing),
		Auth:       auth.NewAPIKey(cfg.APIKey, logging.NewLogger("auth")),
		Logger:     logging.NewLogger("http"),
		Ready:      ready,
	})

	return srv, func() { cioClient.Close() }, nil
}
