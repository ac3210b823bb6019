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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/yourusername/ratelimiter/api"
	"github.com/yourusername/ratelimiter/metrics"
	"github.com/yourusername/ratelimiter/middleware"
	"github.com/yourusername/ratelimiter/pkg/ratelimiter"
)

var flags struct {
	addr            string
	configFile      string
	redisAddr       string
	redisPassword   string
	redisDB         int
	logLevel        string
	logFormat       string
	cleanupSchedule string
	shutdownTimeout time.Duration
	globalBurst     int64
	globalRate      int64
}

var rootCmd = &cobra.Command{
	Use:   "ratelimiter",
	Short: "Token bucket rate limiting service",
	Long: `Runs an HTTP service that answers rate limit checks for many clients.

Each client id gets its own token bucket. Limits come from a YAML file
(reloaded when it changes) and can be overridden per check.

Examples:
  # Start with defaults on :8080
  ratelimiter

  # Custom config and address
  ratelimiter --config ratelimit.yaml --addr :9090

  # Debug logging in text form
  ratelimiter --log-level debug --log-format text`,
	SilenceUsage: true,
	RunE:         runServer,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.addr, "addr", ":"+envOr("PORT", "8080"), "listen address")
	f.StringVarP(&flags.configFile, "config", "c", "", "YAML config file, watched for changes")
	f.StringVar(&flags.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for decision export (disabled when empty)")
	f.StringVar(&flags.redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	f.IntVar(&flags.redisDB, "redis-db", 0, "Redis database number")
	f.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&flags.logFormat, "log-format", "json", "log format (json, text)")
	f.StringVar(&flags.cleanupSchedule, "cleanup-schedule", "@every 10m", "cron schedule for idle bucket cleanup")
	f.Int64Var(&flags.globalBurst, "global-burst", 1000, "burst size of the service-wide /check limit")
	f.Int64Var(&flags.globalRate, "global-rate", 0, "service-wide /check requests per second (0 disables)")
	f.DurationVar(&flags.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// service holds everything the HTTP server needs.
type service struct {
	limiter   ratelimiter.RateLimiter
	store     *ratelimiter.InMemoryStore
	metrics   *metrics.Metrics
	redisSink *metrics.RedisSink
	logger    *slog.Logger
}

func newService(logger *slog.Logger) (*service, error) {
	config := ratelimiter.NewConfig()
	if flags.configFile != "" {
		loaded, err := ratelimiter.LoadConfigFromFile(flags.configFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	age, err := config.CleanupDuration()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := &service{
		store:   ratelimiter.NewInMemoryStore(age, nil),
		metrics: metrics.NewMetrics(registry),
		logger:  logger,
	}

	var recorder ratelimiter.Recorder = svc.metrics
	if flags.redisAddr != "" {
		svc.redisSink = metrics.NewRedisSink(metrics.RedisConfig{
			Addr:     flags.redisAddr,
			Password: flags.redisPassword,
			DB:       flags.redisDB,
		}, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.redisSink.Ping(ctx); err != nil {
			svc.redisSink.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", flags.redisAddr, err)
		}
		logger.Info("exporting decisions to Redis", "addr", flags.redisAddr)
		recorder = metrics.Multi{svc.metrics, svc.redisSink}
	}

	svc.limiter, err = ratelimiter.NewRateLimiter(
		ratelimiter.WithConfig(config),
		ratelimiter.WithStore(svc.store),
		ratelimiter.WithLogger(logger.With("component", "ratelimiter")),
		ratelimiter.WithRecorder(recorder),
	)
	if err != nil {
		svc.close()
		return nil, err
	}
	return svc, nil
}

func (s *service) routes() http.Handler {
	var check http.Handler = http.HandlerFunc(api.NewHandler(s.limiter, s.logger).CheckRateLimit)
	if flags.globalRate > 0 {
		global := ratelimiter.NewSharedLimiter(ratelimiter.LimitConfig{
			BurstSize: flags.globalBurst,
			RateLimit: flags.globalRate,
		}, nil)
		check = middleware.Global(global)(check)
	}

	mux := http.NewServeMux()
	mux.Handle("/check", check)
	mux.Handle("/stats", api.NewStatsHandler(s.metrics))
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", api.Health)
	return mux
}

func (s *service) close() {
	if s.redisSink != nil {
		if err := s.redisSink.Close(); err != nil {
			s.logger.Warn("failed to close Redis sink", "error", err)
		}
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stdout, flags.logLevel, flags.logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	svc, err := newService(logger)
	if err != nil {
		return err
	}
	defer svc.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cleanup := ratelimiter.NewCleanupScheduler(svc.store, logger)
	if err := cleanup.Start(flags.cleanupSchedule); err != nil {
		return err
	}
	defer cleanup.Stop()

	if flags.configFile != "" {
		watcher := ratelimiter.NewConfigWatcher(flags.configFile, svc.limiter, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              flags.addr,
		Handler:           svc.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", flags.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), flags.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
