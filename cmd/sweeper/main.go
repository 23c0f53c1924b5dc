// Package main is the entry point for the featured expiry sweeper.
//
// The sweeper watches a listing snapshot for featured windows that close
// and drops the Redis ranking cache when they do. It also serves the
// snapshot's ranked feeds through that cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/marketplace/internal/cache"
	"github.com/onnwee/marketplace/internal/config"
	"github.com/onnwee/marketplace/internal/health"
	"github.com/onnwee/marketplace/internal/jobs"
	"github.com/onnwee/marketplace/internal/listing"
	"github.com/onnwee/marketplace/internal/logging"
	"github.com/onnwee/marketplace/internal/metrics"
	"github.com/onnwee/marketplace/internal/tracing"
	"github.com/onnwee/marketplace/internal/visibility"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "optional YAML config file")
	listingsPath := flag.String("listings", "", "JSON snapshot of listings to watch (required)")
	flag.Parse()

	if *help {
		fmt.Println("Marketplace Featured Expiry Sweeper")
		fmt.Println()
		fmt.Println("Usage: sweeper [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := logging.New(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if *listingsPath == "" {
		logger.Error("-listings is required")
		os.Exit(2)
	}

	tp, err := tracing.NewProvider(cfg.Tracing(serviceName))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	rc := cache.NewRedisCache(client, cfg.CachePrefix)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rc.Ping(pingCtx); err != nil {
		// The sweep retries every interval; readiness reports the outage.
		logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
	}
	cancelPing()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(reg); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	rankMetrics := metrics.NewMetrics()
	if err := rankMetrics.Register(reg); err != nil {
		logger.Error("failed to register ranking metrics", "error", err)
		os.Exit(1)
	}

	calibration, err := visibility.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("using default calibration", "error", err)
	}

	src := listing.NewSnapshotSource(*listingsPath)
	svc := listing.NewService(src, visibility.New(calibration.Options()...),
		listing.WithCache(rc, cfg.CacheTTL),
		listing.WithMetrics(rankMetrics),
		listing.WithLogger(logger),
		listing.WithFeatured(cfg.FeaturedPool, cfg.FeaturedLimit),
		listing.WithDefaultPageSize(cfg.PageSize),
	)

	job := jobs.NewExpirySweep(jobs.ExpirySweepConfig{
		Interval:   cfg.SweepInterval,
		Timeout:    cfg.SweepTimeout,
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, src, rc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := job.Start(ctx); err != nil {
		logger.Error("failed to start expiry sweep", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr: cfg.MetricsAddr,
		Handler: newHandler(job, svc, reg, map[string]health.Checker{
			"redis": health.NewRedisChecker(client),
		}, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SweepTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting ops server", "addr", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down sweeper...")

	job.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}

	logger.Info("sweeper stopped")
}
