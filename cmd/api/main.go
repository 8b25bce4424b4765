package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelshelf/internal/api"
	"github.com/dunamismax/pixelshelf/internal/assets"
	"github.com/dunamismax/pixelshelf/internal/backends"
	"github.com/dunamismax/pixelshelf/internal/config"
	"github.com/dunamismax/pixelshelf/internal/pipeline"
	"github.com/dunamismax/pixelshelf/internal/queue"
	"github.com/dunamismax/pixelshelf/internal/ratelimit"
	"github.com/dunamismax/pixelshelf/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelshelf-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("image backend startup failed: %v", err)
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewProcessor(pipeline.Config{
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		OutputFormat:   cfg.Pipeline.OutputFormat,
		Quality:        cfg.Pipeline.Quality,
		Fit:            pipeline.Box{Width: cfg.Pipeline.FitWidth, Height: cfg.Pipeline.FitHeight},
	})
	if err != nil {
		logger.Fatalf("pipeline setup failed: %v", err)
	}

	assetStore, closeStore, err := backends.OpenAssetStore(ctx, cfg.Metadata, logger)
	if err != nil {
		logger.Fatalf("metadata store setup failed: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Printf("metadata store close error: %v", err)
		}
	}()

	repo, err := backends.OpenRepository(ctx, cfg.Assets, cfg.Storage, processor.Format(), logger)
	if err != nil {
		logger.Fatalf("asset repository setup failed: %v", err)
	}

	var publisher assets.Publisher
	if cfg.Queue.Enabled {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Printf("queue client close error: %v", err)
			}
		}()
		publisher = queueClient
		logger.Printf("asset events enabled queue=%s redis=%s", cfg.Queue.Name, cfg.Queue.RedisAddr)
	}

	service, err := assets.NewService(logger, processor, assetStore, repo, publisher)
	if err != nil {
		logger.Fatalf("asset service setup failed: %v", err)
	}

	serverCfg := api.Config{
		MaxUploadBytes:        cfg.API.MaxUploadBytes,
		RateLimitUserIDHeader: cfg.RateLimit.UserHeader,
	}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(cfg.Queue.RedisOptions())
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis client close error: %v", err)
			}
		}()
		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		serverCfg.RateLimiter = limiter
		logger.Printf("rate limiting enabled capacity=%d window=%s", cfg.RateLimit.Capacity, cfg.RateLimit.Window)
	}

	app := api.NewServer(logger, service, serverCfg)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s output_format=%s", cfg.API.Addr, processor.Format())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
