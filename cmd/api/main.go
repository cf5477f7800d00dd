package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dunamismax/stickerflow/internal/api"
	"github.com/dunamismax/stickerflow/internal/compositor"
	"github.com/dunamismax/stickerflow/internal/config"
	"github.com/dunamismax/stickerflow/internal/pipeline"
	"github.com/dunamismax/stickerflow/internal/queue"
	"github.com/dunamismax/stickerflow/internal/ratelimit"
	"github.com/dunamismax/stickerflow/internal/segment"
	"github.com/dunamismax/stickerflow/internal/storage"
	"github.com/dunamismax/stickerflow/internal/store"
	"github.com/dunamismax/stickerflow/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "stickerflow-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("image codec startup failed: %v", err)
	}
	defer pipeline.Shutdown()

	segmenter, err := segment.NewHTTPClient(segment.Config{
		Endpoint: cfg.Segmenter.Endpoint,
		Model:    cfg.Segmenter.Model,
		Timeout:  cfg.Segmenter.Timeout,
	})
	if err != nil {
		logger.Fatalf("segmenter setup failed: %v", err)
	}

	normalizer, err := compositor.NewNormalizer(segmenter, compositor.StrictProfile())
	if err != nil {
		logger.Fatalf("normalizer setup failed: %v", err)
	}

	renderer, err := pipeline.NewRenderer(normalizer)
	if err != nil {
		logger.Fatalf("renderer setup failed: %v", err)
	}

	if cfg.Segmenter.WarmUp {
		go func() {
			warmCtx, cancel := context.WithTimeout(context.Background(), cfg.Segmenter.Timeout)
			defer cancel()
			if err := segment.Warm(warmCtx, segmenter); err != nil {
				logger.Printf("segmenter warmup failed: %v", err)
				return
			}
			logger.Println("segmenter warmed up")
		}()
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	serverCfg := api.ServerConfig{
		Logger:           logger,
		Renderer:         renderer,
		QueueClient:      queueClient,
		MaxUploadBytes:   cfg.API.MaxUploadBytes,
		CORSOrigins:      cfg.API.CORSOrigins,
		CORSOriginSuffix: cfg.API.CORSOriginSuffix,
	}

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Printf("object storage unavailable, job uploads disabled: %v", err)
	} else {
		serverCfg.Storage = storageClient
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pgStore, err := store.NewPostgresJobStore(connectCtx, cfg.Database.DSN)
	cancel()
	if err != nil {
		logger.Printf("postgres unavailable, falling back to in-memory job store: %v", err)
		serverCfg.JobStore = store.NewMemoryJobStore()
	} else {
		defer func() {
			if err := pgStore.Close(); err != nil {
				logger.Printf("job store close error: %v", err)
			}
		}()
		serverCfg.JobStore = pgStore
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Printf("redis client close error: %v", err)
		}
	}()

	limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimitCapacity, cfg.API.RateLimitWindow, "")
	if err != nil {
		logger.Printf("rate limiter disabled: %v", err)
	} else {
		serverCfg.RateLimiter = limiter
	}

	app := api.NewServer(serverCfg)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDrain()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
