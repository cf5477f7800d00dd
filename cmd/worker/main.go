package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/stickerflow/internal/compositor"
	"github.com/dunamismax/stickerflow/internal/config"
	"github.com/dunamismax/stickerflow/internal/pipeline"
	"github.com/dunamismax/stickerflow/internal/segment"
	"github.com/dunamismax/stickerflow/internal/storage"
	"github.com/dunamismax/stickerflow/internal/store"
	"github.com/dunamismax/stickerflow/internal/telemetry"
	"github.com/dunamismax/stickerflow/internal/webhook"
	"github.com/dunamismax/stickerflow/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "stickerflow-worker",
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

	if cfg.Segmenter.WarmUp {
		warmCtx, cancel := context.WithTimeout(ctx, cfg.Segmenter.Timeout)
		if err := segment.Warm(warmCtx, segmenter); err != nil {
			logger.Printf("segmenter warmup failed: %v", err)
		} else {
			logger.Println("segmenter warmed up")
		}
		cancel()
	}

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("object storage setup failed: %v", err)
	}

	bucketCtx, cancelBucket := context.WithTimeout(ctx, 10*time.Second)
	if err := storageClient.EnsureBucket(bucketCtx); err != nil {
		logger.Printf("ensure bucket failed: %v", err)
	}
	cancelBucket()

	var jobStore store.JobStore
	var usageStore store.UsageStore
	connectCtx, cancelConnect := context.WithTimeout(ctx, 5*time.Second)
	pgStore, err := store.NewPostgresJobStore(connectCtx, cfg.Database.DSN)
	cancelConnect()
	if err != nil {
		logger.Printf("postgres unavailable, falling back to in-memory job store: %v", err)
		memStore := store.NewMemoryJobStore()
		jobStore = memStore
		usageStore = memStore
	} else {
		defer func() {
			if err := pgStore.Close(); err != nil {
				logger.Printf("job store close error: %v", err)
			}
		}()
		jobStore = pgStore
		usageStore = pgStore
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
	})

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s segmenter=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Segmenter.Endpoint,
	)

	srv, err := worker.NewServer(
		logger,
		cfg.Queue,
		cfg.Worker,
		normalizer,
		storageClient,
		webhookClient,
		jobStore,
		usageStore,
	)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
