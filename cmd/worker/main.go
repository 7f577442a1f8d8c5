package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"workflow-extractor/internal/archive"
	"workflow-extractor/internal/config"
	"workflow-extractor/internal/extract"
	"workflow-extractor/internal/pipeline"
	"workflow-extractor/internal/ratelimit"
	"workflow-extractor/internal/store"
	"workflow-extractor/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		if hostname, _ := os.Hostname(); hostname != "" {
			workerID = hostname
		} else {
			workerID = "worker"
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "worker", "worker_id", workerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	transcripts, err := newTranscriptStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init transcript store: %v", err)
	}

	extractor := extract.NewClient(extract.Config{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout,
	}, logger).WithTranscripts(transcripts)

	driver := pipeline.NewDriver(st, st, st, extractor, logger).WithLimiter(limiter)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker started", "poll_interval", cfg.WorkerPollInterval.String(), "batch_limit", cfg.BatchLimit)
	run(ctx, cfg, st, driver, logger)
}

// run drains the queue on every tick. ProcessBatch stops at the first empty
// claim, so an idle tick costs one indexed query.
func run(ctx context.Context, cfg config.Config, st *store.Store, driver *pipeline.Driver, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.WorkerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return
		case <-ticker.C:
			if eligible, err := st.EligibleJobs(ctx); err == nil {
				telemetry.EligibleJobsGauge.Set(float64(eligible))
			}
			outcomes, err := driver.ProcessBatch(ctx, cfg.BatchLimit)
			if err != nil {
				logger.Error("batch failed", "error", err, "processed", len(outcomes))
			}
		}
	}
}

func newTranscriptStore(ctx context.Context, cfg config.Config) (archive.Store, error) {
	if cfg.ArchiveS3Bucket != "" {
		return archive.NewS3Store(ctx, archive.S3Options{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
	}
	return archive.NewLocalStore(cfg.ArchiveLocalDir), nil
}
