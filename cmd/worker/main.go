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

	"appideas.app/engine/common/id"
	"appideas.app/engine/common/llm"
	"appideas.app/engine/common/logger"
	"appideas.app/engine/common/otel"
	"appideas.app/engine/core/config"
	"appideas.app/engine/core/db"
	"appideas.app/engine/internal/appstore"
	"appideas.app/engine/internal/metrics"
	"appideas.app/engine/internal/pipeline"
	"appideas.app/engine/internal/queue"
	"appideas.app/engine/internal/service"
	"appideas.app/engine/internal/store"
	"appideas.app/engine/internal/worker"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const maxAttempts = 3

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, "worker")
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "analysis worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.Group,
		"consumer_name", cfg.Redis.Consumer,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model)

	// Use a different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

	llmClient, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	statuses := queue.NewStatusStream(redisClient, cfg.Redis.StatusTTL)

	runner := pipeline.New(llmClient, pipeline.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Observer:    statuses,
		Recorder:    m,
	})

	services := service.NewServices(service.ServicesDeps{
		Stores:   store.NewStores(database.Conn()),
		TxRunner: service.NewTxRunner(database),
		Redis:    redisClient,
		Producer: queue.NewRedisProducer(redisClient, cfg.Redis.Stream, nil),
		Events:   statuses,
		Fetcher:  appstore.New(cfg.AppStore),
		Pipeline: runner,
		Observer: m,
		Config:   cfg,
	})

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.Stream,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.DLQStream,
		BatchSize:    1, // one run at a time per worker
		Block:        5 * time.Second,
		MaxAttempts:  maxAttempts,
		RequeueDelay: 2 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, services.Analyses(), worker.Config{MaxAttempts: maxAttempts})

	// A run can legitimately take several minutes, so only claim messages
	// idle for longer than the run lock lives.
	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Redis.Stream,
		Group:     cfg.Redis.Group,
		Consumer:  cfg.Redis.Consumer + "-reclaimer",
		MinIdle:   cfg.Redis.LockTTL,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w)

	scheduler, err := worker.NewScheduler(services.Maintenance(), worker.SchedulerConfig{})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create scheduler", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		reclaimer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.InfoContext(gctx, "metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	slog.InfoContext(ctx, "worker initialized and running")

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "worker exited with error", "error", err)
	}

	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 █████╗ ██████╗ ██████╗     ██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██╔══██╗██╔══██╗██╔══██╗    ██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
███████║██████╔╝██████╔╝    ██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
██╔══██║██╔═══╝ ██╔═══╝     ██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
██║  ██║██║     ██║         ╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
╚═╝  ╚═╝╚═╝     ╚═╝          ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
