package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appideas.app/engine/common/id"
	"appideas.app/engine/common/logger"
	"appideas.app/engine/common/otel"
	"appideas.app/engine/core/config"
	"appideas.app/engine/core/db"
	"appideas.app/engine/internal/appstore"
	"appideas.app/engine/internal/http/middleware"
	httprouter "appideas.app/engine/internal/http/router"
	"appideas.app/engine/internal/metrics"
	"appideas.app/engine/internal/queue"
	"appideas.app/engine/internal/service"
	"appideas.app/engine/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, "server")
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "api server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	if err := db.Migrate(cfg.DB.DSN); err != nil {
		slog.ErrorContext(ctx, "failed to run migrations", "error", err)
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
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

	// Closing the producer closes the shared redis client.
	producer := queue.NewRedisProducer(redisClient, cfg.Redis.Stream, nil)
	defer producer.Close()

	m := metrics.New()

	// The server only submits runs; the pipeline itself runs in the worker.
	services := service.NewServices(service.ServicesDeps{
		Stores:   store.NewStores(database.Conn()),
		TxRunner: service.NewTxRunner(database),
		Redis:    redisClient,
		Producer: producer,
		Events:   queue.NewStatusStream(redisClient, cfg.Redis.StatusTTL),
		Fetcher:  appstore.New(cfg.AppStore),
		Observer: m,
		Config:   cfg,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, m)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Run streams stay open for minutes; per-read blocking bounds them instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, m *metrics.Metrics) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.TraceHeader(cfg.TraceHeaderName))
	router.Use(m.Middleware())

	router.GET("/metrics", gin.WrapH(m.Handler()))

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey:       cfg.AdminAPIKey,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	return router
}

const banner = `
 █████╗ ██████╗ ██████╗     ██╗██████╗ ███████╗ █████╗ ███████╗
██╔══██╗██╔══██╗██╔══██╗    ██║██╔══██╗██╔════╝██╔══██╗██╔════╝
███████║██████╔╝██████╔╝    ██║██║  ██║█████╗  ███████║███████╗
██╔══██║██╔═══╝ ██╔═══╝     ██║██║  ██║██╔══╝  ██╔══██║╚════██║
██║  ██║██║     ██║         ██║██████╔╝███████╗██║  ██║███████║
╚═╝  ╚═╝╚═╝     ╚═╝         ╚═╝╚═════╝ ╚══════╝╚═╝  ╚═╝╚══════╝
`
