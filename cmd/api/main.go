package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quitaai/cobranca-ai-platform/internal/api/router"
	"github.com/quitaai/cobranca-ai-platform/internal/config"
	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/internal/http/handlers"
	"github.com/quitaai/cobranca-ai-platform/internal/invoices"
	"github.com/quitaai/cobranca-ai-platform/internal/messaging/zapclient"
	"github.com/quitaai/cobranca-ai-platform/internal/observability/metrics"
	"github.com/quitaai/cobranca-ai-platform/internal/telemetry"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting cobranca-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	registry := prometheus.NewRegistry()

	// Conversation memory, optionally hydrated from Redis across restarts.
	var storeOpts []engine.MemoryStoreOption
	if cfg.RedisAddr != "" {
		redisOpts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		defer func() { _ = redisClient.Close() }()
		storeOpts = append(storeOpts,
			engine.WithPersister(engine.NewRedisContextPersister(redisClient, cfg.Engine.MemoryTTL)))
	} else {
		logger.Warn("REDIS_ADDR not set, conversation contexts will not survive restarts")
	}

	// Metrics are built before the store so the sweeper goroutine never
	// observes a half-initialized eviction hook.
	var store *engine.MemoryStore
	engineMetrics := metrics.NewEngineMetrics(registry, func() float64 {
		if store == nil {
			return 0
		}
		return float64(store.Len())
	})
	messagingMetrics := metrics.NewMessagingMetrics(registry)
	storeOpts = append(storeOpts, engine.WithEvictionHook(func(string) {
		engineMetrics.RecordEviction()
	}))

	store = engine.NewMemoryStore(engine.MemoryStoreConfig{
		HistoryLength: cfg.Engine.HistoryLength,
		TTL:           cfg.Engine.MemoryTTL,
		SweepInterval: cfg.Engine.EvictionInterval,
		LockTimeout:   cfg.Engine.LockTimeout,
	}, logger.Component("memory"), storeOpts...)
	defer store.Close()

	// Turn telemetry, buffered so Postgres latency stays off the reply path.
	var (
		sink             engine.TelemetrySink
		telemetryHandler *handlers.AdminTelemetryHandler
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgStore := telemetry.NewPGStore(pool)
		asyncSink := telemetry.NewAsyncSink(pgStore, 256, logger.Component("telemetry"))
		defer asyncSink.Close()
		sink = asyncSink
		telemetryHandler = handlers.NewAdminTelemetryHandler(pgStore, logger)
	} else {
		logger.Warn("DATABASE_URL not set, turn telemetry disabled")
	}

	zap, err := zapclient.New(zapclient.Config{
		BaseURL:       cfg.ZapSendBaseURL,
		APIKey:        cfg.ZapSendAPIKey,
		WebhookSecret: cfg.ZapSendWebhookSecret,
		MaxRetries:    cfg.ZapSendRetryMax,
		Backoff:       cfg.ZapSendRetryDelay,
		Logger:        logger.Component("zapsend").Logger,
	})
	if err != nil {
		logger.Error("failed to build zapsend client", "error", err)
		os.Exit(1)
	}

	eng := engine.New(engine.Options{
		Weights: engine.SourceWeights{
			Rule:        cfg.Engine.RuleWeight,
			Statistical: cfg.Engine.StatisticalWeight,
			Memory:      cfg.Engine.MemoryWeight,
			Emotional:   cfg.Engine.EmotionalWeight,
		},
		RelevanceThreshold: cfg.Engine.RelevanceThreshold,
		Intensifiers: engine.IntensifierMultipliers{
			High:   cfg.Engine.IntensifierHigh,
			Medium: cfg.Engine.IntensifierMedium,
			Low:    cfg.Engine.IntensifierLow,
		},
		GuardrailKeywords: cfg.Engine.GuardrailKeywords,
		EnableClassifier:  cfg.Engine.StatisticalClassifier,
	}, store, sink, engineMetrics, logger.Component("engine"))

	webhooks := handlers.NewZapSendWebhookHandler(eng, zap, zap, messagingMetrics, logger.Component("webhooks"))
	contextsHandler := handlers.NewAdminContextsHandler(store, logger)

	var invoicesHandler *handlers.AdminInvoicesHandler
	if cfg.InvoiceScraperURL != "" {
		scraper := invoices.NewClient(cfg.InvoiceScraperURL,
			invoices.WithHTTPClient(&http.Client{Timeout: cfg.InvoiceScraperTimeout}),
			invoices.WithLogger(logger.Component("invoices")),
		)
		invoicesHandler = handlers.NewAdminInvoicesHandler(scraper, logger)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Webhooks:           webhooks,
		AdminContexts:      contextsHandler,
		AdminTelemetry:     telemetryHandler,
		AdminInvoices:      invoicesHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRatePerSec:  cfg.WebhookRatePerSec,
		WebhookBurst:       cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
