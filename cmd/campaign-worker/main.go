// Command campaign-worker sends the opening collection message to every
// debtor in a spreadsheet and seeds their conversation contexts, so the
// API process picks up replies with the billing figures already in place.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/quitaai/cobranca-ai-platform/internal/campaign"
	"github.com/quitaai/cobranca-ai-platform/internal/config"
	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/internal/messaging/zapclient"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).Component("campaign-worker")

	var (
		file    = flag.String("file", cfg.CampaignSpreadsheet, "debtor spreadsheet (CSV)")
		workers = flag.Int("workers", cfg.CampaignWorkers, "concurrent senders")
		rate    = flag.Float64("rate", cfg.CampaignMessagesPerSec, "outbound messages per second")
	)
	flag.Parse()

	if *file == "" {
		logger.Error("no spreadsheet given, set -file or CAMPAIGN_SPREADSHEET")
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Error("failed to open spreadsheet", "file", *file, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	debtors, rowErrors, err := campaign.LoadDebtors(f)
	for _, rowErr := range rowErrors {
		logger.Warn("skipping spreadsheet row", "error", rowErr)
	}
	if err != nil {
		logger.Error("failed to load debtors", "error", err)
		os.Exit(1)
	}
	logger.Info("spreadsheet loaded", "debtors", len(debtors), "skipped", len(rowErrors))

	// Seeded contexts go through the same Redis persister the API uses.
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
		logger.Warn("REDIS_ADDR not set, seeded contexts will not reach the API process")
	}

	store := engine.NewMemoryStore(engine.MemoryStoreConfig{
		HistoryLength: cfg.Engine.HistoryLength,
		TTL:           cfg.Engine.MemoryTTL,
		LockTimeout:   cfg.Engine.LockTimeout,
	}, logger, storeOpts...)
	defer store.Close()

	zap, err := zapclient.New(zapclient.Config{
		BaseURL:       cfg.ZapSendBaseURL,
		APIKey:        cfg.ZapSendAPIKey,
		WebhookSecret: cfg.ZapSendWebhookSecret,
		MaxRetries:    cfg.ZapSendRetryMax,
		Backoff:       cfg.ZapSendRetryDelay,
		Logger:        logger.Logger,
	})
	if err != nil {
		logger.Error("failed to build zapsend client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := campaign.NewRunner(zap, store, campaign.RunnerConfig{
		Workers:           *workers,
		MessagesPerSecond: *rate,
	}, logger)

	result, err := runner.Run(ctx, debtors)
	if err != nil {
		logger.Error("batch interrupted", "sent", result.Sent, "failed", result.Failed, "error", err)
		os.Exit(1)
	}
	logger.Info("batch complete", "sent", result.Sent, "failed", result.Failed)
}
