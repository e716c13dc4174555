package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// ZapSend outbound chat-transport provider
	ZapSendAPIKey        string
	ZapSendBaseURL       string
	ZapSendWebhookSecret string
	ZapSendRetryMax      int
	ZapSendRetryDelay    time.Duration

	// Invoice scraper sidecar (headless browser service)
	InvoiceScraperURL     string
	InvoiceScraperTimeout time.Duration

	AdminJWTSecret string

	CORSAllowedOrigins []string
	WebhookRatePerSec  float64
	WebhookBurst       int

	// Campaign runner
	CampaignSpreadsheet    string
	CampaignWorkers        int
	CampaignMessagesPerSec float64

	Engine EngineConfig
}

// EngineConfig exposes the conversation engine tunables.
type EngineConfig struct {
	HistoryLength      int
	MemoryTTL          time.Duration
	EvictionInterval   time.Duration
	LockTimeout        time.Duration
	RelevanceThreshold float64

	// Ensemble source weights
	RuleWeight        float64
	StatisticalWeight float64
	MemoryWeight      float64
	EmotionalWeight   float64

	// Emotion intensifier multipliers
	IntensifierHigh   float64
	IntensifierMedium float64
	IntensifierLow    float64

	// Extra guardrail keywords appended to the built-in billing set,
	// comma separated.
	GuardrailKeywords []string

	// Enables the bundled statistical classifier as the optional ensemble
	// source. When false the ensemble runs in degraded mode.
	StatisticalClassifier bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ZapSendAPIKey:        getEnv("ZAPSEND_API_KEY", ""),
		ZapSendBaseURL:       getEnv("ZAPSEND_BASE_URL", "https://api.zapsend.com.br"),
		ZapSendWebhookSecret: getEnv("ZAPSEND_WEBHOOK_SECRET", ""),
		ZapSendRetryMax:      getEnvAsInt("ZAPSEND_RETRY_MAX_ATTEMPTS", 3),
		ZapSendRetryDelay:    getEnvAsDuration("ZAPSEND_RETRY_BASE_DELAY", 2*time.Second),

		InvoiceScraperURL:     getEnv("INVOICE_SCRAPER_URL", ""),
		InvoiceScraperTimeout: getEnvAsDuration("INVOICE_SCRAPER_TIMEOUT", 45*time.Second),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRatePerSec:  getEnvAsFloat("WEBHOOK_RATE_PER_SEC", 50),
		WebhookBurst:       getEnvAsInt("WEBHOOK_BURST", 100),

		CampaignSpreadsheet:    getEnv("CAMPAIGN_SPREADSHEET", ""),
		CampaignWorkers:        getEnvAsInt("CAMPAIGN_WORKERS", 4),
		CampaignMessagesPerSec: getEnvAsFloat("CAMPAIGN_MESSAGES_PER_SEC", 10),

		Engine: EngineConfig{
			HistoryLength:      getEnvAsInt("ENGINE_HISTORY_LENGTH", 30),
			MemoryTTL:          getEnvAsDuration("ENGINE_MEMORY_TTL", 24*time.Hour),
			EvictionInterval:   getEnvAsDuration("ENGINE_EVICTION_INTERVAL", 5*time.Minute),
			LockTimeout:        getEnvAsDuration("ENGINE_LOCK_TIMEOUT", 5*time.Second),
			RelevanceThreshold: getEnvAsFloat("ENGINE_RELEVANCE_THRESHOLD", 0.25),

			RuleWeight:        getEnvAsFloat("ENGINE_RULE_WEIGHT", 0.4),
			StatisticalWeight: getEnvAsFloat("ENGINE_STATISTICAL_WEIGHT", 0.3),
			MemoryWeight:      getEnvAsFloat("ENGINE_MEMORY_WEIGHT", 0.2),
			EmotionalWeight:   getEnvAsFloat("ENGINE_EMOTIONAL_WEIGHT", 0.1),

			IntensifierHigh:   getEnvAsFloat("ENGINE_INTENSIFIER_HIGH", 1.5),
			IntensifierMedium: getEnvAsFloat("ENGINE_INTENSIFIER_MEDIUM", 1.2),
			IntensifierLow:    getEnvAsFloat("ENGINE_INTENSIFIER_LOW", 0.8),

			GuardrailKeywords: getEnvAsList("ENGINE_GUARDRAIL_KEYWORDS"),

			StatisticalClassifier: getEnvAsBool("ENGINE_STATISTICAL_CLASSIFIER", true),
		},
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
