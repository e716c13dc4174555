package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ENGINE_MEMORY_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.Engine.HistoryLength != 30 {
		t.Fatalf("expected default history length, got %d", cfg.Engine.HistoryLength)
	}
	if cfg.Engine.MemoryTTL != 24*time.Hour {
		t.Fatalf("expected default memory TTL, got %s", cfg.Engine.MemoryTTL)
	}
	if cfg.Engine.RuleWeight != 0.4 {
		t.Fatalf("expected default rule weight, got %f", cfg.Engine.RuleWeight)
	}
	if !cfg.Engine.StatisticalClassifier {
		t.Fatalf("expected statistical classifier enabled by default")
	}
	if cfg.CampaignWorkers != 4 {
		t.Fatalf("expected default campaign workers, got %d", cfg.CampaignWorkers)
	}
	if cfg.CampaignMessagesPerSec != 10 {
		t.Fatalf("expected default campaign rate, got %f", cfg.CampaignMessagesPerSec)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("ENGINE_HISTORY_LENGTH", "10")
	t.Setenv("ENGINE_MEMORY_TTL", "45m")
	t.Setenv("ENGINE_RULE_WEIGHT", "0.5")
	t.Setenv("ENGINE_GUARDRAIL_KEYWORDS", "carnê, mensalidade ,")
	t.Setenv("ENGINE_STATISTICAL_CLASSIFIER", "false")
	t.Setenv("CAMPAIGN_WORKERS", "2")
	t.Setenv("CAMPAIGN_MESSAGES_PER_SEC", "2.5")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected database url override, got %s", cfg.DatabaseURL)
	}
	if cfg.Engine.HistoryLength != 10 {
		t.Fatalf("expected history length override, got %d", cfg.Engine.HistoryLength)
	}
	if cfg.Engine.MemoryTTL != 45*time.Minute {
		t.Fatalf("expected memory TTL override, got %s", cfg.Engine.MemoryTTL)
	}
	if cfg.Engine.RuleWeight != 0.5 {
		t.Fatalf("expected rule weight override, got %f", cfg.Engine.RuleWeight)
	}
	if len(cfg.Engine.GuardrailKeywords) != 2 || cfg.Engine.GuardrailKeywords[0] != "carnê" {
		t.Fatalf("expected trimmed guardrail keywords, got %v", cfg.Engine.GuardrailKeywords)
	}
	if cfg.Engine.StatisticalClassifier {
		t.Fatalf("expected statistical classifier disabled")
	}
	if cfg.CampaignWorkers != 2 {
		t.Fatalf("expected campaign workers override, got %d", cfg.CampaignWorkers)
	}
	if cfg.CampaignMessagesPerSec != 2.5 {
		t.Fatalf("expected campaign rate override, got %f", cfg.CampaignMessagesPerSec)
	}
}

func TestGetEnvAsDurationFallsBack(t *testing.T) {
	t.Setenv("ENGINE_EVICTION_INTERVAL", "not-a-duration")
	cfg := Load()
	if cfg.Engine.EvictionInterval != 5*time.Minute {
		t.Fatalf("expected fallback eviction interval, got %s", cfg.Engine.EvictionInterval)
	}
}
