package domain

import (
	"reflect"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tier != TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" || cfg.Cache.Type != "memory" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected community stack: %s/%s/%s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
	}
	if cfg.Analysis.MaxAge != 30*24*time.Hour {
		t.Errorf("expected 30 day max age, got %v", cfg.Analysis.MaxAge)
	}
	if cfg.Economic.TTL != 24*time.Hour {
		t.Errorf("expected 24h economic TTL, got %v", cfg.Economic.TTL)
	}
	if !cfg.Worker.Enabled {
		t.Error("worker should be enabled by default")
	}
}

func TestProConfig(t *testing.T) {
	cfg := ProConfig()

	if cfg.Tier != TierPro {
		t.Errorf("expected pro tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "postgres" || cfg.Cache.Type != "redis" || cfg.EventBus.Type != "nats" {
		t.Errorf("unexpected pro stack: %s/%s/%s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
	}
	if !cfg.Cache.EnableTwoPhase {
		t.Error("pro tier should use the two-phase cache")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		cfg := DefaultConfig()
		ApplyEnv(cfg, envMap(map[string]string{
			"CREDITLENS_PORT":             "9090",
			"CREDITLENS_DB_DRIVER":        "postgres",
			"CREDITLENS_ANALYSIS_MAX_AGE": "72h",
			"CREDITLENS_ECONOMIC_CRON":    "@hourly",
			"CREDITLENS_RATE_REQUESTS":    "50",
			"CREDITLENS_RATE_LIMIT":       "false",
			"CREDITLENS_TENANTS":          " acme, globex ,,",
			"CREDITLENS_DEBUG":            "true",
		}))

		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Repository.Driver != "postgres" {
			t.Errorf("expected postgres, got %s", cfg.Repository.Driver)
		}
		if cfg.Analysis.MaxAge != 72*time.Hour {
			t.Errorf("expected 72h, got %v", cfg.Analysis.MaxAge)
		}
		if cfg.Economic.RefreshCron != "@hourly" {
			t.Errorf("expected @hourly, got %q", cfg.Economic.RefreshCron)
		}
		if cfg.RateLimit.Requests != 50 || cfg.RateLimit.Enabled {
			t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
		}
		if !reflect.DeepEqual(cfg.Worker.Tenants, []string{"acme", "globex"}) {
			t.Errorf("unexpected tenants: %v", cfg.Worker.Tenants)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %s", cfg.Logging.Level)
		}
	})

	t.Run("MalformedValuesIgnored", func(t *testing.T) {
		cfg := DefaultConfig()
		ApplyEnv(cfg, envMap(map[string]string{
			"CREDITLENS_PORT":         "eighty",
			"CREDITLENS_ECONOMIC_TTL": "a day",
			"CREDITLENS_RATE_LIMIT":   "sometimes",
		}))

		if cfg.Server.Port != 8080 {
			t.Errorf("expected default port, got %d", cfg.Server.Port)
		}
		if cfg.Economic.TTL != 24*time.Hour {
			t.Errorf("expected default TTL, got %v", cfg.Economic.TTL)
		}
		if !cfg.RateLimit.Enabled {
			t.Error("expected rate limit to stay enabled")
		}
	})
}
