package domain

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete CreditLens configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Engine settings
	Analysis  AnalysisConfig  `json:"analysis"`
	Economic  EconomicConfig  `json:"economic"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Worker    WorkerConfig    `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// AnalysisConfig controls the analysis cache and risk thresholds.
type AnalysisConfig struct {
	// Version is stamped on cached analyses; a mismatch forces recompute.
	Version string `json:"version"`

	// MaxAge bounds how long a cached analysis stays valid.
	MaxAge time.Duration `json:"maxAge"`

	// WorthinessThresholds overrides the per-bureau credit-worthy cutoff.
	WorthinessThresholds map[Bureau]float64 `json:"worthinessThresholds,omitempty"`

	// LenderProfilesPath is an optional YAML file of lender profiles.
	LenderProfilesPath string `json:"lenderProfilesPath,omitempty"`
}

// EconomicConfig controls the macro snapshot provider.
type EconomicConfig struct {
	FeedURL    string        `json:"feedUrl"`
	KeyRateURL string        `json:"keyRateUrl"`
	TTL        time.Duration `json:"ttl"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"maxRetries"`
	// RefreshCron is a robfig/cron spec; empty disables scheduled refresh.
	RefreshCron string `json:"refreshCron"`
}

// RateLimitConfig controls per-tenant request throttling.
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled"`
	Requests int64         `json:"requests"`
	Window   time.Duration `json:"window"`
}

// WorkerConfig controls the report-ingested consumer.
type WorkerConfig struct {
	Enabled bool `json:"enabled"`
	// Tenants limits the worker to these tenants; empty means all.
	Tenants []string `json:"tenants,omitempty"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./creditlens.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  10000,
			LocalTTL:      5 * time.Minute,
			ComparisonTTL: 24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Analysis: AnalysisConfig{
			Version: "1.0.0",
			MaxAge:  30 * 24 * time.Hour,
		},
		Economic: EconomicConfig{
			TTL:         24 * time.Hour,
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			RefreshCron: "0 */6 * * *",
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 600,
			Window:   time.Minute,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "creditlens",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "creditlens",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ComparisonTTL:  24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig selects the tier from CREDITLENS_TIER and applies overrides.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	if os.Getenv("CREDITLENS_TIER") == string(TierPro) {
		cfg = ProConfig()
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg
}

// ApplyEnv overrides cfg with CREDITLENS_* variables read through getenv.
// Unset or malformed values leave the existing setting untouched.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, err := time.ParseDuration(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, err := strconv.ParseBool(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}

	str("CREDITLENS_HOST", &cfg.Server.Host)
	num("CREDITLENS_PORT", &cfg.Server.Port)

	str("CREDITLENS_DB_DRIVER", &cfg.Repository.Driver)
	str("CREDITLENS_SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("CREDITLENS_PG_HOST", &cfg.Repository.PostgresHost)
	num("CREDITLENS_PG_PORT", &cfg.Repository.PostgresPort)
	str("CREDITLENS_PG_USER", &cfg.Repository.PostgresUser)
	str("CREDITLENS_PG_PASSWORD", &cfg.Repository.PostgresPassword)
	str("CREDITLENS_PG_DB", &cfg.Repository.PostgresDB)
	str("CREDITLENS_PG_SSLMODE", &cfg.Repository.PostgresSSLMode)

	str("CREDITLENS_CACHE", &cfg.Cache.Type)
	str("CREDITLENS_REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("CREDITLENS_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	num("CREDITLENS_REDIS_DB", &cfg.Cache.RedisDB)
	dur("CREDITLENS_COMPARISON_TTL", &cfg.Cache.ComparisonTTL)

	str("CREDITLENS_BUS", &cfg.EventBus.Type)
	str("CREDITLENS_NATS_URL", &cfg.EventBus.NATSUrl)
	str("CREDITLENS_NATS_TOKEN", &cfg.EventBus.NATSToken)

	str("CREDITLENS_ANALYSIS_VERSION", &cfg.Analysis.Version)
	dur("CREDITLENS_ANALYSIS_MAX_AGE", &cfg.Analysis.MaxAge)
	str("CREDITLENS_LENDERS_FILE", &cfg.Analysis.LenderProfilesPath)

	str("CREDITLENS_ECONOMIC_FEED_URL", &cfg.Economic.FeedURL)
	str("CREDITLENS_KEY_RATE_URL", &cfg.Economic.KeyRateURL)
	dur("CREDITLENS_ECONOMIC_TTL", &cfg.Economic.TTL)
	num("CREDITLENS_ECONOMIC_RETRIES", &cfg.Economic.MaxRetries)
	str("CREDITLENS_ECONOMIC_CRON", &cfg.Economic.RefreshCron)

	flag("CREDITLENS_RATE_LIMIT", &cfg.RateLimit.Enabled)
	dur("CREDITLENS_RATE_WINDOW", &cfg.RateLimit.Window)
	if v, err := strconv.ParseInt(strings.TrimSpace(getenv("CREDITLENS_RATE_REQUESTS")), 10, 64); err == nil {
		cfg.RateLimit.Requests = v
	}

	flag("CREDITLENS_ASYNC_WORKER", &cfg.Worker.Enabled)
	if v := strings.TrimSpace(getenv("CREDITLENS_TENANTS")); v != "" {
		cfg.Worker.Tenants = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Worker.Tenants = append(cfg.Worker.Tenants, t)
			}
		}
	}

	str("CREDITLENS_LOG_LEVEL", &cfg.Logging.Level)
	str("CREDITLENS_LOG_FORMAT", &cfg.Logging.Format)
	if getenv("CREDITLENS_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	flag("CREDITLENS_TRACING", &cfg.Tracing.Enabled)
}
