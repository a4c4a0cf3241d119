// Package config loads and validates application configuration from
// environment variables. CLI flags may override individual fields after
// Load; Validate runs again before the values reach the engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Generation settings.
	Workers    int
	Duration   time.Duration // 0 = run until interrupted
	Categories []string      // empty = all troubleshooting topics
	Seed       int64         // 0 = derive from current time

	// Behavior probabilities.
	SwitchProb   float64 // per-tick probability of changing category
	ChainProb    float64 // probability a change follows a related-issue edge
	IdentityProb float64 // per-tick probability of rotating the header identity
	Escalation   bool    // frustration-driven query mutation
	MarkovPacing bool    // advance the pacing chain every tick

	// Fetch settings.
	DryRun         bool
	FetchTimeout   time.Duration
	MinDelay       time.Duration
	HostRate       float64 // sustained requests/sec per host
	HostBurst      int
	DisableLimiter bool

	// Status server. Port 0 disables it.
	StatusPort int

	// History log. Empty path disables it.
	HistoryPath         string
	HistoryBatchSize    int
	HistoryFlushTimeout time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel      string
	ShutdownGrace time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Workers:             envInt("CHAFF_WORKERS", 3),
		Duration:            envDuration("CHAFF_DURATION", 0),
		Categories:          envList("CHAFF_CATEGORIES"),
		Seed:                int64(envInt("CHAFF_SEED", 0)),
		SwitchProb:          envFloat("CHAFF_SWITCH_PROB", 0.3),
		ChainProb:           envFloat("CHAFF_CHAIN_PROB", 0.3),
		IdentityProb:        envFloat("CHAFF_IDENTITY_PROB", 0.15),
		Escalation:          envBool("CHAFF_ESCALATION", true),
		MarkovPacing:        envBool("CHAFF_MARKOV_PACING", true),
		DryRun:              envBool("CHAFF_DRY_RUN", false),
		FetchTimeout:        envDuration("CHAFF_FETCH_TIMEOUT", 15*time.Second),
		MinDelay:            envDuration("CHAFF_MIN_DELAY", 500*time.Millisecond),
		HostRate:            envFloat("CHAFF_HOST_RATE", 0.5),
		HostBurst:           envInt("CHAFF_HOST_BURST", 3),
		DisableLimiter:      envBool("CHAFF_DISABLE_RATELIMIT", false),
		StatusPort:          envInt("CHAFF_STATUS_PORT", 0),
		HistoryPath:         envStr("CHAFF_HISTORY_PATH", ""),
		HistoryBatchSize:    envInt("CHAFF_HISTORY_BATCH_SIZE", 50),
		HistoryFlushTimeout: envDuration("CHAFF_HISTORY_FLUSH_TIMEOUT", 2*time.Second),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "chaff"),
		LogLevel:            envStr("CHAFF_LOG_LEVEL", "info"),
		ShutdownGrace:       envDuration("CHAFF_SHUTDOWN_GRACE", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants the engine depends on.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: CHAFF_WORKERS must be >= 1, got %d", c.Workers)
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"CHAFF_SWITCH_PROB", c.SwitchProb},
		{"CHAFF_CHAIN_PROB", c.ChainProb},
		{"CHAFF_IDENTITY_PROB", c.IdentityProb},
	} {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("config: %s must be in [0,1], got %v", p.name, p.value)
		}
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("config: CHAFF_FETCH_TIMEOUT must be positive")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("config: CHAFF_MIN_DELAY must not be negative")
	}
	if c.HostRate <= 0 {
		return fmt.Errorf("config: CHAFF_HOST_RATE must be positive")
	}
	if c.HostBurst < 1 {
		return fmt.Errorf("config: CHAFF_HOST_BURST must be >= 1")
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("config: CHAFF_STATUS_PORT out of range: %d", c.StatusPort)
	}
	if c.HistoryPath != "" && c.HistoryBatchSize < 1 {
		return fmt.Errorf("config: CHAFF_HISTORY_BATCH_SIZE must be >= 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: CHAFF_LOG_LEVEL %q, want debug|info|warn|error", c.LogLevel)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
