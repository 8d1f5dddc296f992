// Package config loads runtime settings for the bet processor from an
// optional YAML file followed by environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a setting is out of range.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds every knob the server reads at startup.
type Config struct {
	Port string `yaml:"port"`

	// Worker pool and queue.
	WorkerCount       int `yaml:"worker_count"`
	QueueCapacity     int `yaml:"queue_capacity"`
	ProcessingDelayMs int `yaml:"processing_delay_ms"`

	// SeedData enqueues the demo data set after startup.
	SeedData bool   `yaml:"seed_data"`
	LogLevel string `yaml:"log_level"`

	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	SummaryTTL  time.Duration `yaml:"summary_ttl"`

	// SnapshotInterval is how often a summary is archived; zero disables.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:              "8080",
		WorkerCount:       max(runtime.NumCPU()-1, 2),
		QueueCapacity:     10_000,
		ProcessingDelayMs: 50,
		SeedData:          true,
		LogLevel:          "info",
		SummaryTTL:        30 * time.Second,
		SnapshotInterval:  10 * time.Second,
	}
}

// Load reads BETPROC_CONFIG (if set) and then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("BETPROC_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	getInt := func(key string, dst *int) error {
		val := os.Getenv(key)
		if val == "" {
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, key, val)
		}
		*dst = n
		return nil
	}
	getString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	getString("PORT", &cfg.Port)
	getString("BETPROC_LOG_LEVEL", &cfg.LogLevel)
	getString("DATABASE_URL", &cfg.DatabaseURL)
	getString("REDIS_URL", &cfg.RedisURL)

	for key, dst := range map[string]*int{
		"BETPROC_WORKERS":             &cfg.WorkerCount,
		"BETPROC_QUEUE_CAPACITY":      &cfg.QueueCapacity,
		"BETPROC_PROCESSING_DELAY_MS": &cfg.ProcessingDelayMs,
	} {
		if err := getInt(key, dst); err != nil {
			return err
		}
	}

	if val := os.Getenv("BETPROC_SEED"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: BETPROC_SEED=%q", ErrInvalid, val)
		}
		cfg.SeedData = b
	}
	for key, dst := range map[string]*time.Duration{
		"BETPROC_SUMMARY_TTL":       &cfg.SummaryTTL,
		"BETPROC_SNAPSHOT_INTERVAL": &cfg.SnapshotInterval,
	} {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalid, key, val)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks ranges for the pipeline settings.
func (c Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker count %d < 1", ErrInvalid, c.WorkerCount)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity %d < 1", ErrInvalid, c.QueueCapacity)
	}
	if c.ProcessingDelayMs < 0 {
		return fmt.Errorf("%w: processing delay %dms < 0", ErrInvalid, c.ProcessingDelayMs)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("%w: snapshot interval %s < 0", ErrInvalid, c.SnapshotInterval)
	}
	return nil
}

// ProcessingDelay returns the simulated per-bet delay as a duration.
func (c Config) ProcessingDelay() time.Duration {
	return time.Duration(c.ProcessingDelayMs) * time.Millisecond
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
