// Package config loads the YAML configuration shared by cmd/server,
// cmd/dispatcher, and cmd/worker, generalized from the teacher's
// single-service config.go into the sectioned layout the three binaries
// each read a slice of.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Worker     WorkerConfig     `yaml:"worker"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
}

// ServerConfig configures the command API's HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// PostgresConfig configures the primary datastore.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the dispatcher lease hint and metrics cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig configures the Kafka topic events are delivered on.
// WriteMaxAttempts bounds kafka.Writer's own transport-level retry count
// for transient broker write errors -- distinct from WorkerConfig's
// application-level redelivery retries and DispatcherConfig's outbox
// retry bookkeeping, both of which operate above this layer.
type QueueConfig struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	GroupID          string   `yaml:"groupId"`
	WriteMaxAttempts int      `yaml:"writeMaxAttempts"`
}

// DispatcherConfig configures the outbox dispatcher loop (spec §4.3).
type DispatcherConfig struct {
	PeriodMS    int `yaml:"periodMs"`
	BatchSize   int `yaml:"batchSize"`
	BaseDelayMS int `yaml:"baseDelayMs"`
	CapDelayMS  int `yaml:"capDelayMs"`
	MaxAttempts int `yaml:"maxAttempts"`
}

// Period returns the configured poll period as a time.Duration.
func (d DispatcherConfig) Period() time.Duration { return time.Duration(d.PeriodMS) * time.Millisecond }

// BaseDelay returns the configured base retry delay as a time.Duration.
func (d DispatcherConfig) BaseDelay() time.Duration {
	return time.Duration(d.BaseDelayMS) * time.Millisecond
}

// CapDelay returns the configured retry delay ceiling as a time.Duration.
func (d DispatcherConfig) CapDelay() time.Duration { return time.Duration(d.CapDelayMS) * time.Millisecond }

// WorkerConfig configures the queue worker's concurrency and its
// queue-level retry policy (spec §4.4, §4.3 step 4, §8 "attempts=3,
// exponential backoff, base 1s") -- independent of DispatcherConfig's own
// retry/backoff tunables, which govern the outbox dispatcher instead.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	RatePerSec  int `yaml:"ratePerSec"`
	RateBurst   int `yaml:"rateBurst"`

	MaxAttempts int `yaml:"maxAttempts"`
	BaseDelayMS int `yaml:"baseDelayMs"`
	CapDelayMS  int `yaml:"capDelayMs"`
}

// BaseDelay returns the configured base retry delay as a time.Duration.
func (w WorkerConfig) BaseDelay() time.Duration { return time.Duration(w.BaseDelayMS) * time.Millisecond }

// CapDelay returns the configured retry delay ceiling as a time.Duration.
func (w WorkerConfig) CapDelay() time.Duration { return time.Duration(w.CapDelayMS) * time.Millisecond }

// LedgerConfig configures the idempotency ledger (spec §4.5).
type LedgerConfig struct {
	// RetentionDays is advisory only; the core never reads it and never
	// prunes the ledger itself.
	RetentionDays int `yaml:"retentionDays"`
}

// RateLimitConfig configures the command API's per-IP rate limiter.
type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads and parses the YAML config at path, then applies the
// POSTGRES_PASSWORD and REDIS_PASSWORD env-var overrides the teacher
// uses to keep secrets out of the checked-in YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	return &cfg, nil
}
