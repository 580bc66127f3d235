// Package config loads schedcore's runtime configuration from a YAML file,
// with environment variables overriding individual keys — the same
// env-var-first posture the teacher uses for its NATS/Redis settings
// (os.Getenv fallbacks in events/publisher.go), generalized into one
// typed loader instead of scattered os.Getenv calls.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full schedcore process configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Lock     LockConfig     `yaml:"lock"`
	Events   EventsConfig   `yaml:"events"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// LogConfig controls internal/logger.Initialize.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// StoreConfig points at the Postgres backend.
type StoreConfig struct {
	DSN       string `yaml:"dsn"`
	TxRetries int    `yaml:"tx_retries"`
}

// LockConfig points at the Redis distributed-lock backend.
type LockConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	Lease    time.Duration `yaml:"lease"`
}

// EventsConfig points at NATS.
type EventsConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ScheduleConfig holds the per-scaling-group tick and reaper cadence
// (spec.md §6's `schedule.*` keys).
type ScheduleConfig struct {
	Interval             time.Duration `yaml:"interval"`
	PendingTimeoutDefault time.Duration `yaml:"pending_timeout_default"`
	RPCTimeout            time.Duration `yaml:"rpc_timeout"`
	ReaperCron            string        `yaml:"reaper_cron"`
}

// Defaults returns a Config with sane defaults, used as the base that Load
// overlays a file and environment onto.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info", Pretty: false},
		Store: StoreConfig{
			TxRetries: 5,
		},
		Lock: LockConfig{
			Addr:  "localhost:6379",
			Lease: 10 * time.Second,
		},
		Schedule: ScheduleConfig{
			Interval:              5 * time.Second,
			PendingTimeoutDefault: 0,
			RPCTimeout:            30 * time.Second,
			ReaperCron:            "@every 1m",
		},
	}
}

// Load reads path (if non-empty and present) over the defaults, then
// applies SCHEDCORE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		bytes, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(bytes, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCHEDCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCHEDCORE_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Pretty = b
		}
	}
	if v := os.Getenv("SCHEDCORE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SCHEDCORE_LOCK_ADDR"); v != "" {
		cfg.Lock.Addr = v
	}
	if v := os.Getenv("SCHEDCORE_LOCK_PASSWORD"); v != "" {
		cfg.Lock.Password = v
	}
	if v := os.Getenv("SCHEDCORE_NATS_URL"); v != "" {
		cfg.Events.URL = v
	}
	if v := os.Getenv("SCHEDCORE_SCHEDULE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Schedule.Interval = d
		}
	}
}
