package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the full application configuration. Defaults are overlaid by
// an optional YAML file and then by TAXC_-prefixed environment variables.
type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	RuleSet    RuleSetConfig    `koanf:"rule_set"`
	Evaluation EvaluationConfig `koanf:"evaluation"`
	Batch      BatchConfig      `koanf:"batch"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit throttles API requests with a single limiter shared
	// across all clients
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `koanf:"burst_size" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gt=0"`
	MinIdleConns    int           `koanf:"min_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// SnapshotTTL bounds how long a cached rule snapshot serves reads
	// before the repository is consulted again
	SnapshotTTL time.Duration `koanf:"snapshot_ttl"`
}

// RuleSetConfig points at the versioned Finance Act rule-set file loaded
// at start-up. Rule content is configuration, never code.
type RuleSetConfig struct {
	Path    string `koanf:"path" validate:"required"`
	Version string `koanf:"version"`
}

type EvaluationConfig struct {
	DecayDays        int `koanf:"decay_days" validate:"gt=0"`
	AtRiskWindowDays int `koanf:"at_risk_window_days" validate:"gte=0"`
	GraceDays        int `koanf:"grace_days" validate:"gte=0"`
}

type BatchConfig struct {
	// Schedule is a cron expression for the nightly recompute
	Schedule string `koanf:"schedule" validate:"required"`
	Workers  int    `koanf:"workers" validate:"gt=0"`
}

// Load reads configuration from defaults, an optional YAML file, and
// TAXC_-prefixed environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			SnapshotTTL:  15 * time.Minute,
		},
		RuleSet: RuleSetConfig{
			Path:    "configs/rulesets/fa2024.yaml",
			Version: "FA2024",
		},
		Evaluation: EvaluationConfig{
			DecayDays:        90,
			AtRiskWindowDays: 7,
			GraceDays:        0,
		},
		Batch: BatchConfig{
			Schedule: "0 2 * * *",
			Workers:  8,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("TAXC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TAXC_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
