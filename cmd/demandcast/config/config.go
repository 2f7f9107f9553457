// Package config provides configuration parsing and management for the
// demandcast service.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence over environment variables. The Config struct contains
// all runtime configuration:
//   - HTTP listen address
//   - Sales data source selection (SQL or HTTP) and source settings
//   - Artifact storage backend (memory, file, or redis)
//   - Training behavior (cross-validation, default horizon)
//   - Scheduled retraining (sweep interval, maximum artifact age)
//   - Experiment tracking endpoint
//   - Logging configuration (level, format)
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config holds all demandcast service configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	ArtifactDir   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Source       string
	SourceConfig map[string]string

	DefaultHorizonDays int
	MaxHorizonDays     int
	CrossValidation    bool

	RetrainInterval time.Duration
	RetrainMaxAge   time.Duration

	TrackingURL        string
	TrackingExperiment string
}

// ParseFlags parses command-line flags and environment variables into a
// Config and validates it, exiting with a message on invalid input.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8000"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Artifact storage backend: memory, file, or redis")
	flag.StringVar(&cfg.ArtifactDir, "artifact-dir", getEnv("ARTIFACT_DIR", "models"), "Artifact directory for file storage")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis artifact TTL (0 keeps artifacts until replaced)")

	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", "sql"), "Sales data source: sql or http")

	flag.IntVar(&cfg.DefaultHorizonDays, "horizon-days", getEnvInt("HORIZON_DAYS", 30), "Default forecast horizon in days")
	flag.IntVar(&cfg.MaxHorizonDays, "max-horizon-days", getEnvInt("MAX_HORIZON_DAYS", 365), "Maximum accepted forecast horizon in days")
	flag.BoolVar(&cfg.CrossValidation, "cross-validation", getEnvBool("CROSS_VALIDATION", false), "Run rolling-origin cross-validation during training")

	flag.DurationVar(&cfg.RetrainInterval, "retrain-interval", getEnvDuration("RETRAIN_INTERVAL", 0), "Scheduled retraining sweep interval (0 disables)")
	flag.DurationVar(&cfg.RetrainMaxAge, "retrain-max-age", getEnvDuration("RETRAIN_MAX_AGE", 7*24*time.Hour), "Artifact age that triggers scheduled retraining")

	flag.StringVar(&cfg.TrackingURL, "tracking-url", getEnv("TRACKING_URL", ""), "Experiment tracking endpoint (empty disables tracking)")
	flag.StringVar(&cfg.TrackingExperiment, "tracking-experiment", getEnv("TRACKING_EXPERIMENT", "demand-forecasting"), "Experiment name for tracking runs")

	flag.Parse()

	cfg.SourceConfig = parseSourceConfig()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.Storage {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory, file, or redis)", c.Storage)
	}

	if c.Storage == "file" && c.ArtifactDir == "" {
		return fmt.Errorf("artifact-dir is required for file storage")
	}
	if c.Storage == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis-addr is required for redis storage")
	}

	switch c.Source {
	case "sql", "http":
	default:
		return fmt.Errorf("invalid source %q (must be sql or http)", c.Source)
	}

	if c.DefaultHorizonDays <= 0 {
		return fmt.Errorf("horizon-days must be > 0")
	}
	if c.MaxHorizonDays < c.DefaultHorizonDays {
		return fmt.Errorf("max-horizon-days (%d) < horizon-days (%d)", c.MaxHorizonDays, c.DefaultHorizonDays)
	}

	if c.RetrainInterval < 0 {
		return fmt.Errorf("retrain-interval cannot be negative")
	}
	if c.RetrainInterval > 0 && c.RetrainMaxAge <= 0 {
		return fmt.Errorf("retrain-max-age must be > 0 when retraining is enabled")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q (must be text or json)", c.LogFormat)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// SKUPattern is the accepted SKU identifier shape, shared with the HTTP
// layer for request validation.
var SKUPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,62}[a-zA-Z0-9])?$`)

// parseSourceConfig parses SOURCE_* environment variables into a generic
// configuration map for the sales source factory. Variable names are
// converted to camelCase keys (SOURCE_DATE_PATH -> datePath).
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		if len(env) > 7 && env[:7] == "SOURCE_" {
			parts := splitEnv(env)
			if len(parts) == 2 {
				key := toLowerCamelCase(parts[0][7:])
				config[key] = parts[1]
			}
		}
	}

	return config
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
