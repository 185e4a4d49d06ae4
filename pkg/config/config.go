// Package config loads engine configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds process-wide engine configuration.
type Config struct {
	LogLevel    string
	StoragePath string
	DatabaseURL string
	RedisURL    string
	EnrichPath  string

	StrictAgent         bool
	ValidateEvaluations bool
}

// Load reads configuration from environment variables, applying
// defaults for anything unset.
func Load() *Config {
	logLevel := os.Getenv("ARBITER_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	storagePath := os.Getenv("ARBITER_STORAGE_PATH")
	if storagePath == "" {
		storagePath = "./data/versions"
	}

	return &Config{
		LogLevel:            logLevel,
		StoragePath:         storagePath,
		DatabaseURL:         os.Getenv("ARBITER_DATABASE_URL"),
		RedisURL:            os.Getenv("ARBITER_REDIS_URL"),
		EnrichPath:          os.Getenv("ARBITER_ENRICH_CONFIG"),
		StrictAgent:         boolEnv("ARBITER_STRICT"),
		ValidateEvaluations: boolEnv("ARBITER_VALIDATE_EVALUATIONS"),
	}
}

func boolEnv(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// SlogLevel maps the configured level name to a slog level, defaulting
// to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
