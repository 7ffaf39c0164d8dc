package aicore

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvFreeKeys      = "GOOGLE_FREE_KEYS"
	EnvPaidKeys      = "GOOGLE_PAID_KEYS"
	EnvModelLimits   = "GOOGLE_MODEL_LIMITS"
	EnvBackoffWindow = "AICORE_BACKOFF_WINDOW"
	EnvBackoffMode   = "AICORE_BACKOFF_MODE"
	EnvMaxAttempts   = "AICORE_MAX_ATTEMPTS"
	EnvTelemetry     = "TELEMETRY_DRIVER"
	EnvTelemetryDSN  = "TELEMETRY_DSN"
)

// ConfigFromEnv builds a Config from the process environment. The first
// .env file found among envFiles (or ./.env when none are given) is loaded
// first; variables already set in the environment win. A .env file that
// exists but cannot be parsed is a configuration error.
func ConfigFromEnv(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if cwd, err := os.Getwd(); err == nil {
			envFiles = []string{filepath.Join(cwd, ".env")}
		}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return Config{}, configErrorf("env file %s: %v", path, err)
			}
			break
		}
	}

	models, err := ParseModelLimits(os.Getenv(EnvModelLimits))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		FreeKeys:      SplitKeys(os.Getenv(EnvFreeKeys)),
		PaidKeys:      SplitKeys(os.Getenv(EnvPaidKeys)),
		Models:        models,
		BackoffWindow: getEnvDuration(EnvBackoffWindow, DefaultBackoffWindow),
		BackoffMode:   getEnvString(EnvBackoffMode, BackoffFixed),
		MaxAttempts:   getEnvInt(EnvMaxAttempts, 0),
		Telemetry: TelemetryConfig{
			Driver: getEnvString(EnvTelemetry, TelemetryNone),
			DSN:    os.Getenv(EnvTelemetryDSN),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts values like "30s", "1m", or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
