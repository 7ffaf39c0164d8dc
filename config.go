package aicore

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backoff modes.
const (
	BackoffFixed      = "fixed"
	BackoffQuotaClass = "quota-class"
)

// Telemetry drivers understood by the daemon.
const (
	TelemetryNone     = "none"
	TelemetrySQLite   = "sqlite"
	TelemetryPostgres = "postgres"
	TelemetryRedis    = "redis"
)

// Config is the top-level broker configuration.
type Config struct {
	FreeKeys      []string        `yaml:"free_keys"`
	PaidKeys      []string        `yaml:"paid_keys"`
	Models        []ModelConfig   `yaml:"models"`
	BackoffWindow time.Duration   `yaml:"backoff_window"`
	BackoffMode   string          `yaml:"backoff_mode"`
	MaxAttempts   int             `yaml:"max_attempts"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// ModelConfig configures one model variant.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Limit    int    `yaml:"limit"`
	CostRank *int   `yaml:"cost_rank"` // nil = DefaultCostRank(Name)
}

// TelemetryConfig selects where usage events go.
type TelemetryConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	QueueSize int    `yaml:"queue_size"`
}

// DefaultModels is used when no model limits are configured.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{Name: "gemini-3-flash-preview", Limit: 1},
		{Name: "gemini-2.5-flash", Limit: 1},
	}
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("aicore: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if len(SplitAll(c.FreeKeys)) == 0 && len(SplitAll(c.PaidKeys)) == 0 {
		return configErrorf("config: at least one free or paid key is required")
	}

	names := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return configErrorf("config: models[%d]: name is required", i)
		}
		if names[m.Name] {
			return configErrorf("config: duplicate model %q", m.Name)
		}
		names[m.Name] = true
		if m.Limit < 1 {
			return configErrorf("config: models[%d] (%s): limit must be positive", i, m.Name)
		}
	}

	switch c.BackoffMode {
	case "", BackoffFixed, BackoffQuotaClass:
	default:
		return configErrorf("config: invalid backoff_mode %q", c.BackoffMode)
	}
	if c.BackoffWindow < 0 {
		return configErrorf("config: backoff_window must not be negative")
	}
	if c.MaxAttempts < 0 {
		return configErrorf("config: max_attempts must not be negative")
	}

	switch c.Telemetry.Driver {
	case "", TelemetryNone, TelemetrySQLite, TelemetryPostgres, TelemetryRedis:
	default:
		return configErrorf("config: invalid telemetry driver %q", c.Telemetry.Driver)
	}
	if c.Telemetry.Driver != "" && c.Telemetry.Driver != TelemetryNone && c.Telemetry.DSN == "" {
		return configErrorf("config: telemetry driver %q requires a dsn", c.Telemetry.Driver)
	}

	return nil
}

// ModelSpecs returns the configured models, or the defaults when none are set.
func (c Config) ModelSpecs() []ModelSpec {
	models := c.Models
	if len(models) == 0 {
		models = DefaultModels()
	}
	specs := make([]ModelSpec, len(models))
	for i, m := range models {
		rank := DefaultCostRank(m.Name)
		if m.CostRank != nil {
			rank = *m.CostRank
		}
		specs[i] = ModelSpec{Name: m.Name, ConcurrencyLimit: m.Limit, CostRank: rank}
	}
	return specs
}

// Backoff returns the suspension policy the config describes.
func (c Config) Backoff() BackoffPolicy {
	if c.BackoffMode == BackoffQuotaClass {
		b := NewQuotaClassBackoff()
		if c.BackoffWindow > 0 {
			b.Default = c.BackoffWindow
		}
		return b
	}
	if c.BackoffWindow > 0 {
		return FixedBackoff(c.BackoffWindow)
	}
	return FixedBackoff(DefaultBackoffWindow)
}

// SplitAll flattens entries that may themselves be comma-separated lists.
func SplitAll(entries []string) []string {
	var out []string
	for _, e := range entries {
		for _, k := range SplitKeys(e) {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}
