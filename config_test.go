package aicore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/krlsedu/aicore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_PAID_KEY", "paid-from-env")
	path := writeFile(t, "aicore.yaml", `
free_keys:
  - free-1,free-2
paid_keys:
  - ${TEST_PAID_KEY}
models:
  - name: gemini-2.5-pro
    limit: 2
  - name: gemini-2.5-flash
    limit: 10
    cost_rank: 1
backoff_window: 90s
backoff_mode: quota-class
max_attempts: 5
telemetry:
  driver: sqlite
  dsn: /tmp/aicore.db
  queue_size: 32
`)

	cfg, err := aicore.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"free-1", "free-2"}, aicore.SplitAll(cfg.FreeKeys))
	assert.Equal(t, []string{"paid-from-env"}, cfg.PaidKeys)
	assert.Equal(t, 90*time.Second, cfg.BackoffWindow)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, aicore.TelemetryConfig{Driver: "sqlite", DSN: "/tmp/aicore.db", QueueSize: 32}, cfg.Telemetry)

	specs := cfg.ModelSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, aicore.ModelSpec{Name: "gemini-2.5-pro", ConcurrencyLimit: 2, CostRank: 80}, specs[0])
	assert.Equal(t, aicore.ModelSpec{Name: "gemini-2.5-flash", ConcurrencyLimit: 10, CostRank: 1}, specs[1])

	b, ok := cfg.Backoff().(aicore.QuotaClassBackoff)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, b.Default)
	assert.Equal(t, 120*time.Second, b.PerMinute)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := aicore.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = aicore.LoadConfig(writeFile(t, "bad.yaml", "free_keys: [unterminated"))
	assert.ErrorIs(t, err, aicore.ErrConfiguration)
}

func TestConfigValidate(t *testing.T) {
	valid := func() aicore.Config { return testConfig([]string{"A"}, nil) }

	tests := []struct {
		name   string
		mutate func(*aicore.Config)
	}{
		{"no keys", func(c *aicore.Config) { c.FreeKeys = []string{" "} }},
		{"model without name", func(c *aicore.Config) { c.Models = []aicore.ModelConfig{{Limit: 1}} }},
		{"duplicate model", func(c *aicore.Config) {
			c.Models = []aicore.ModelConfig{{Name: "m", Limit: 1}, {Name: "m", Limit: 1}}
		}},
		{"zero limit", func(c *aicore.Config) { c.Models = []aicore.ModelConfig{{Name: "m"}} }},
		{"bad backoff mode", func(c *aicore.Config) { c.BackoffMode = "exponential" }},
		{"negative window", func(c *aicore.Config) { c.BackoffWindow = -time.Second }},
		{"negative attempts", func(c *aicore.Config) { c.MaxAttempts = -1 }},
		{"bad driver", func(c *aicore.Config) { c.Telemetry.Driver = "clickhouse" }},
		{"driver without dsn", func(c *aicore.Config) { c.Telemetry.Driver = aicore.TelemetryRedis }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), aicore.ErrConfiguration)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := aicore.Config{FreeKeys: []string{"A"}}

	specs := cfg.ModelSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "gemini-3-flash-preview", specs[0].Name)
	assert.Equal(t, 1, specs[0].ConcurrencyLimit)

	assert.Equal(t, aicore.FixedBackoff(aicore.DefaultBackoffWindow), cfg.Backoff())
	cfg.BackoffWindow = 10 * time.Second
	assert.Equal(t, aicore.FixedBackoff(10*time.Second), cfg.Backoff())
}

func TestParseModelLimits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []aicore.ModelConfig
	}{
		{"empty", "  ", nil},
		{"compact", "gemini-2.5-pro=4, gemini-2.5-flash = 10", []aicore.ModelConfig{
			{Name: "gemini-2.5-pro", Limit: 4}, {Name: "gemini-2.5-flash", Limit: 10},
		}},
		{"compact skips blank items", "a=1,,b=2,", []aicore.ModelConfig{
			{Name: "a", Limit: 1}, {Name: "b", Limit: 2},
		}},
		{"json keeps order", `{"z-model": 3, "a-model": 1}`, []aicore.ModelConfig{
			{Name: "z-model", Limit: 3}, {Name: "a-model", Limit: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := aicore.ParseModelLimits(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{
		"a=x",
		"garbage",
		"gemini-2.5-pro=4,gemini-2.5-flash",
		"=3",
		`{"a": "many"}`,
		`{"a": 1`,
		`{"a": [1]}`,
	} {
		_, err := aicore.ParseModelLimits(bad)
		assert.ErrorIs(t, err, aicore.ErrConfiguration, bad)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(aicore.EnvFreeKeys, "f1, f2,f1")
	t.Setenv(aicore.EnvModelLimits, `{"gemini-2.5-flash": 3}`)
	t.Setenv(aicore.EnvBackoffWindow, "30")
	t.Setenv(aicore.EnvMaxAttempts, "7")
	t.Setenv(aicore.EnvTelemetry, "")

	// Only set via the .env file below.
	t.Setenv(aicore.EnvPaidKeys, "")
	require.NoError(t, os.Unsetenv(aicore.EnvPaidKeys))

	envFile := writeFile(t, ".env", "GOOGLE_PAID_KEYS=p1\nGOOGLE_FREE_KEYS=ignored\n")

	cfg, err := aicore.ConfigFromEnv(filepath.Join(t.TempDir(), "absent.env"), envFile)
	require.NoError(t, err)

	assert.Equal(t, []string{"f1", " f2", "f1"}, cfg.FreeKeys, "process env wins over .env")
	assert.Equal(t, []string{"p1"}, cfg.PaidKeys)
	assert.Equal(t, []aicore.ModelConfig{{Name: "gemini-2.5-flash", Limit: 3}}, cfg.Models)
	assert.Equal(t, 30*time.Second, cfg.BackoffWindow)
	assert.Equal(t, aicore.BackoffFixed, cfg.BackoffMode)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, aicore.TelemetryNone, cfg.Telemetry.Driver)

	pool, err := aicore.NewCredentialPool(cfg.FreeKeys, cfg.PaidKeys)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Size(), "duplicates and whitespace collapse")
}

func TestConfigFromEnv_InvalidLimits(t *testing.T) {
	t.Setenv(aicore.EnvFreeKeys, "f1")
	for _, limits := range []string{"flash=many", "garbage", "gemini-2.5-pro=4,gemini-2.5-flash"} {
		t.Setenv(aicore.EnvModelLimits, limits)
		_, err := aicore.ConfigFromEnv(filepath.Join(t.TempDir(), "none.env"))
		assert.ErrorIs(t, err, aicore.ErrConfiguration, limits)
	}
}

func TestConfigFromEnv_MalformedEnvFile(t *testing.T) {
	t.Setenv(aicore.EnvFreeKeys, "f1")
	t.Setenv(aicore.EnvModelLimits, "")
	envFile := writeFile(t, ".env", "BAD!KEY=1\n")

	_, err := aicore.ConfigFromEnv(envFile)
	require.Error(t, err)
	assert.ErrorIs(t, err, aicore.ErrConfiguration)
	assert.Contains(t, err.Error(), envFile)
}

func TestParseTierOverride(t *testing.T) {
	for in, want := range map[string]aicore.TierOverride{
		"": aicore.OverrideNone, "none": aicore.OverrideNone,
		"FREE": aicore.ForceFree, "force_free": aicore.ForceFree,
		" paid ": aicore.ForcePaid, "force_paid": aicore.ForcePaid,
	} {
		got, err := aicore.ParseTierOverride(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := aicore.ParseTierOverride("gold")
	assert.ErrorIs(t, err, aicore.ErrInvalidRequest)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), aicore.EstimateTokens(""))
	assert.Equal(t, int64(1), aicore.EstimateTokens("ab"))
	assert.Equal(t, int64(2), aicore.EstimateTokens("abcd"))
	assert.Equal(t, int64(2), aicore.EstimateTokens("abcdef"))
}
