package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty temp dir so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "PERPLEXITY_API_KEY"} {
		t.Setenv(env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	clearProviderEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "forecast.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ratings", cfg.Extract.Domain)
	assert.Equal(t, []float64{0.2, 0.7}, cfg.Ensemble.Temperatures)
	require.Len(t, cfg.Ensemble.Targets, 3)
	assert.Equal(t, "openai", cfg.Ensemble.Targets[0].Provider)
	assert.Equal(t, "gpt-4o", cfg.Ensemble.Targets[0].Model)
	assert.Equal(t, "google", cfg.Ensemble.Targets[2].Provider)
	assert.Equal(t, "gemini-1.5-pro-latest", cfg.Ensemble.Targets[2].Model)
	assert.Equal(t, 1, cfg.Ensemble.Concurrency)
	assert.Equal(t, "preds_raw.json", cfg.Ensemble.RawOutput)
	assert.Equal(t, "iso_date", cfg.GroundTruth.TimestampField)
	assert.Equal(t, "rating", cfg.GroundTruth.ValueField)
	assert.Equal(t, 30, cfg.GroundTruth.WindowDays)
	assert.InDelta(t, 0.2, cfg.Backtest.Temperature, 0.001)
	assert.InDelta(t, 0.3, cfg.Critique.Temperature, 0.001)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.NotEmpty(t, cfg.Pricing.Models)
	assert.Empty(t, cfg.Providers.OpenAI.Key)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	clearProviderEnv(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
  format: console
extract:
  domain: posts
  min: 0
  max: 500
ensemble:
  period: "June 2-6"
  temperatures: [0.1]
  targets:
    - provider: perplexity
      model: sonar-pro
revision:
  exclude:
    - provider: openai
      model: gpt-4o
      temperature: 0.7
      value: 3.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "posts", cfg.Extract.Domain)
	require.NotNil(t, cfg.Extract.Max)
	assert.InDelta(t, 500, *cfg.Extract.Max, 0.001)
	assert.Equal(t, "June 2-6", cfg.Ensemble.Period)
	assert.Equal(t, []float64{0.1}, cfg.Ensemble.Temperatures)
	require.Len(t, cfg.Ensemble.Targets, 1)
	assert.Equal(t, "sonar-pro", cfg.Ensemble.Targets[0].Model)
	require.Len(t, cfg.Revision.Exclude, 1)
	assert.InDelta(t, 3.0, cfg.Revision.Exclude[0].Value, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.GroundTruth.WindowDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	clearProviderEnv(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FORECAST_STORE_DRIVER", "postgres")
	t.Setenv("FORECAST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadProviderKeys(t *testing.T) {
	chdirTemp(t)
	clearProviderEnv(t)

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("FORECAST_PROVIDERS_ANTHROPIC_KEY", "sk-ant")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-openai", cfg.Providers.OpenAI.Key)
	assert.Equal(t, "gm-key", cfg.Providers.Google.Key)
	assert.Equal(t, "sk-ant", cfg.Providers.Anthropic.Key)
	assert.Empty(t, cfg.Providers.Perplexity.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	clearProviderEnv(t)
	t.Setenv("PERPLEXITY_API_KEY", "")
	require.NoError(t, os.Unsetenv("PERPLEXITY_API_KEY"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PERPLEXITY_API_KEY=pplx-dotenv\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pplx-dotenv", cfg.Providers.Perplexity.Key)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("FORECAST_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestProvidersGet(t *testing.T) {
	p := ProvidersConfig{Google: ProviderConfig{Key: "g"}}

	got, ok := p.Get("gemini")
	assert.True(t, ok)
	assert.Equal(t, "g", got.Key)

	got, ok = p.Get("Google")
	assert.True(t, ok)
	assert.Equal(t, "g", got.Key)

	_, ok = p.Get("mistral")
	assert.False(t, ok)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "forecast.db"
	cfg.Ensemble.Period = "June 2-6"
	cfg.Ensemble.PromptFile = "prompt.txt"
	cfg.Ensemble.Temperatures = []float64{0.2, 0.7}
	cfg.Ensemble.Targets = []TargetConfig{{Provider: "openai", Model: "gpt-4o"}}
	cfg.Ensemble.Concurrency = 1
	cfg.GroundTruth.TimestampField = "iso_date"
	cfg.GroundTruth.WindowDays = 30
	cfg.Backtest.Variants = "backtest.yaml"
	cfg.Backtest.Provider = "openai"
	cfg.Critique.Provider = "openai"
	cfg.Retry.MaxAttempts = 3
	return cfg
}

func TestValidateForecast_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Providers.OpenAI.Key = "sk-openai"

	assert.NoError(t, cfg.Validate("forecast"))
}

func TestValidateForecast_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Ensemble.Period = ""
	cfg.Ensemble.Temperatures = []float64{3}
	cfg.Ensemble.Targets = append(cfg.Ensemble.Targets, TargetConfig{Provider: "mistral"})

	err := cfg.Validate("forecast")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ensemble.period is required")
	assert.Contains(t, err.Error(), "must be between 0 and 2")
	assert.Contains(t, err.Error(), `ensemble.targets[1].provider "mistral" is not supported`)
	assert.Contains(t, err.Error(), "ensemble.targets[1].model is required")
	assert.Contains(t, err.Error(), "no provider key is configured")
}

func TestValidateForecast_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Providers.OpenAI.Key = "sk-openai"

	cfg.Ensemble.Concurrency = 0
	err := cfg.Validate("forecast")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ensemble.concurrency must be between 1 and 32")

	cfg.Ensemble.Concurrency = 32
	assert.NoError(t, cfg.Validate("forecast"))
}

func TestValidateBacktest_MissingKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("backtest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "providers.openai.key is required")

	cfg.Providers.OpenAI.Key = "sk-openai"
	assert.NoError(t, cfg.Validate("backtest"))
}

func TestValidate_SearchRecency(t *testing.T) {
	cfg := validDefaults()
	cfg.Providers.Perplexity.SearchRecency = "fortnight"

	err := cfg.Validate("aggregate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search_recency must be day, week, month or year")

	cfg.Providers.Perplexity.SearchRecency = "week"
	assert.NoError(t, cfg.Validate("aggregate"))
}

func TestValidate_ExtractRange(t *testing.T) {
	cfg := validDefaults()
	lo, hi := 5.0, 1.0
	cfg.Extract.Min, cfg.Extract.Max = &lo, &hi

	err := cfg.Validate("forecast")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "extract.min must be less than extract.max")

	hi = 10
	cfg.Providers.OpenAI.Key = "sk-openai"
	assert.NoError(t, cfg.Validate("forecast"))
}

func TestValidateGroundTruth_Window(t *testing.T) {
	cfg := validDefaults()
	cfg.GroundTruth.WindowDays = 0

	err := cfg.Validate("metrics")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "groundtruth.window_days must be > 0")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "postgres"
	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/forecast"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "none"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate("store"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
