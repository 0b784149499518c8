package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Extract     ExtractConfig     `yaml:"extract" mapstructure:"extract"`
	Ensemble    EnsembleConfig    `yaml:"ensemble" mapstructure:"ensemble"`
	Revision    RevisionConfig    `yaml:"revision" mapstructure:"revision"`
	GroundTruth GroundTruthConfig `yaml:"groundtruth" mapstructure:"groundtruth"`
	Backtest    BacktestConfig    `yaml:"backtest" mapstructure:"backtest"`
	Critique    CritiqueConfig    `yaml:"critique" mapstructure:"critique"`
	Providers   ProvidersConfig   `yaml:"providers" mapstructure:"providers"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Breaker     BreakerConfig     `yaml:"breaker" mapstructure:"breaker"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the run archive backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, none
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ExtractConfig configures the numeric extractor. Domain seeds the range and
// preferred shape; Min/Max/PreferredShape override the preset when set.
type ExtractConfig struct {
	Domain         string   `yaml:"domain" mapstructure:"domain"` // ratings, posts
	Min            *float64 `yaml:"min" mapstructure:"min"`
	Max            *float64 `yaml:"max" mapstructure:"max"`
	MarkerPattern  string   `yaml:"marker_pattern" mapstructure:"marker_pattern"`
	PreferredShape *string  `yaml:"preferred_shape" mapstructure:"preferred_shape"`
}

// EnsembleConfig configures forecast collection and aggregation.
type EnsembleConfig struct {
	Period          string         `yaml:"period" mapstructure:"period"`
	PromptFile      string         `yaml:"prompt_file" mapstructure:"prompt_file"`
	Temperatures    []float64      `yaml:"temperatures" mapstructure:"temperatures"`
	Targets         []TargetConfig `yaml:"targets" mapstructure:"targets"`
	Concurrency     int            `yaml:"concurrency" mapstructure:"concurrency"`
	CallTimeoutSecs int            `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RawOutput       string         `yaml:"raw_output" mapstructure:"raw_output"`
	AggregateOutput string         `yaml:"aggregate_output" mapstructure:"aggregate_output"`
	// Source names where per-model detail lives; it is cited in aggregate notes.
	Source string `yaml:"source" mapstructure:"source"`
}

// TargetConfig names one provider model to query. PromptFile overrides the
// ensemble prompt for this target.
type TargetConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	Model      string `yaml:"model" mapstructure:"model"`
	PromptFile string `yaml:"prompt_file" mapstructure:"prompt_file"`
}

// RevisionConfig configures outlier exclusion.
type RevisionConfig struct {
	Exclude []OutlierConfig `yaml:"exclude" mapstructure:"exclude"`
	Output  string          `yaml:"output" mapstructure:"output"`
}

// OutlierConfig identifies one record to exclude. All four fields must match.
type OutlierConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	Value       float64 `yaml:"value" mapstructure:"value"`
}

// GroundTruthConfig names the historical data columns and trailing window.
type GroundTruthConfig struct {
	TimestampField string `yaml:"timestamp_field" mapstructure:"timestamp_field"`
	ValueField     string `yaml:"value_field" mapstructure:"value_field"`
	WindowDays     int    `yaml:"window_days" mapstructure:"window_days"`
}

// BacktestConfig configures the backtest command.
type BacktestConfig struct {
	Variants    string  `yaml:"variants" mapstructure:"variants"`
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	Output      string  `yaml:"output" mapstructure:"output"`
}

// CritiqueConfig configures the critique command.
type CritiqueConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	Template    string  `yaml:"template" mapstructure:"template"`
	Output      string  `yaml:"output" mapstructure:"output"`
}

// ProvidersConfig holds per-provider API settings.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Anthropic  ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Google     ProviderConfig `yaml:"google" mapstructure:"google"`
	Perplexity ProviderConfig `yaml:"perplexity" mapstructure:"perplexity"`
}

// ProviderConfig holds one provider's credentials and limits.
type ProviderConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens         int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	// SearchRecency restricts web-search providers to recent results
	// (day, week, month or year).
	SearchRecency string `yaml:"search_recency" mapstructure:"search_recency"`
}

// Get returns the settings for a provider name.
func (p ProvidersConfig) Get(name string) (ProviderConfig, bool) {
	switch strings.ToLower(name) {
	case "openai":
		return p.OpenAI, true
	case "anthropic":
		return p.Anthropic, true
	case "google", "gemini":
		return p.Google, true
	case "perplexity":
		return p.Perplexity, true
	}
	return ProviderConfig{}, false
}

// RetryConfig configures retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig configures per-provider circuit breaking.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// PricingConfig holds token pricing per provider model.
type PricingConfig struct {
	Models []ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Provider string  `yaml:"provider" mapstructure:"provider"`
	Model    string  `yaml:"model" mapstructure:"model"`
	Input    float64 `yaml:"input" mapstructure:"input"`
	Output   float64 `yaml:"output" mapstructure:"output"`
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// providerKeyEnv maps provider keys to the conventional variables each
// vendor documents, checked after the FORECAST_ prefixed form.
var providerKeyEnv = map[string]string{
	"providers.openai.key":     "OPENAI_API_KEY",
	"providers.anthropic.key":  "ANTHROPIC_API_KEY",
	"providers.google.key":     "GEMINI_API_KEY",
	"providers.perplexity.key": "PERPLEXITY_API_KEY",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range providerKeyEnv {
		prefixed := "FORECAST_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "forecast.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("extract.domain", "ratings")
	v.SetDefault("extract.marker_pattern", `(?i)final\s+forecast\s*:\s*\**\s*(\d+(?:\.\d+)?)`)

	v.SetDefault("ensemble.prompt_file", "prompt.txt")
	v.SetDefault("ensemble.temperatures", []float64{0.2, 0.7})
	v.SetDefault("ensemble.targets", []map[string]any{
		{"provider": "openai", "model": "gpt-4o"},
		{"provider": "anthropic", "model": "claude-3-opus-20240229"},
		{"provider": "google", "model": "gemini-1.5-pro-latest"},
	})
	v.SetDefault("ensemble.concurrency", 1)
	v.SetDefault("ensemble.call_timeout_secs", 120)
	v.SetDefault("ensemble.raw_output", "preds_raw.json")
	v.SetDefault("ensemble.aggregate_output", "preds_aggregate.json")

	v.SetDefault("revision.output", "preds_revised.json")

	v.SetDefault("groundtruth.timestamp_field", "iso_date")
	v.SetDefault("groundtruth.value_field", "rating")
	v.SetDefault("groundtruth.window_days", 30)

	v.SetDefault("backtest.variants", "backtest.yaml")
	v.SetDefault("backtest.provider", "openai")
	v.SetDefault("backtest.model", "gpt-4o")
	v.SetDefault("backtest.temperature", 0.2)
	v.SetDefault("backtest.output", "backtest_results.json")

	v.SetDefault("critique.provider", "openai")
	v.SetDefault("critique.model", "gpt-4o")
	v.SetDefault("critique.temperature", 0.3)
	v.SetDefault("critique.output", "critique.txt")

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.max_tokens", 1024)
	v.SetDefault("providers.openai.requests_per_minute", 60)
	v.SetDefault("providers.anthropic.max_tokens", 1024)
	v.SetDefault("providers.anthropic.requests_per_minute", 50)
	v.SetDefault("providers.google.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.google.max_tokens", 1024)
	v.SetDefault("providers.google.requests_per_minute", 60)
	v.SetDefault("providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("providers.perplexity.max_tokens", 1024)
	v.SetDefault("providers.perplexity.requests_per_minute", 50)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.cooldown_secs", 60)

	v.SetDefault("pricing.models", []map[string]any{
		{"provider": "openai", "model": "gpt-4o", "input": 2.50, "output": 10.00},
		{"provider": "anthropic", "model": "claude-3-opus-20240229", "input": 15.00, "output": 75.00},
		{"provider": "google", "model": "gemini-1.5-pro-latest", "input": 1.25, "output": 5.00},
		{"provider": "perplexity", "model": "sonar-pro", "input": 3.00, "output": 15.00, "per_query": 0.005},
	})
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
