package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Provider names accepted by llm.provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds the full application configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects the chat provider.
type LLMConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OpenAIConfig holds settings for an OpenAI-compatible chat completions API.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RetryConfig configures per-call retries against the LLM provider.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// RateLimitConfig throttles LLM calls. RPS <= 0 disables throttling.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// RunConfig holds defaults for the run command.
type RunConfig struct {
	DatasetDir  string `yaml:"dataset_dir" mapstructure:"dataset_dir"`
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing.
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// MonitoringConfig holds ledger health thresholds. A zero threshold
// disables its alert.
type MonitoringConfig struct {
	LookbackHours            int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CallFailureRateThreshold float64 `yaml:"call_failure_rate_threshold" mapstructure:"call_failure_rate_threshold"`
	CostThresholdUSD         float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envBindings maps config keys to the raw environment variable names used
// by existing MedAgents setups. The MEDRAG_-prefixed name always wins.
var envBindings = map[string][]string{
	"llm.provider":       {"MEDRAG_LLM_PROVIDER", "LLM_PROVIDER"},
	"openai.key":         {"MEDRAG_OPENAI_KEY", "OPENAI_API_KEY"},
	"openai.model":       {"MEDRAG_OPENAI_MODEL", "OPENAI_MODEL_NAME"},
	"openai.base_url":    {"MEDRAG_OPENAI_BASE_URL", "OPENAI_BASE_URL"},
	"anthropic.key":      {"MEDRAG_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
	"anthropic.model":    {"MEDRAG_ANTHROPIC_MODEL", "ANTHROPIC_MODEL_NAME"},
	"anthropic.base_url": {"MEDRAG_ANTHROPIC_BASE_URL", "ANTHROPIC_BASE_URL"},
	"gemini.key":         {"MEDRAG_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"gemini.model":       {"MEDRAG_GEMINI_MODEL", "GEMINI_MODEL_NAME"},
	"gemini.base_url":    {"MEDRAG_GEMINI_BASE_URL", "GEMINI_BASE_URL"},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MEDRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 20000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("run.dataset_dir", "vendor/med_agents/datasets/MedQA/")
	v.SetDefault("run.output_dir", "outputs/MedQA/")
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "medrag.db")
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.call_failure_rate_threshold", 0.05)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// LoadDotEnv exports KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are left alone. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "config: stat %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return eris.Wrapf(err, "config: read dotenv %s", path)
	}

	// viper lowercases keys; environment names are conventionally upper case.
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return eris.Wrapf(err, "config: setenv %s", name)
		}
	}
	return nil
}

// ProviderName resolves the effective provider: an explicit override wins,
// then llm.provider.
func (c *Config) ProviderName(override string) string {
	p := strings.ToLower(strings.TrimSpace(override))
	if p == "" {
		p = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	}
	if p == "" {
		p = ProviderOpenAI
	}
	return p
}

// Validate checks that the credentials for the given provider are present.
// Messages name the raw environment variables so they can be fixed quickly.
func (c *Config) Validate(provider string) error {
	var errs []string
	switch provider {
	case ProviderOpenAI:
		if c.OpenAI.Key == "" {
			errs = append(errs, "Missing OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			errs = append(errs, "Missing OPENAI_MODEL_NAME")
		}
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			errs = append(errs, "Missing ANTHROPIC_API_KEY")
		}
		if c.Anthropic.Model == "" {
			errs = append(errs, "Missing ANTHROPIC_MODEL_NAME")
		}
	case ProviderGemini:
		if c.Gemini.Key == "" {
			errs = append(errs, "Missing GEMINI_API_KEY")
		}
		if c.Gemini.Model == "" {
			errs = append(errs, "Missing GEMINI_MODEL_NAME")
		}
	default:
		return eris.Errorf("config: unknown llm provider %q (want openai, anthropic or gemini)", provider)
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be >= 0")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, "ratelimit.burst must be >= 1 when ratelimit.rps is set")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
