package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into a fresh temp dir so no config.yaml is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 120, cfg.LLM.TimeoutSecs)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMs)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.001)
	assert.Equal(t, "vendor/med_agents/datasets/MedQA/", cfg.Run.DatasetDir)
	assert.Equal(t, "outputs/MedQA/", cfg.Run.OutputDir)
	assert.Equal(t, 1, cfg.Run.Concurrency)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "medrag.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.InDelta(t, 0.2, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
llm:
  provider: anthropic
store:
  driver: none
log:
  level: debug
  format: json
run:
  concurrency: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Run.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadRawProviderEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("ANTHROPIC_BASE_URL", "http://proxy.local")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local", cfg.Anthropic.BaseURL)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAI.Key)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "g-key", cfg.Gemini.Key)
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	chdirTemp(t)

	t.Setenv("OPENAI_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("MEDRAG_OPENAI_MODEL", "gpt-4.1")
	t.Setenv("MEDRAG_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", cfg.OpenAI.Model)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MEDRAG_DOTENV_A=from-file\nMEDRAG_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("MEDRAG_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("MEDRAG_DOTENV_A") }) //nolint:errcheck

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("MEDRAG_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("MEDRAG_DOTENV_B"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestProviderName(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "Anthropic"}}

	assert.Equal(t, "anthropic", cfg.ProviderName(""))
	assert.Equal(t, "gemini", cfg.ProviderName(" GEMINI "))

	cfg.LLM.Provider = ""
	assert.Equal(t, "openai", cfg.ProviderName(""))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		cfg      Config
		wantErr  []string
	}{
		{
			name:     "openai ok",
			provider: ProviderOpenAI,
			cfg:      Config{OpenAI: OpenAIConfig{Key: "k", Model: "m"}},
		},
		{
			name:     "openai missing both",
			provider: ProviderOpenAI,
			wantErr:  []string{"Missing OPENAI_API_KEY", "Missing OPENAI_MODEL_NAME"},
		},
		{
			name:     "anthropic missing key",
			provider: ProviderAnthropic,
			cfg:      Config{Anthropic: AnthropicConfig{Model: "claude"}},
			wantErr:  []string{"Missing ANTHROPIC_API_KEY"},
		},
		{
			name:     "gemini ok",
			provider: ProviderGemini,
			cfg:      Config{Gemini: GeminiConfig{Key: "k", Model: "gemini-2.5-flash"}},
		},
		{
			name:     "unknown provider",
			provider: "azure",
			wantErr:  []string{"unknown llm provider"},
		},
		{
			name:     "bad burst",
			provider: ProviderOpenAI,
			cfg: Config{
				OpenAI:    OpenAIConfig{Key: "k", Model: "m"},
				RateLimit: RateLimitConfig{RPS: 2},
			},
			wantErr: []string{"ratelimit.burst"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.provider)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
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

func TestInitRunLogger_WritesDebugToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "run.log")

	closeFn, err := InitRunLogger(LogConfig{Level: "info", Format: "console"}, path)
	require.NoError(t, err)

	zap.L().Debug("per-call detail", zap.String("stage", "S1_question_domain"))
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "per-call detail")
	assert.Contains(t, string(data), "S1_question_domain")
}

func TestInitRunLogger_InvalidLevel(t *testing.T) {
	_, err := InitRunLogger(LogConfig{Level: "loud"}, filepath.Join(t.TempDir(), "x.log"))
	assert.Error(t, err)
}
