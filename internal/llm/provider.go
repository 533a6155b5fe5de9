// Package llm selects a chat provider from configuration and adapts it to
// the call contract the MedAgents pipeline expects.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/config"
	"github.com/sells-group/medrag-cli/pkg/anthropic"
	"github.com/sells-group/medrag-cli/pkg/gemini"
	"github.com/sells-group/medrag-cli/pkg/openai"
)

// Provider is a single-turn chat backend.
type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a provider-neutral system+user chat request.
type ChatRequest struct {
	System           string
	User             string
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
}

// ChatResponse carries the completion text. HasContent is false when the
// provider answered without any text.
type ChatResponse struct {
	ID         string
	Text       string
	HasContent bool
	Usage      *Usage
}

// Usage is nil on a response when the provider did not report it.
type Usage struct {
	Prompt     int64 `json:"prompt_tokens"`
	Completion int64 `json:"completion_tokens"`
	Total      int64 `json:"total_tokens"`
}

// Select builds the provider named by override, else llm.provider, else
// openai. Credentials are validated before any client is created.
func Select(ctx context.Context, cfg *config.Config, override string) (Provider, error) {
	name := cfg.ProviderName(override)
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second

	switch name {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.OpenAI.Model)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if timeout > 0 {
			opts = append(opts, openai.WithTimeout(timeout))
		}
		return NewOpenAI(openai.NewClient(cfg.OpenAI.Key, opts...), cfg.OpenAI.Model), nil

	case config.ProviderAnthropic:
		var opts []anthropic.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		if timeout > 0 {
			opts = append(opts, anthropic.WithTimeout(timeout))
		}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key, opts...), cfg.Anthropic.Model), nil

	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.Gemini.Key,
			BaseURL: cfg.Gemini.BaseURL,
			Timeout: timeout,
		})
		if err != nil {
			return nil, eris.Wrap(err, "llm: create gemini client")
		}
		return NewGemini(client, cfg.Gemini.Model), nil
	}

	return nil, eris.Errorf("llm: unsupported provider %q", name)
}
