package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/config"
	"github.com/sells-group/medrag-cli/pkg/anthropic"
	"github.com/sells-group/medrag-cli/pkg/gemini"
	"github.com/sells-group/medrag-cli/pkg/openai"
)

// anthropicDefaultMaxTokens applies when a call does not set max_tokens;
// the Messages API requires one.
const anthropicDefaultMaxTokens = 1024

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAI wraps an OpenAI-compatible client.
func NewOpenAI(client openai.Client, model string) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: model}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return config.ProviderOpenAI }

// Model implements Provider.
func (p *OpenAIProvider) Model() string { return p.model }

// Chat implements Provider. top_p is pinned to 1.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	topP := 1.0
	temp := req.Temperature
	freq := req.FrequencyPenalty
	pres := req.PresencePenalty
	cr := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.Message{
			openai.Text("system", req.System),
			openai.Text("user", req.User),
		},
		Temperature:      &temp,
		TopP:             &topP,
		FrequencyPenalty: &freq,
		PresencePenalty:  &pres,
		Stop:             req.Stop,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		cr.MaxTokens = &mt
	}

	resp, err := p.client.ChatCompletion(ctx, cr)
	if err != nil {
		return nil, eris.Wrap(err, "llm: openai chat")
	}

	out := &ChatResponse{ID: resp.ID}
	out.Text, out.HasContent = resp.Content()
	if resp.Usage != nil {
		out.Usage = &Usage{
			Prompt:     int64(resp.Usage.PromptTokens),
			Completion: int64(resp.Usage.CompletionTokens),
			Total:      int64(resp.Usage.TotalTokens),
		}
	}
	return out, nil
}

// AnthropicProvider talks to the Anthropic Messages API. Frequency and
// presence penalties have no equivalent there and are ignored.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return config.ProviderAnthropic }

// Model implements Provider.
func (p *AnthropicProvider) Model() string { return p.model }

// Chat implements Provider.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temp := req.Temperature

	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:         p.model,
		MaxTokens:     maxTokens,
		System:        req.System,
		Messages:      []anthropic.Message{{Role: "user", Content: req.User}},
		Temperature:   &temp,
		StopSequences: req.Stop,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic chat")
	}

	out := &ChatResponse{ID: resp.ID}
	out.Text, out.HasContent = resp.Text()
	out.Usage = &Usage{
		Prompt:     resp.Usage.InputTokens,
		Completion: resp.Usage.OutputTokens,
		Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return out, nil
}

// GeminiProvider talks to the Gemini API through the Gen AI SDK.
type GeminiProvider struct {
	client gemini.Client
	model  string
}

// NewGemini wraps a Gemini client.
func NewGemini(client gemini.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return config.ProviderGemini }

// Model implements Provider.
func (p *GeminiProvider) Model() string { return p.model }

// Chat implements Provider.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	temp := float32(req.Temperature)
	gr := gemini.Request{
		Model:           p.model,
		System:          req.System,
		User:            req.User,
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     &temp,
		StopSequences:   req.Stop,
	}
	// Gemini rejects penalties on several models; only send them when set.
	if req.FrequencyPenalty != 0 {
		f := float32(req.FrequencyPenalty)
		gr.FrequencyPenalty = &f
	}
	if req.PresencePenalty != 0 {
		pp := float32(req.PresencePenalty)
		gr.PresencePenalty = &pp
	}

	resp, err := p.client.GenerateContent(ctx, gr)
	if err != nil {
		return nil, eris.Wrap(err, "llm: gemini generate")
	}

	return &ChatResponse{
		ID:         resp.ID,
		Text:       resp.Text,
		HasContent: resp.HasText,
		Usage: &Usage{
			Prompt:     int64(resp.Usage.PromptTokens),
			Completion: int64(resp.Usage.CandidatesTokens),
			Total:      int64(resp.Usage.TotalTokens),
		},
	}, nil
}
