// Package gemini wraps the Google Gen AI SDK for single-turn chat.
package gemini

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations used by the provider shim.
type Client interface {
	GenerateContent(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn generation request.
type Request struct {
	Model            string
	System           string
	User             string
	MaxOutputTokens  int32
	Temperature      *float32
	FrequencyPenalty *float32
	PresencePenalty  *float32
	StopSequences    []string
}

// Response is the subset of a generation response the shim needs.
type Response struct {
	ID           string
	Text         string
	HasText      bool
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int32
	CandidatesTokens int32
	TotalTokens      int32
}

// Config configures the SDK client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type sdkClient struct {
	models *genai.Models
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{models: client.Models}, nil
}

func (c *sdkClient) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}

	resp, err := c.models.GenerateContent(ctx, req.Model, contents, toConfig(req))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}
	return fromSDKResponse(resp), nil
}

func toConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		StopSequences:    req.StopSequences,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}
	return cfg
}

func fromSDKResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	out.ID = resp.ResponseID
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		out.FinishReason = string(cand.FinishReason)
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p != nil && p.Text != "" && !p.Thought {
					out.HasText = true
					out.Text += p.Text
				}
			}
		}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     u.PromptTokenCount,
			CandidatesTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return out
}
