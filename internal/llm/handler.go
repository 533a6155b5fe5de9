package llm

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/medrag-cli/internal/config"
	"github.com/sells-group/medrag-cli/internal/cost"
	"github.com/sells-group/medrag-cli/internal/resilience"
)

// ErrorOutput is what Call returns when no usable completion was produced.
// The pipeline treats it as a sentinel and substitutes fallbacks.
const ErrorOutput = "ERROR."

// Meta identifies the question and consultation step a call belongs to.
type Meta struct {
	QID     int    `json:"qid"`
	RealQID int    `json:"realqid"`
	Domain  string `json:"domain,omitempty"`
	Round   int    `json:"round,omitempty"`
}

// Call is one pipeline request to the model, tagged with its stage.
type Call struct {
	Stage            string
	Meta             Meta
	System           string
	User             string
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
}

// Stats are the cumulative counters of a Handler.
type Stats struct {
	Calls            int64   `json:"calls"`
	FailedCalls      int64   `json:"failed_calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	WallSeconds      float64 `json:"wall_seconds"`
}

// Handler wraps a Provider with retries, throttling, per-call debug records
// and usage accounting. It is safe for concurrent use.
type Handler struct {
	provider Provider
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
	calc     *cost.Calculator

	mu    sync.Mutex
	stats Stats
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) HandlerOption {
	return func(h *Handler) { h.retry = cfg }
}

// WithLimiter throttles every attempt through l.
func WithLimiter(l *rate.Limiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// WithCalculator sets the pricing used by EstimatedCost.
func WithCalculator(c *cost.Calculator) HandlerOption {
	return func(h *Handler) { h.calc = c }
}

// NewHandler creates a Handler for p.
func NewHandler(p Provider, opts ...HandlerOption) *Handler {
	h := &Handler{
		provider: p,
		retry:    resilience.DefaultRetryConfig(),
		calc:     cost.NewCalculator(cost.DefaultRates()),
	}
	for _, o := range opts {
		o(h)
	}
	if h.retry.OnRetry == nil {
		h.retry.OnRetry = resilience.RetryLogger(p.Name(), p.Model())
	}
	return h
}

// NewHandlerFromConfig creates a Handler using the retry, rate limit and
// pricing sections of cfg.
func NewHandlerFromConfig(p Provider, cfg *config.Config) *Handler {
	opts := []HandlerOption{
		WithRetry(resilience.FromConfig(cfg.Retry)),
		WithCalculator(cost.FromConfig(cfg.Pricing)),
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)))
	}
	return NewHandler(p, opts...)
}

// Call sends c and returns the completion text. It never fails: after the
// last failed attempt, or when the model answers without content, it
// returns ErrorOutput. A response without content is not retried.
func (h *Handler) Call(ctx context.Context, c Call) string {
	maxAttempts := h.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = resilience.DefaultRetryConfig().MaxAttempts
	}

	out, err := resilience.DoVal(ctx, h.retry, func(ctx context.Context, attempt int) (string, error) {
		return h.attempt(ctx, c, attempt, maxAttempts)
	})
	if err != nil {
		h.mu.Lock()
		h.stats.FailedCalls++
		h.mu.Unlock()
		zap.L().Warn("llm: call failed",
			zap.String("provider", h.provider.Name()),
			zap.String("stage", c.Stage),
			zap.Any("meta", c.Meta),
			zap.Int("attempts", maxAttempts),
			zap.String("error_class", resilience.Classify(err)),
			zap.Error(err),
		)
		return ErrorOutput
	}
	return out
}

func (h *Handler) attempt(ctx context.Context, c Call, attempt, maxAttempts int) (string, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	h.mu.Lock()
	h.stats.Calls++
	callNo := h.stats.Calls
	h.mu.Unlock()

	log := zap.L().With(
		zap.String("provider", h.provider.Name()),
		zap.Int64("call_no", callNo),
		zap.String("stage", c.Stage),
	)
	log.Debug("llm: call start",
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", maxAttempts),
		zap.String("model", h.provider.Model()),
		zap.Int("max_tokens", c.MaxTokens),
		zap.Float64("temperature", c.Temperature),
		zap.Int("system_chars", len([]rune(c.System))),
		zap.Int("user_chars", len([]rune(c.User))),
	)

	start := time.Now()
	resp, err := h.provider.Chat(ctx, ChatRequest{
		System:           c.System,
		User:             c.User,
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		Stop:             c.Stop,
	})
	dt := time.Since(start).Seconds()
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.stats.WallSeconds += dt
	if resp.Usage != nil {
		h.stats.PromptTokens += resp.Usage.Prompt
		h.stats.CompletionTokens += resp.Usage.Completion
		h.stats.TotalTokens += resp.Usage.Total
	}
	h.mu.Unlock()

	out := ErrorOutput
	if resp.HasContent {
		out = resp.Text
	}

	// Full record with prompt and output; only the run log file keeps DEBUG.
	log.Debug("llm_call",
		zap.Int("attempt", attempt),
		zap.String("model", h.provider.Model()),
		zap.Any("meta", c.Meta),
		zap.Int("max_tokens", c.MaxTokens),
		zap.Float64("temperature", c.Temperature),
		zap.Float64("frequency_penalty", c.FrequencyPenalty),
		zap.Float64("presence_penalty", c.PresencePenalty),
		zap.Strings("stop", c.Stop),
		zap.Float64("duration_s", math.Round(dt*1e4)/1e4),
		zap.Any("tokens", resp.Usage),
		zap.Any("prompt", promptRecord{System: c.System, User: c.User}),
		zap.String("output", out),
	)
	return out, nil
}

type promptRecord struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Stats returns a snapshot of the counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// EstimatedCost prices the tokens used so far at the provider model's rate.
func (h *Handler) EstimatedCost() float64 {
	s := h.Stats()
	return h.calc.Chat(h.provider.Model(), s.PromptTokens, s.CompletionTokens)
}

// LogSummary writes the run totals at INFO.
func (h *Handler) LogSummary() {
	s := h.Stats()
	zap.L().Info("llm: run summary",
		zap.String("provider", h.provider.Name()),
		zap.String("model", h.provider.Model()),
		zap.Int64("calls", s.Calls),
		zap.Int64("failed_calls", s.FailedCalls),
		zap.Int64("prompt_tokens", s.PromptTokens),
		zap.Int64("completion_tokens", s.CompletionTokens),
		zap.Int64("total_tokens", s.TotalTokens),
		zap.Float64("wall_s", math.Round(s.WallSeconds*100)/100),
		zap.Float64("estimated_cost_usd", h.EstimatedCost()),
	)
}
