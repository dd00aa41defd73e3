package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 5000
)

// Config holds LLM client configuration.
type Config struct {
	Provider string        // "openai" (any OpenAI-compatible endpoint) or "anthropic"
	APIKey   string        // Required: API key for the provider
	BaseURL  string        // Optional: custom API endpoint
	Model    string        // Default model when a request does not name one
	Timeout  time.Duration // Optional: HTTP client timeout, zero keeps the SDK default
}

// Client sends a single user prompt and waits for the full completion.
// Implementations never retry; a failed call is returned to the caller as is.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Model() string
}

type Request struct {
	Prompt      string
	Model       string   // empty = client default
	Temperature *float64 // nil = DefaultTemperature
	MaxTokens   int      // 0 = DefaultMaxTokens
}

// Completion is the full model output plus the provider's usage counters.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// SystemTokens is the part of TotalTokens not explained by prompt and completion
// tokens (provider overhead, reasoning tokens). Never negative.
func (c *Completion) SystemTokens() int {
	extra := c.TotalTokens - c.PromptTokens - c.CompletionTokens
	if extra < 0 {
		return 0
	}
	return extra
}

// APIError is returned when the provider answers with a non-2xx status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// New creates a Client for cfg.Provider. Defaults to the OpenAI-compatible client.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func Temp(t float64) *float64 {
	return &t
}

func resolve(req Request, defaultModel string) (model string, temperature float64, maxTokens int) {
	model = req.Model
	if model == "" {
		model = defaultModel
	}
	temperature = DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens = req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	return model, temperature, maxTokens
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return http.DefaultClient
	}
	return &http.Client{Timeout: timeout}
}

// IsRetryable reports whether a failed call is worth re-running later, e.g. by
// requeueing the whole analysis. Rate limits, 5xx and network errors are.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			slog.WarnContext(ctx, "llm rate limited",
				"status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error",
				"status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode,
				"provider", apiErr.Provider)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error", "error", err)
	return true
}
