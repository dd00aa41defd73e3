package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client anthropic.Client
	model  string
}

// newAnthropicClient creates a Client using the Anthropic Messages API.
func newAnthropicClient(cfg Config) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient(cfg.Timeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	model, temperature, maxTokens := resolve(req, c.model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(temperature),
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			body := apiErr.RawJSON()
			if body == "" {
				body = apiErr.Error()
			}
			return nil, fmt.Errorf("anthropic messages: %w", &APIError{
				Provider:   ProviderAnthropic,
				StatusCode: apiErr.StatusCode,
				Body:       body,
			})
		}
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	slog.DebugContext(ctx, "llm completion finished",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	input := int(resp.Usage.InputTokens)
	output := int(resp.Usage.OutputTokens)

	// Anthropic reports no separate total; there is no unexplained overhead.
	return &Completion{
		Content:          content.String(),
		Model:            model,
		PromptTokens:     input,
		CompletionTokens: output,
		TotalTokens:      input + output,
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}
