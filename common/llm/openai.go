package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiClient struct {
	client openai.Client
	model  string
}

// newOpenAIClient creates a Client for any OpenAI-compatible chat-completions endpoint.
func newOpenAIClient(cfg Config) Client {
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
		model = "gpt-4o-mini"
	}

	return &openaiClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *openaiClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	model, temperature, maxTokens := resolve(req, c.model)

	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			body := apiErr.RawJSON()
			if body == "" {
				body = apiErr.Error()
			}
			return nil, fmt.Errorf("openai chat: %w", &APIError{
				Provider:   ProviderOpenAI,
				StatusCode: apiErr.StatusCode,
				Body:       body,
			})
		}
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	slog.DebugContext(ctx, "llm completion finished",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}
