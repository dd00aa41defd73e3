package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	"appideas.app/engine/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Completion", func() {
	DescribeTable("SystemTokens",
		func(prompt, completion, total, expected int) {
			c := &llm.Completion{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
			Expect(c.SystemTokens()).To(Equal(expected))
		},
		Entry("no overhead", 100, 50, 150, 0),
		Entry("reasoning overhead", 100, 50, 180, 30),
		Entry("clamped when provider under-reports total", 100, 50, 120, 0),
	)
})

var _ = Describe("New", func() {
	It("requires an API key", func() {
		_, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "cohere", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("defaults to the OpenAI-compatible client", func() {
		client, err := llm.New(llm.Config{APIKey: "k", Model: "gpt-4o-mini"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-4o-mini"))
	})
})

var _ = Describe("OpenAI client", func() {
	var (
		server   *httptest.Server
		hits     atomic.Int32
		lastBody map[string]any
		lastPath string
		handler  http.HandlerFunc
		client   llm.Client
	)

	BeforeEach(func() {
		hits.Store(0)
		lastBody = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			lastPath = r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &lastBody)
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		var err error
		client, err = llm.New(llm.Config{
			Provider: llm.ProviderOpenAI,
			APIKey:   "test-key",
			BaseURL:  server.URL + "/v1/",
			Model:    "test-model",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("sends a single user message with default sampling parameters", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
				"choices": [{"index": 0, "finish_reason": "stop",
					"message": {"role": "assistant", "content": "### What users like\n• fast"}}],
				"usage": {"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 175}
			}`)
		}

		resp, err := client.Complete(context.Background(), llm.Request{Prompt: "analyze these reviews"})

		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Content).To(ContainSubstring("fast"))
		Expect(resp.PromptTokens).To(Equal(120))
		Expect(resp.CompletionTokens).To(Equal(40))
		Expect(resp.TotalTokens).To(Equal(175))
		Expect(resp.SystemTokens()).To(Equal(15))
		Expect(lastPath).To(HaveSuffix("/chat/completions"))

		Expect(lastBody["model"]).To(Equal("test-model"))
		Expect(lastBody["temperature"]).To(BeNumerically("~", 0.2))
		Expect(lastBody["max_tokens"]).To(BeNumerically("==", 5000))
		messages, ok := lastBody["messages"].([]any)
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(1))
		Expect(messages[0]).To(HaveKeyWithValue("role", "user"))
	})

	It("honors per-request model and limits", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"other",
				"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}],
				"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
		}

		_, err := client.Complete(context.Background(), llm.Request{
			Prompt:      "p",
			Model:       "other",
			Temperature: llm.Temp(0.7),
			MaxTokens:   800,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(lastBody["model"]).To(Equal("other"))
		Expect(lastBody["temperature"]).To(BeNumerically("~", 0.7))
		Expect(lastBody["max_tokens"]).To(BeNumerically("==", 800))
	})

	It("surfaces status code and provider body on non-2xx without retrying", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"model overloaded","type":"server_error","code":"overloaded"}}`)
		}

		_, err := client.Complete(context.Background(), llm.Request{Prompt: "p"})

		Expect(err).To(HaveOccurred())
		var apiErr *llm.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
		Expect(apiErr.Body).To(ContainSubstring("model overloaded"))
		Expect(hits.Load()).To(Equal(int32(1)))
	})
})

var _ = Describe("Anthropic client", func() {
	It("concatenates text blocks and reports usage", func() {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
				"content":[{"type":"text","text":"part one, "},{"type":"text","text":"part two"}],
				"stop_reason":"end_turn","stop_sequence":null,
				"usage":{"input_tokens":30,"output_tokens":12}}`)
		}))
		DeferCleanup(server.Close)

		client, err := llm.New(llm.Config{
			Provider: llm.ProviderAnthropic,
			APIKey:   "test-key",
			BaseURL:  server.URL + "/",
			Model:    "claude-test",
		})
		Expect(err).NotTo(HaveOccurred())

		resp, err := client.Complete(context.Background(), llm.Request{Prompt: "p"})

		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(resp.Content)).To(Equal("part one, part two"))
		Expect(resp.PromptTokens).To(Equal(30))
		Expect(resp.CompletionTokens).To(Equal(12))
		Expect(resp.SystemTokens()).To(Equal(0))
		Expect(path).To(HaveSuffix("/v1/messages"))
	})
})

var _ = Describe("IsRetryable", func() {
	ctx := context.Background()

	DescribeTable("classifies errors",
		func(err error, expected bool) {
			Expect(llm.IsRetryable(ctx, err)).To(Equal(expected))
		},
		Entry("nil", nil, false),
		Entry("cancelled", context.Canceled, false),
		Entry("deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false),
		Entry("rate limited", &llm.APIError{StatusCode: 429}, true),
		Entry("server error", fmt.Errorf("openai chat: %w", &llm.APIError{StatusCode: 502}), true),
		Entry("bad request", &llm.APIError{StatusCode: 400}, false),
		Entry("network", errors.New("connection reset by peer"), true),
	)
})
