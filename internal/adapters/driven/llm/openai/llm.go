// Package openai adapts the chat completions API of OpenAI and compatible
// gateways through github.com/sashabaranov/go-openai.
package openai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/llm/llmhttp"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLMService)(nil)

const (
	vendor = "openai"

	DefaultLLMModel   = openai.GPT4oMini
	DefaultLLMTimeout = 120 * time.Second
)

// ErrTruncated is returned when a JSON completion stopped at the token limit.
var ErrTruncated = errors.New("openai: response truncated by max_tokens")

// Config configures the adapter. APIKey is required; the rest default.
type Config struct {
	APIKey string

	// BaseURL points at a compatible gateway instead of api.openai.com.
	BaseURL string

	Model   string
	Timeout time.Duration
}

// LLMService answers prompts with one chat completion each.
type LLMService struct {
	client *openai.Client
	model  string
}

// NewLLMService builds the SDK client for cfg.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	sdk := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdk.BaseURL = cfg.BaseURL
	}
	sdk.HTTPClient = &http.Client{Timeout: cmp.Or(cfg.Timeout, DefaultLLMTimeout)}

	return &LLMService{
		client: openai.NewClientWithConfig(sdk),
		model:  cmp.Or(cfg.Model, DefaultLLMModel),
	}, nil
}

func (s *LLMService) request(prompt string, opts driven.GenerateOptions) openai.ChatCompletionRequest {
	var msgs []openai.ChatCompletionMessage
	if opts.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stop:        opts.StopWords,
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

// Generate implements driven.LLMService.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := s.request(prompt, opts)
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: completion has no choices")
	}

	choice := resp.Choices[0]
	if opts.JSON && choice.FinishReason == openai.FinishReasonLength {
		return "", fmt.Errorf("%w (%d)", ErrTruncated, req.MaxTokens)
	}
	return choice.Message.Content, nil
}

// ModelName implements driven.LLMService.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without spending tokens.
func (s *LLMService) Ping(ctx context.Context) error {
	_, err := s.client.ListModels(ctx)
	if err != nil {
		return classify(err)
	}
	return nil
}

// Close implements driven.LLMService. The SDK client holds nothing to free.
func (s *LLMService) Close() error {
	return nil
}

// classify maps SDK errors carrying an HTTP status onto llmhttp.StatusError
// so callers see one retry contract for every vendor.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &llmhttp.StatusError{Vendor: vendor, Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &llmhttp.StatusError{Vendor: vendor, Status: reqErr.HTTPStatusCode, Message: strings.TrimSpace(string(reqErr.Body))}
	}
	return fmt.Errorf("%s: %w", vendor, err)
}
