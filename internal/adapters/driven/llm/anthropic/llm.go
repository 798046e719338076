// Package anthropic provides an LLM service adapter for the Anthropic
// messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/llm/llmhttp"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLMService)(nil)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	apiVersion = "2023-06-01"

	// The messages API has no JSON mode. An instruction plus an assistant
	// turn that already opens the object is the documented substitute.
	jsonInstruction = "Respond with a single JSON object only. Do not wrap it in prose or code fences."
	jsonPrefill     = "{"
)

// ErrTruncated is returned when a JSON response hit max_tokens.
var ErrTruncated = errors.New("anthropic: response truncated by max_tokens")

// Config configures the adapter. APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService generates text through POST /v1/messages.
type LLMService struct {
	api   *llmhttp.Client
	model string
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model         string   `json:"model"`
	Messages      []turn   `json:"messages"`
	MaxTokens     int      `json:"max_tokens"`
	System        string   `json:"system,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewLLMService creates an Anthropic adapter. No request is made.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	header := http.Header{}
	header.Set("x-api-key", cfg.APIKey)
	header.Set("anthropic-version", apiVersion)
	return &LLMService{
		api:   llmhttp.New("anthropic", cfg.BaseURL, header, &http.Client{Timeout: cfg.Timeout}),
		model: cfg.Model,
	}, nil
}

// Generate sends prompt as a single user turn and joins the text blocks of
// the reply.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := messagesRequest{
		Model:         s.model,
		Messages:      []turn{{Role: "user", Content: prompt}},
		MaxTokens:     opts.MaxTokens,
		System:        opts.System,
		Temperature:   opts.Temperature,
		StopSequences: opts.StopWords,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if opts.JSON {
		req.System = strings.TrimSpace(req.System + "\n" + jsonInstruction)
		req.Messages = append(req.Messages, turn{Role: "assistant", Content: jsonPrefill})
	}

	var resp messagesResponse
	if err := s.api.Do(ctx, http.MethodPost, "/v1/messages", req, &resp); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("anthropic: no text content returned")
	}
	if !opts.JSON {
		return text.String(), nil
	}
	if resp.StopReason == "max_tokens" {
		return "", fmt.Errorf("%w (%d)", ErrTruncated, req.MaxTokens)
	}
	return jsonPrefill + text.String(), nil
}

// ModelName returns the configured model.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.api.Do(ctx, http.MethodGet, "/v1/models", nil, nil)
}

// Close is a no-op.
func (s *LLMService) Close() error {
	return nil
}
