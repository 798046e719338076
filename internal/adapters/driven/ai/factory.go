// Package ai builds the LLM adapter selected by the settings and checks
// that it answers.
package ai

import (
	"context"
	"fmt"
	"time"

	anthropicllm "github.com/custodia-labs/kbsynth/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/kbsynth/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/kbsynth/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// pingTimeout bounds the connectivity check.
const pingTimeout = 5 * time.Second

type constructor func(s *domain.LLMSettings) (driven.LLMService, error)

var constructors = map[domain.AIProvider]constructor{
	domain.AIProviderOllama: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return ollamallm.NewLLMService(ollamallm.LLMConfig{BaseURL: s.BaseURL, Model: s.Model}), nil
	},
	domain.AIProviderOpenAI: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return openaillm.NewLLMService(openaillm.Config{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.Model})
	},
	domain.AIProviderAnthropic: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return anthropicllm.NewLLMService(anthropicllm.Config{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.Model})
	},
}

// CreateLLMService builds the adapter for settings without contacting it.
// A nil service and nil error mean no provider is configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	build, ok := constructors[settings.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
	return build(settings)
}

// CreateAndValidateLLMService builds the adapter and pings it. Failures are
// wrapped in domain.ErrLLMUnavailable so callers can fall back to running
// without an LLM.
func CreateAndValidateLLMService(ctx context.Context, settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'kbsynth config llm' to fix", domain.ErrLLMUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}
	if err := ping(ctx, svc); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: %s unreachable (%w)", domain.ErrLLMUnavailable, settings.Provider, err)
	}
	return svc, nil
}

func ping(ctx context.Context, svc driven.LLMService) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}
