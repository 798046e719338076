package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAppSettings(), *settings)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("storage.backend", "memory")
	_ = store.Set("llm.provider", "openai")
	_ = store.Set("llm.model", "gpt-4o")
	_ = store.Set("llm.rate_per_second", 0.5)
	_ = store.Set("pipeline.workers", 8)
	_ = store.Set("synthesis.timeout", "2m")
	_ = store.Set("synthesis.max_retries", 5)

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	assert.Equal(t, domain.StorageMemory, settings.Storage.Backend)
	assert.Equal(t, domain.AIProviderOpenAI, settings.LLM.Provider)
	assert.Equal(t, "gpt-4o", settings.LLM.Model)
	assert.InDelta(t, 0.5, settings.LLM.RatePerSecond, 1e-9)
	assert.Equal(t, 8, settings.Pipeline.Workers)
	assert.Equal(t, 2*time.Minute, settings.Synthesis.Timeout)
	assert.Equal(t, 5, settings.Synthesis.MaxRetries)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("storage.backend", "mongo")
	_ = store.Set("llm.provider", "invalid_provider")
	_ = store.Set("synthesis.timeout", "soon")

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Storage.Backend, settings.Storage.Backend)
	assert.Equal(t, defaults.LLM.Provider, settings.LLM.Provider)
	assert.Equal(t, defaults.Synthesis.Timeout, settings.Synthesis.Timeout)
}

func TestSettingsService_Get_TimeoutInSeconds(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("synthesis.timeout", 30)

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, settings.Synthesis.Timeout)
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)
	settings := domain.DefaultAppSettings()
	settings.LLM = domain.LLMSettings{
		Provider:      domain.AIProviderAnthropic,
		Model:         "claude-3-5-sonnet-latest",
		APIKey:        "sk-ant-test",
		RatePerSecond: 1,
	}
	settings.Synthesis.Timeout = 45 * time.Second

	require.NoError(t, service.Save(&settings))

	retrieved, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, settings, *retrieved)
}

func TestSettingsService_Save_EmptyAPIKeyKeepsStored(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("llm.api_key", "sk-existing")
	service := NewSettingsService(store, nil)

	settings := domain.DefaultAppSettings()
	require.NoError(t, service.Save(&settings))

	assert.Equal(t, "sk-existing", configValue(t, store, "llm.api_key"))
}

func TestSettingsService_SetLLMProvider(t *testing.T) {
	tests := []struct {
		name        string
		provider    domain.AIProvider
		model       string
		apiKey      string
		wantModel   string
		wantBaseURL string
		wantErr     bool
	}{
		{"ollama default model", domain.AIProviderOllama, "", "", "llama3.2", "http://localhost:11434", false},
		{"openai explicit model", domain.AIProviderOpenAI, "gpt-4o", "sk-test", "gpt-4o", "", false},
		{"anthropic default model", domain.AIProviderAnthropic, "", "sk-ant", "claude-3-5-sonnet-latest", "", false},
		{"openai missing key", domain.AIProviderOpenAI, "", "", "", "", true},
		{"unknown provider", domain.AIProvider("mystery"), "", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewSettingsService(memory.NewConfigStore(), nil)

			err := service.SetLLMProvider(tt.provider, tt.model, tt.apiKey)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			settings, _ := service.Get()
			assert.Equal(t, tt.provider, settings.LLM.Provider)
			assert.Equal(t, tt.wantModel, settings.LLM.Model)
			assert.Equal(t, tt.wantBaseURL, settings.LLM.BaseURL)
		})
	}
}

func TestSettingsService_SetStorageBackend(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	require.NoError(t, service.SetStorageBackend(domain.StorageMemory))
	settings, _ := service.Get()
	assert.Equal(t, domain.StorageMemory, settings.Storage.Backend)

	assert.Error(t, service.SetStorageBackend("postgres"))
}

func TestSettingsService_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, NewSettingsService(memory.NewConfigStore(), nil).Validate())
	})

	t.Run("max suggestions out of range", func(t *testing.T) {
		store := memory.NewConfigStore()
		_ = store.Set("synthesis.max_suggestions", 11)
		assert.Error(t, NewSettingsService(store, nil).Validate())
	})

	t.Run("cloud provider without key", func(t *testing.T) {
		store := memory.NewConfigStore()
		_ = store.Set("llm.provider", "openai")
		assert.Error(t, NewSettingsService(store, nil).Validate())
	})
}

type stubProbe struct {
	got *domain.LLMSettings
	err error
}

func (p *stubProbe) Probe(_ context.Context, cfg *domain.LLMSettings) error {
	p.got = cfg
	return p.err
}

func TestSettingsService_ProbeLLM(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("llm.provider", "ollama")
	probe := &stubProbe{err: errors.New("connection refused")}
	service := NewSettingsService(store, probe)

	err := service.ProbeLLM(context.Background())

	require.Error(t, err)
	require.NotNil(t, probe.got)
	assert.Equal(t, domain.AIProviderOllama, probe.got.Provider)

	assert.NoError(t, NewSettingsService(store, nil).ProbeLLM(context.Background()))
}

func TestSettingsService_Set(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
	}{
		{name: "workers", key: "pipeline.workers", value: "8"},
		{name: "workers zero", key: "pipeline.workers", value: "0", wantErr: true},
		{name: "workers not a number", key: "pipeline.workers", value: "many", wantErr: true},
		{name: "rate", key: "llm.rate_per_second", value: "0.5"},
		{name: "negative rate", key: "llm.rate_per_second", value: "-1", wantErr: true},
		{name: "timeout", key: "synthesis.timeout", value: "2m"},
		{name: "bad timeout", key: "synthesis.timeout", value: "soon", wantErr: true},
		{name: "backend", key: "storage.backend", value: "memory"},
		{name: "bad backend", key: "storage.backend", value: "postgres", wantErr: true},
		{name: "provider", key: "llm.provider", value: "anthropic"},
		{name: "bad provider", key: "llm.provider", value: "mystery", wantErr: true},
		{name: "free text", key: "llm.model", value: "llama3.1"},
		{name: "unknown key", key: "search.mode", value: "hybrid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewSettingsService(memory.NewConfigStore(), nil)

			err := service.Set(tt.key, tt.value)

			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSettingsService_Set_ReadBack(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	require.NoError(t, service.Set("pipeline.workers", "8"))
	require.NoError(t, service.Set("llm.rate_per_second", "0.25"))
	require.NoError(t, service.Set("synthesis.timeout", "45s"))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, 8, settings.Pipeline.Workers)
	assert.InDelta(t, 0.25, settings.LLM.RatePerSecond, 1e-9)
	assert.Equal(t, 45*time.Second, settings.Synthesis.Timeout)
}

func TestSettingsService_Keys_AllAccepted(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	for _, key := range service.Keys() {
		err := service.Set(key, "")
		assert.NotContains(t, fmt.Sprint(err), "unknown setting", key)
	}
}

func TestSettingsService_Get_CoercesDecodedTypes(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("pipeline.workers", int64(6))
	_ = store.Set("pipeline.queue_size", "32")
	_ = store.Set("llm.rate_per_second", int64(2))
	_ = store.Set("synthesis.max_suggestions", 3.0)
	_ = store.Set("synthesis.timeout", int64(30))
	_ = store.Set("synthesis.max_retries", 1.5)
	_ = store.Set("llm.model", "  ")
	service := NewSettingsService(store, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, 6, settings.Pipeline.Workers)
	assert.Equal(t, 32, settings.Pipeline.QueueSize)
	assert.InDelta(t, 2.0, settings.LLM.RatePerSecond, 1e-9)
	assert.Equal(t, 3, settings.Synthesis.MaxSuggestions)
	assert.Equal(t, 30*time.Second, settings.Synthesis.Timeout)
	assert.Equal(t, defaults.Synthesis.MaxRetries, settings.Synthesis.MaxRetries, "fractional count falls back")
	assert.Equal(t, defaults.LLM.Model, settings.LLM.Model, "blank string falls back")
}

func TestSettingsService_SetLLMProvider_KeepsLocalBaseURL(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("llm.base_url", "http://gpu-box:11434")
	_ = store.Set("llm.rate_per_second", 0.5)
	service := NewSettingsService(store, nil)

	require.NoError(t, service.SetLLMProvider(domain.AIProviderOllama, "phi3", ""))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", settings.LLM.BaseURL)
	assert.InDelta(t, 0.5, settings.LLM.RatePerSecond, 1e-9)
	assert.Equal(t, domain.DefaultAppSettings().Pipeline, settings.Pipeline)

	require.NoError(t, service.SetLLMProvider(domain.AIProviderOpenAI, "", "sk-test"))
	settings, err = service.Get()
	require.NoError(t, err)
	assert.Empty(t, settings.LLM.BaseURL)
	assert.Equal(t, "gpt-4o-mini", settings.LLM.Model)
}

func TestSettingsService_SetLLMProvider_RejectsAsInvalidInput(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	assert.ErrorIs(t, service.SetLLMProvider("mystery", "", ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, service.SetLLMProvider(domain.AIProviderAnthropic, "", ""), domain.ErrInvalidInput)
}
