package services

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStorageBackend    = "storage.backend"
	keyStorageDataDir    = "storage.data_dir"
	keyLLMProvider       = "llm.provider"
	keyLLMModel          = "llm.model"
	keyLLMBaseURL        = "llm.base_url"
	keyLLMAPIKey         = "llm.api_key"
	keyLLMRate           = "llm.rate_per_second"
	keyPipelineWorkers   = "pipeline.workers"
	keyPipelineQueueSize = "pipeline.queue_size"
	keySynthesisMax      = "synthesis.max_suggestions"
	keySynthesisTimeout  = "synthesis.timeout"
	keySynthesisRetries  = "synthesis.max_retries"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	probe       driven.LLMProbe
}

// NewSettingsService creates a new settings service. A nil probe accepts
// any provider settings.
func NewSettingsService(configStore driven.ConfigStore, probe driven.LLMProbe) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		probe:       probe,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Storage: domain.StorageSettings{
			Backend: s.getBackend(defaults.Storage.Backend),
			DataDir: s.getString(keyStorageDataDir, ""),
		},
		LLM: domain.LLMSettings{
			Provider:      s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:         s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:       s.getString(keyLLMBaseURL, ""), // empty is valid for cloud providers
			APIKey:        s.getString(keyLLMAPIKey, ""),
			RatePerSecond: s.getFloat(keyLLMRate, defaults.LLM.RatePerSecond),
		},
		Pipeline: domain.PipelineSettings{
			Workers:   s.getInt(keyPipelineWorkers, defaults.Pipeline.Workers),
			QueueSize: s.getInt(keyPipelineQueueSize, defaults.Pipeline.QueueSize),
		},
		Synthesis: domain.SynthesisSettings{
			MaxSuggestions: s.getInt(keySynthesisMax, defaults.Synthesis.MaxSuggestions),
			Timeout:        s.getDuration(keySynthesisTimeout, defaults.Synthesis.Timeout),
			MaxRetries:     s.getInt(keySynthesisRetries, defaults.Synthesis.MaxRetries),
		},
	}

	return settings, nil
}

// storedSetting is one key and the value written for it.
type storedSetting struct {
	key   string
	value any
}

func llmEntries(llm domain.LLMSettings) []storedSetting {
	entries := []storedSetting{
		{keyLLMProvider, llm.Provider.String()},
		{keyLLMModel, llm.Model},
		{keyLLMBaseURL, llm.BaseURL},
		{keyLLMRate, llm.RatePerSecond},
	}
	// An empty key never overwrites a stored one.
	if llm.APIKey != "" {
		entries = append(entries, storedSetting{keyLLMAPIKey, llm.APIKey})
	}
	return entries
}

func (s *SettingsService) store(entries []storedSetting) error {
	for _, e := range entries {
		if err := s.configStore.Set(e.key, e.value); err != nil {
			return fmt.Errorf("save %s: %w", e.key, err)
		}
	}
	return nil
}

// Save persists every setting. An empty API key keeps the stored one.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	entries := []storedSetting{
		{keyStorageBackend, string(settings.Storage.Backend)},
		{keyStorageDataDir, settings.Storage.DataDir},
		{keyPipelineWorkers, settings.Pipeline.Workers},
		{keyPipelineQueueSize, settings.Pipeline.QueueSize},
		{keySynthesisMax, settings.Synthesis.MaxSuggestions},
		{keySynthesisTimeout, settings.Synthesis.Timeout.String()},
		{keySynthesisRetries, settings.Synthesis.MaxRetries},
	}
	return s.store(append(entries, llmEntries(settings.LLM)...))
}

// SetLLMProvider switches to provider. An empty model picks the provider's
// default. A local provider keeps a configured base URL; a hosted one drops
// it so the SDK default applies.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	switch {
	case !provider.IsValid():
		return fmt.Errorf("%w: LLM provider %q", domain.ErrInvalidInput, provider)
	case provider.RequiresAPIKey() && apiKey == "":
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	current, err := s.Get()
	if err != nil {
		return err
	}
	llm := domain.LLMSettings{
		Provider:      provider,
		Model:         cmp.Or(model, domain.DefaultLLMModels()[provider]),
		APIKey:        apiKey,
		RatePerSecond: current.LLM.RatePerSecond,
	}
	if provider.IsLocal() {
		llm.BaseURL = cmp.Or(current.LLM.BaseURL, provider.DefaultBaseURL())
	}
	return s.store(llmEntries(llm))
}

// SetStorageBackend selects the KB store implementation.
func (s *SettingsService) SetStorageBackend(backend domain.StorageBackend) error {
	if !backend.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", backend)
	}
	return s.configStore.Set(keyStorageBackend, string(backend))
}

// Validate checks the current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Storage.Backend.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", settings.Storage.Backend)
	}
	if settings.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", settings.Pipeline.Workers)
	}
	if m := settings.Synthesis.MaxSuggestions; m < 1 || m > domain.MaxSuggestionsLimit {
		return fmt.Errorf("synthesis.max_suggestions must be between 1 and %d, got %d",
			domain.MaxSuggestionsLimit, m)
	}
	if settings.LLM.Provider != "" && !settings.LLM.IsConfigured() {
		return fmt.Errorf("LLM provider %q is missing its API key", settings.LLM.Provider)
	}

	return nil
}

// Set stores one setting by its dotted key. Values are validated the same
// way Get would read them back, so a bad value fails here rather than being
// silently replaced by a default.
func (s *SettingsService) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case keyStorageBackend:
		if !domain.StorageBackend(value).IsValid() {
			return fmt.Errorf("%w: storage backend %q", domain.ErrInvalidInput, value)
		}
	case keyLLMProvider:
		if !domain.AIProvider(value).IsValid() {
			return fmt.Errorf("%w: LLM provider %q", domain.ErrInvalidInput, value)
		}
	case keyLLMRate:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		return s.configStore.Set(key, f)
	case keyPipelineWorkers, keyPipelineQueueSize, keySynthesisMax, keySynthesisRetries:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidInput, key)
		}
		return s.configStore.Set(key, n)
	case keySynthesisTimeout:
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("%w: %s must be a duration such as 90s", domain.ErrInvalidInput, key)
		}
	case keyStorageDataDir, keyLLMModel, keyLLMBaseURL, keyLLMAPIKey:
	default:
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	return s.configStore.Set(key, value)
}

// Keys returns the dotted setting keys accepted by Set.
func (s *SettingsService) Keys() []string {
	return []string{
		keyStorageBackend, keyStorageDataDir,
		keyLLMProvider, keyLLMModel, keyLLMBaseURL, keyLLMAPIKey, keyLLMRate,
		keyPipelineWorkers, keyPipelineQueueSize,
		keySynthesisMax, keySynthesisTimeout, keySynthesisRetries,
	}
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ProbeLLM checks the stored provider settings reach a working model.
func (s *SettingsService) ProbeLLM(ctx context.Context) error {
	if s.probe == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.probe.Probe(ctx, &settings.LLM)
}

// lookup returns the stored value for key converted by conv, or def when the
// key is absent or holds something conv rejects.
func lookup[T any](s *SettingsService, key string, def T, conv func(any) (T, bool)) T {
	raw, ok := s.configStore.Get(key)
	if !ok {
		return def
	}
	v, ok := conv(raw)
	if !ok {
		return def
	}
	return v
}

func (s *SettingsService) getString(key, defaultVal string) string {
	return lookup(s, key, defaultVal, stringValue)
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	return lookup(s, key, defaultVal, func(v any) (int, bool) {
		n, ok := intValue(v)
		return n, ok && n > 0
	})
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	return lookup(s, key, defaultVal, floatValue)
}

// getDuration accepts a Go duration string or a number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	return lookup(s, key, defaultVal, func(v any) (time.Duration, bool) {
		if str, ok := v.(string); ok {
			d, err := time.ParseDuration(strings.TrimSpace(str))
			return d, err == nil && d > 0
		}
		secs, ok := intValue(v)
		return time.Duration(secs) * time.Second, ok && secs > 0
	})
}

func (s *SettingsService) getBackend(defaultVal domain.StorageBackend) domain.StorageBackend {
	return lookup(s, keyStorageBackend, defaultVal, func(v any) (domain.StorageBackend, bool) {
		str, _ := stringValue(v)
		b := domain.StorageBackend(str)
		return b, b.IsValid()
	})
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	return lookup(s, key, defaultVal, func(v any) (domain.AIProvider, bool) {
		str, _ := stringValue(v)
		p := domain.AIProvider(str)
		return p, p.IsValid()
	})
}
