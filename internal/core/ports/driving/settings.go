package driving

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// SetLLMProvider configures the LLM provider.
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// SetStorageBackend selects the KB store implementation.
	SetStorageBackend(backend domain.StorageBackend) error

	// Set stores one setting by its dotted key, such as "pipeline.workers".
	Set(key, value string) error

	// Keys returns the dotted setting keys accepted by Set.
	Keys() []string

	// Validate checks the current settings are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// ProbeLLM checks the stored provider settings reach a working model.
	ProbeLLM(ctx context.Context) error
}
