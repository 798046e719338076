package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider names the service that answers LLM prompts.
type AIProvider string

// Supported providers. OpenAI also covers compatible gateways via BaseURL.
const (
	AIProviderOllama    AIProvider = "ollama"
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
)

type providerInfo struct {
	label        string
	defaultModel string
	// localURL is where a local provider listens unless configured.
	localURL string
	hosted   bool
}

// providerOrder is the order providers are offered in.
var providerOrder = []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic}

var providerCatalog = map[AIProvider]providerInfo{
	AIProviderOllama:    {label: "Ollama (local)", defaultModel: "llama3.2", localURL: "http://localhost:11434"},
	AIProviderOpenAI:    {label: "OpenAI (cloud)", defaultModel: "gpt-4o-mini", hosted: true},
	AIProviderAnthropic: {label: "Anthropic (cloud)", defaultModel: "claude-3-5-sonnet-latest", hosted: true},
}

// IsValid reports whether p is a supported provider.
func (p AIProvider) IsValid() bool {
	_, ok := providerCatalog[p]
	return ok
}

// RequiresAPIKey reports whether p is a hosted API that authenticates by key.
func (p AIProvider) RequiresAPIKey() bool {
	return providerCatalog[p].hosted
}

// IsLocal reports whether p runs on the user's machine.
func (p AIProvider) IsLocal() bool {
	return p.IsValid() && !providerCatalog[p].hosted
}

// DefaultBaseURL is the endpoint of a local provider. Hosted providers
// return "" and use their SDK default.
func (p AIProvider) DefaultBaseURL() string {
	return providerCatalog[p].localURL
}

func (p AIProvider) String() string {
	return string(p)
}

// Description is the label shown when choosing a provider.
func (p AIProvider) Description() string {
	if info, ok := providerCatalog[p]; ok {
		return info.label
	}
	return unknownDescription
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible gateways).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// RatePerSecond throttles background LLM calls. Zero disables throttling.
	RatePerSecond float64
}

// IsConfigured reports whether the settings name a provider and carry the
// key it needs.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// StorageBackend selects the KB store implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	return b == StorageSQLite || b == StorageMemory
}

// StorageSettings configures persistence.
type StorageSettings struct {
	Backend StorageBackend

	// DataDir holds the database. Empty means ~/.kbsynth/data.
	DataDir string
}

// PipelineSettings configures the ingestion worker pool.
type PipelineSettings struct {
	// Workers is the number of concurrent pipeline workers.
	Workers int

	// QueueSize bounds the pending job queue.
	QueueSize int
}

// SynthesisSettings configures the on-demand synthesis track.
type SynthesisSettings struct {
	// MaxSuggestions is the default number of suggestions returned.
	MaxSuggestions int

	// Timeout bounds one synthesis request, including retries.
	Timeout time.Duration

	// MaxRetries bounds provider retries for one request.
	MaxRetries int
}

// AppSettings is the full configuration, grouped the way config.toml is.
type AppSettings struct {
	Storage   StorageSettings
	LLM       LLMSettings
	Pipeline  PipelineSettings
	Synthesis SynthesisSettings
}

// DefaultAppSettings returns the settings used for every key the config file
// leaves out. No LLM is configured, so LLM features report ErrLLMUnavailable
// until one is.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		LLM: LLMSettings{
			RatePerSecond: 2,
		},
		Pipeline: PipelineSettings{
			Workers:   4,
			QueueSize: 256,
		},
		Synthesis: SynthesisSettings{
			MaxSuggestions: DefaultMaxSuggestions,
			Timeout:        90 * time.Second,
			MaxRetries:     3,
		},
	}
}

// AllLLMProviders returns the supported providers in menu order.
func AllLLMProviders() []AIProvider {
	return append([]AIProvider(nil), providerOrder...)
}

// DefaultLLMModels maps each provider to the model used when none is given.
func DefaultLLMModels() map[AIProvider]string {
	models := make(map[AIProvider]string, len(providerCatalog))
	for p, info := range providerCatalog {
		models[p] = info.defaultModel
	}
	return models
}
