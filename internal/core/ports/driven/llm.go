package driven

import "context"

// LLMService turns a prompt into text. Adapters exist for Ollama, OpenAI
// compatible APIs and Anthropic; the core only ever sees this contract.
type LLMService interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName is the model the adapter sends requests to.
	ModelName() string

	// Ping checks credentials and reachability without generating text
	// where the vendor allows it.
	Ping(ctx context.Context) error

	Close() error
}

// GenerateOptions tunes one Generate call. Zero values leave the vendor
// default in place.
type GenerateOptions struct {
	System      string
	MaxTokens   int
	Temperature float64
	StopWords   []string

	// JSON requests a single JSON object. Adapters use the vendor's JSON mode
	// or an instruction plus prefill, and fail on truncated output.
	JSON bool
}
