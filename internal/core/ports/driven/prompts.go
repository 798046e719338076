package driven

// PromptStore resolves prompt templates by name. Templates are fmt format
// strings; each name below lists the verbs its template must carry, in order.
type PromptStore interface {
	// Load returns the template for name, or an error for a name no
	// builtin exists for.
	Load(name string) (string, error)

	// Reload drops cached templates so edits on disk apply.
	Reload()
}

const (
	// PromptSummarise condenses one document: %d max characters, %s content.
	PromptSummarise = "summarise"

	// PromptIdeaSeeds asks for quick ideas from a summary: %d min, %d max,
	// %s summary.
	PromptIdeaSeeds = "idea_seeds"

	// PromptSynthesis asks for cross-document suggestions: %d count,
	// %s knowledge summary.
	PromptSynthesis = "synthesis"
)
