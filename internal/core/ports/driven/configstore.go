package driven

// ConfigStore holds raw configuration values under dotted keys such as
// "llm.provider". Stores keep whatever scalar they were given or decoded;
// the settings service owns type coercion and defaults.
type ConfigStore interface {
	// Get returns the raw value stored under key.
	Get(key string) (any, bool)

	// Set stores value under key and persists it before returning.
	Set(key string, value any) error

	// Path describes where values are persisted.
	Path() string
}
