// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration in ~/.kbsynth/config.toml
//   - PromptStore: user-editable prompt templates in ~/.kbsynth/prompts
package file
