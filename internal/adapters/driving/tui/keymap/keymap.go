// Package keymap holds the key bindings of the TUI.
package keymap

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap is the full set of bindings. Views read the ones they handle.
type KeyMap struct {
	Quit key.Binding
	Help key.Binding
	Back key.Binding
	Up   key.Binding
	Down key.Binding

	// Filter cycles the difficulty filter of the ideas list.
	Filter key.Binding

	// Refresh reloads ideas or reruns synthesis.
	Refresh key.Binding

	// Synthesize opens the synthesis view.
	Synthesize key.Binding
}

func bind(label, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(label, desc))
}

// DefaultKeyMap returns vim-style bindings with arrow key fallbacks.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit:       bind("q", "quit", "q", "ctrl+c"),
		Help:       bind("?", "help", "?"),
		Back:       bind("esc", "back", "esc"),
		Up:         bind("↑/k", "up", "up", "k"),
		Down:       bind("↓/j", "down", "down", "j"),
		Filter:     bind("tab", "difficulty", "tab"),
		Refresh:    bind("r", "refresh", "r"),
		Synthesize: bind("s", "synthesize", "s"),
	}
}

// ShortHelp is shown before a view has set its own hints.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Help}
}

// IdeasHelp returns the hints of the ideas view.
func (k *KeyMap) IdeasHelp() []key.Binding {
	return []key.Binding{k.Filter, k.Synthesize, k.Refresh, k.Quit}
}

// SynthesisHelp returns the hints of the synthesis view.
func (k *KeyMap) SynthesisHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Back, k.Quit}
}

// FullHelp groups every binding for the help screen: movement, actions,
// then application keys.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Filter},
		{k.Synthesize, k.Refresh, k.Back},
		{k.Help, k.Quit},
	}
}

// Matches reports whether the key string s triggers binding.
func Matches(s string, binding key.Binding) bool {
	return binding.Enabled() && slices.Contains(binding.Keys(), s)
}
