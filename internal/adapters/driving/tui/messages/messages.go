// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewIdeas lists quick ideas of the default knowledge base.
	ViewIdeas ViewType = iota
	// ViewSynthesis shows on-demand synthesis suggestions.
	ViewSynthesis
	// ViewHelp is the keybindings view.
	ViewHelp
)

// String returns the view name.
func (v ViewType) String() string {
	switch v {
	case ViewIdeas:
		return "ideas"
	case ViewSynthesis:
		return "synthesis"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// KBResolved carries the principal's default knowledge base.
type KBResolved struct {
	KB  *domain.KnowledgeBase
	Err error
}

// IdeasLoaded carries a page of quick ideas.
type IdeasLoaded struct {
	Seeds []domain.BuildIdeaSeed
	Err   error
}

// SynthesisCompleted carries the outcome of one synthesis run. Readiness is
// set when the thresholds were checked before calling the provider.
type SynthesisCompleted struct {
	Result    *domain.SynthesisResult
	Readiness *domain.Readiness
	Err       error
}

// ErrorOccurred reports an error to display.
type ErrorOccurred struct {
	Err error
}

// Quit is sent to exit the application.
type Quit struct{}
