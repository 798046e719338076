// Package status renders the bottom line of the TUI.
package status

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/styles"
)

// State is what the application is doing right now.
type State string

const (
	StateReady        State = "ready"
	StateLoading      State = "loading"
	StateSynthesizing State = "synthesizing"
	StateError        State = "error"
)

var busyLabels = map[State]string{
	StateLoading:      "Loading...",
	StateSynthesizing: "Synthesizing...",
}

// Bar shows the knowledge base and state on the left and key hints on the
// right.
type Bar struct {
	st       *styles.Styles
	state    State
	message  string
	kb       string
	count    int
	noun     string
	bindings []key.Binding
	width    int
}

// NewBar returns a bar in StateReady showing km's short help.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &Bar{
		st:       s,
		state:    StateReady,
		noun:     "items",
		bindings: km.ShortHelp(),
		width:    80,
	}
}

// View renders the bar at its width.
func (s *Bar) View() string {
	status, hints := s.status(), s.hints()
	gap := max(s.width-lipgloss.Width(status)-lipgloss.Width(hints), 1)
	return s.st.StatusBar.Width(s.width).Render(status + strings.Repeat(" ", gap) + hints)
}

func (s *Bar) status() string {
	var parts []string
	if s.kb != "" {
		parts = append(parts, s.st.Subtitle.Render(s.kb))
	}
	switch {
	case s.state == StateError && s.message != "":
		parts = append(parts, s.st.Error.Render("Error: "+s.message))
	case s.state == StateError:
		parts = append(parts, s.st.Error.Render("Error"))
	case busyLabels[s.state] != "":
		parts = append(parts, s.st.Muted.Render(busyLabels[s.state]))
	case s.count > 0:
		parts = append(parts, s.st.Normal.Render(strconv.Itoa(s.count)+" "+s.noun))
	default:
		parts = append(parts, s.st.Muted.Render("Ready"))
	}
	return strings.Join(parts, "  ")
}

func (s *Bar) hints() string {
	hints := make([]string, len(s.bindings))
	for i, b := range s.bindings {
		hints[i] = b.Help().Key + ": " + b.Help().Desc
	}
	return s.st.Muted.Render(strings.Join(hints, " | "))
}

// SetState sets the current state.
func (s *Bar) SetState(state State) { s.state = state }

// State returns the current state.
func (s *Bar) State() State { return s.state }

// SetMessage sets the text shown in StateError.
func (s *Bar) SetMessage(message string) { s.message = message }

// Message returns the error text.
func (s *Bar) Message() string { return s.message }

// SetKB sets the knowledge base label.
func (s *Bar) SetKB(kb string) { s.kb = kb }

// SetCount sets how many items the active view lists and what they are.
func (s *Bar) SetCount(count int, noun string) {
	s.count = count
	s.noun = noun
}

// Count returns the item count.
func (s *Bar) Count() int { return s.count }

// SetBindings replaces the key hints.
func (s *Bar) SetBindings(bindings []key.Binding) { s.bindings = bindings }

// SetWidth sets the rendered width.
func (s *Bar) SetWidth(width int) { s.width = width }

// Width returns the rendered width.
func (s *Bar) Width() int { return s.width }

// Clear returns to StateReady with no message or count. The knowledge base
// label stays.
func (s *Bar) Clear() {
	s.state = StateReady
	s.message = ""
	s.count = 0
}
