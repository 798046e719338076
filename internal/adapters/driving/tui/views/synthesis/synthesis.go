// Package synthesis provides the on-demand synthesis view for the TUI.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
)

// View runs a synthesis request and shows its suggestions. Readiness is
// checked first so an unready corpus never reaches the provider.
type View struct {
	ctx            context.Context
	styles         *styles.Styles
	keymap         *keymap.KeyMap
	service        driving.SynthesisService
	principal      string
	maxSuggestions int
	spinner        spinner.Model

	running   bool
	result    *domain.SynthesisResult
	readiness *domain.Readiness
	err       error
	selected  int

	width  int
	height int
}

// NewView creates a new synthesis view acting as principal.
func NewView(s *styles.Styles, km *keymap.KeyMap, service driving.SynthesisService, principal string) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.Subtitle

	return &View{
		ctx:            context.Background(),
		styles:         s,
		keymap:         km,
		service:        service,
		principal:      principal,
		maxSuggestions: domain.DefaultMaxSuggestions,
		spinner:        sp,
		width:          80,
		height:         24,
	}
}

// SetContext sets the context used for service calls.
func (v *View) SetContext(ctx context.Context) {
	v.ctx = ctx
}

// SetMaxSuggestions sets how many suggestions to request.
func (v *View) SetMaxSuggestions(n int) {
	v.maxSuggestions = n
}

// Start runs a synthesis request unless one is already running.
func (v *View) Start() tea.Cmd {
	if v.running || v.service == nil {
		return nil
	}
	v.running = true
	v.err = nil
	v.selected = 0

	ctx, service := v.ctx, v.service
	req := domain.SynthesisRequest{Principal: v.principal, MaxSuggestions: v.maxSuggestions}
	run := func() tea.Msg {
		readiness, err := service.Readiness(ctx, req.Principal)
		if err != nil {
			return messages.SynthesisCompleted{Err: err}
		}
		if err := readiness.Err(); err != nil {
			return messages.SynthesisCompleted{Readiness: readiness, Err: err}
		}
		result, err := service.Synthesize(ctx, req)
		return messages.SynthesisCompleted{Result: result, Readiness: readiness, Err: err}
	}
	return tea.Batch(v.spinner.Tick, run)
}

// Update handles messages for the synthesis view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case spinner.TickMsg:
		if !v.running {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case messages.SynthesisCompleted:
		v.running = false
		v.readiness = msg.Readiness
		v.err = msg.Err
		if msg.Err == nil {
			v.result = msg.Result
		}
		return v, nil

	case tea.KeyMsg:
		key := msg.String()
		switch {
		case keymap.Matches(key, v.keymap.Up):
			if v.selected > 0 {
				v.selected--
			}
		case keymap.Matches(key, v.keymap.Down):
			if v.selected < len(v.Suggestions())-1 {
				v.selected++
			}
		case keymap.Matches(key, v.keymap.Refresh):
			return v, v.Start()
		case keymap.Matches(key, v.keymap.Back):
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewIdeas}
			}
		}
	}
	return v, nil
}

// View renders the suggestions or the reason there are none.
func (v *View) View() string {
	var b strings.Builder
	b.WriteString(v.styles.Title.Render("Synthesis"))
	b.WriteString("\n\n")

	if v.running {
		b.WriteString(v.spinner.View())
		b.WriteString(" ")
		b.WriteString(v.styles.Muted.Render("Synthesizing suggestions from your knowledge base..."))
		b.WriteString("\n")
		return b.String()
	}

	if v.err != nil {
		b.WriteString(v.renderError())
		return b.String()
	}

	suggestions := v.Suggestions()
	if v.result == nil {
		b.WriteString(v.styles.Muted.Render("Press r to synthesize."))
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s\n\n", v.styles.Muted.Render(fmt.Sprintf(
		"%d of %d candidates kept", len(suggestions), v.result.CandidatesReceived)))
	for i, s := range suggestions {
		title := v.styles.Normal.Render(s.Title)
		cursor := "  "
		if i == v.selected {
			cursor = "> "
			title = v.styles.Selected.Render(s.Title)
		}
		fmt.Fprintf(&b, "%s%d. %s %s\n", cursor, i+1, title, v.styles.Coverage(s.Coverage))
		if i != v.selected {
			continue
		}
		if s.Description != "" {
			fmt.Fprintf(&b, "     %s\n", s.Description)
		}
		if len(s.ConceptsUsed) > 0 {
			fmt.Fprintf(&b, "     %s\n", v.styles.Muted.Render("Concepts: "+strings.Join(s.ConceptsUsed, ", ")))
		}
		if len(s.ClusterNames) > 0 {
			fmt.Fprintf(&b, "     %s\n", v.styles.Muted.Render("Clusters: "+strings.Join(s.ClusterNames, ", ")))
		}
	}
	return b.String()
}

func (v *View) renderError() string {
	var b strings.Builder
	var insufficient *domain.InsufficientKnowledgeError
	switch {
	case errors.As(v.err, &insufficient):
		b.WriteString(v.styles.Warning.Render("Not ready yet. Ingest more documents and try again."))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "  Documents: %d/%d\n", insufficient.Documents, insufficient.MinDocuments)
		fmt.Fprintf(&b, "  Concepts:  %d/%d\n", insufficient.Concepts, insufficient.MinConcepts)
		fmt.Fprintf(&b, "  Clusters:  %d/%d\n", insufficient.Clusters, insufficient.MinClusters)
	case errors.Is(v.err, domain.ErrLLMUnavailable):
		b.WriteString(v.styles.Error.Render("No LLM provider is configured. Run 'kbsynth config llm'."))
		b.WriteString("\n")
	case errors.Is(v.err, domain.ErrQualityFilterEmpty):
		b.WriteString(v.styles.Warning.Render("No suggestion passed the quality filter. Press r to try again."))
		b.WriteString("\n")
	default:
		b.WriteString(v.styles.Error.Render(v.err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
}

// Running reports whether a request is in flight.
func (v *View) Running() bool {
	return v.running
}

// Result returns the last successful result.
func (v *View) Result() *domain.SynthesisResult {
	return v.result
}

// Suggestions returns the suggestions of the last successful result.
func (v *View) Suggestions() []domain.Suggestion {
	if v.result == nil {
		return nil
	}
	return v.result.Suggestions
}

// Readiness returns the readiness of the last run.
func (v *View) Readiness() *domain.Readiness {
	return v.readiness
}

// Err returns the error of the last run.
func (v *View) Err() error {
	return v.err
}

// Selected returns the selected suggestion index.
func (v *View) Selected() int {
	return v.selected
}
