package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/views/ideas"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/views/synthesis"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// Config holds per-session settings.
type Config struct {
	// Principal is the owner every request acts as.
	Principal string

	// MaxSuggestions is passed to synthesis. Zero uses the default.
	MaxSuggestions int
}

// App is the main TUI application following the Elm architecture.
type App struct {
	ports     *Ports
	principal string
	ctx       context.Context

	styles *styles.Styles
	keymap *keymap.KeyMap

	ideasView     *ideas.View
	synthesisView *synthesis.View
	statusBar     *status.Bar

	currentView  messages.ViewType
	previousView messages.ViewType
	kb           *domain.KnowledgeBase
	err          error

	width  int
	height int
	ready  bool
}

var _ tea.Model = (*App)(nil)

// NewApp creates a new TUI application.
func NewApp(ports *Ports, cfg Config) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	principal := strings.TrimSpace(cfg.Principal)
	if principal == "" {
		return nil, fmt.Errorf("creating app: %w", ErrMissingPrincipal)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()
	synthView := synthesis.NewView(s, km, ports.Synthesis, principal)
	if cfg.MaxSuggestions > 0 {
		synthView.SetMaxSuggestions(cfg.MaxSuggestions)
	}
	bar := status.NewBar(s, km)
	bar.SetBindings(km.IdeasHelp())

	return &App{
		ports:         ports,
		principal:     principal,
		ctx:           context.Background(),
		styles:        s,
		keymap:        km,
		ideasView:     ideas.NewView(s, km, ports.IdeaSeeds),
		synthesisView: synthView,
		statusBar:     bar,
		currentView:   messages.ViewIdeas,
	}, nil
}

// WithContext sets the context for service calls.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.ideasView.SetContext(ctx)
	a.synthesisView.SetContext(ctx)
	return a
}

// Init resolves the default knowledge base.
func (a *App) Init() tea.Cmd {
	a.statusBar.SetState(status.StateLoading)
	return tea.Batch(
		tea.SetWindowTitle("kbsynth"),
		a.resolveKB(),
	)
}

func (a *App) resolveKB() tea.Cmd {
	ctx, svc, principal := a.ctx, a.ports.KnowledgeBases, a.principal
	return func() tea.Msg {
		kb, err := svc.Default(ctx, principal)
		return messages.KBResolved{KB: kb, Err: err}
	}
}

// Update handles messages and updates the model state.
//
//nolint:gocyclo // central message handler
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case messages.KBResolved:
		if msg.Err != nil {
			if errors.Is(msg.Err, domain.ErrNotFound) {
				a.setError(errors.New("no default knowledge base: run 'kbsynth kb create'"))
			} else {
				a.setError(msg.Err)
			}
			return a, nil
		}
		a.kb = msg.KB
		a.statusBar.SetKB(string(msg.KB.ID))
		return a, a.ideasView.SetKB(msg.KB.ID)

	case messages.IdeasLoaded:
		a.ideasView, cmd = a.ideasView.Update(msg)
		if msg.Err != nil {
			a.setError(msg.Err)
		} else {
			a.clearError()
			a.statusBar.SetCount(len(msg.Seeds), "ideas")
		}
		return a, cmd

	case messages.SynthesisCompleted:
		a.synthesisView, cmd = a.synthesisView.Update(msg)
		a.statusBar.SetState(status.StateReady)
		if msg.Err == nil && msg.Result != nil {
			a.statusBar.SetCount(len(msg.Result.Suggestions), "suggestions")
		}
		return a, cmd

	case messages.ViewChanged:
		return a, a.switchView(msg.View)

	case messages.ErrorOccurred:
		a.setError(msg.Err)
		return a, nil

	case messages.Quit:
		return a, tea.Quit
	}

	// Forward the rest, such as spinner ticks, to the active view.
	switch a.currentView {
	case messages.ViewIdeas:
		a.ideasView, cmd = a.ideasView.Update(msg)
	case messages.ViewSynthesis:
		a.synthesisView, cmd = a.synthesisView.Update(msg)
	case messages.ViewHelp:
	}
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	key := msg.String()

	if key == "ctrl+c" {
		return a, tea.Quit
	}

	if a.currentView == messages.ViewHelp {
		if keymap.Matches(key, a.keymap.Back) || keymap.Matches(key, a.keymap.Help) {
			a.currentView = a.previousView
		}
		if keymap.Matches(key, a.keymap.Quit) {
			return a, tea.Quit
		}
		return a, nil
	}

	switch {
	case keymap.Matches(key, a.keymap.Quit):
		return a, tea.Quit
	case keymap.Matches(key, a.keymap.Help):
		a.previousView = a.currentView
		a.currentView = messages.ViewHelp
		return a, nil
	}

	switch a.currentView {
	case messages.ViewIdeas:
		if a.kb == nil {
			return a, nil
		}
		a.ideasView, cmd = a.ideasView.Update(msg)
		if a.ideasView.Loading() {
			a.statusBar.SetState(status.StateLoading)
		}
	case messages.ViewSynthesis:
		a.synthesisView, cmd = a.synthesisView.Update(msg)
		if a.synthesisView.Running() {
			a.statusBar.SetState(status.StateSynthesizing)
		}
	case messages.ViewHelp:
	}
	return a, cmd
}

func (a *App) switchView(view messages.ViewType) tea.Cmd {
	a.currentView = view
	switch view {
	case messages.ViewSynthesis:
		a.statusBar.SetBindings(a.keymap.SynthesisHelp())
		if a.synthesisView.Result() == nil && !a.synthesisView.Running() {
			cmd := a.synthesisView.Start()
			if a.synthesisView.Running() {
				a.statusBar.SetState(status.StateSynthesizing)
			}
			return cmd
		}
	case messages.ViewIdeas:
		a.statusBar.SetBindings(a.keymap.IdeasHelp())
		a.statusBar.SetCount(len(a.ideasView.Seeds()), "ideas")
	case messages.ViewHelp:
	}
	return nil
}

func (a *App) setError(err error) {
	a.err = err
	a.statusBar.SetState(status.StateError)
	a.statusBar.SetMessage(err.Error())
}

func (a *App) clearError() {
	a.err = nil
	a.statusBar.SetState(status.StateReady)
	a.statusBar.SetMessage("")
}

// View renders the active view above the status bar.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	var body string
	switch a.currentView {
	case messages.ViewSynthesis:
		body = a.synthesisView.View()
	case messages.ViewHelp:
		body = a.viewHelp()
	case messages.ViewIdeas:
		if a.kb == nil && a.err != nil {
			body = a.styles.Error.Render(a.err.Error()) + "\n"
		} else {
			body = a.ideasView.View()
		}
	}

	// Pad the body so the status bar sits on the last line.
	lines := strings.Count(body, "\n")
	if pad := a.height - 1 - lines; pad > 0 {
		body += strings.Repeat("\n", pad)
	}
	return body + a.statusBar.View()
}

func (a *App) viewHelp() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("Help"))
	b.WriteString("\n\n")
	for _, group := range a.keymap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			fmt.Fprintf(&b, "  %-8s %s\n", h.Key, h.Desc)
		}
		b.WriteString("\n")
	}
	b.WriteString(a.styles.Help.Render("[esc] back"))
	b.WriteString("\n")
	return b.String()
}

// Run starts the TUI program and blocks until it exits.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// KnowledgeBase returns the resolved default knowledge base, if any.
func (a *App) KnowledgeBase() *domain.KnowledgeBase {
	return a.kb
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has received its dimensions.
func (a *App) Ready() bool {
	return a.ready
}

// SetDimensions sets the terminal dimensions.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.ideasView.SetDimensions(width, height)
	a.synthesisView.SetDimensions(width, height)
	a.statusBar.SetWidth(width)
}
