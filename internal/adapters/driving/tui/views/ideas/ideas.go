// Package ideas provides the quick ideas browser view for the TUI.
package ideas

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
)

// filters is the cycle order of the difficulty filter. The empty tier
// shows every difficulty.
var filters = []domain.Difficulty{
	"",
	domain.DifficultyBeginner,
	domain.DifficultyIntermediate,
	domain.DifficultyAdvanced,
}

// View lists stored quick ideas of one knowledge base. It never triggers
// generation.
type View struct {
	ctx     context.Context
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	service driving.IdeaSeedService

	kbID     domain.KBID
	seeds    []domain.BuildIdeaSeed
	filter   int
	limit    int
	selected int
	loading  bool
	err      error

	width  int
	height int
}

// NewView creates a new ideas view.
func NewView(s *styles.Styles, km *keymap.KeyMap, service driving.IdeaSeedService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &View{
		ctx:     context.Background(),
		styles:  s,
		keymap:  km,
		service: service,
		limit:   domain.MaxSeedListLimit,
		width:   80,
		height:  24,
	}
}

// SetContext sets the context used for service calls.
func (v *View) SetContext(ctx context.Context) {
	v.ctx = ctx
}

// SetKB binds the view to a knowledge base and loads its ideas.
func (v *View) SetKB(kbID domain.KBID) tea.Cmd {
	v.kbID = kbID
	v.selected = 0
	return v.load()
}

// Init loads ideas when a knowledge base is bound.
func (v *View) Init() tea.Cmd {
	if v.kbID.IsZero() {
		return nil
	}
	return v.load()
}

func (v *View) load() tea.Cmd {
	if v.service == nil || v.kbID.IsZero() {
		return nil
	}
	v.loading = true
	ctx, kbID := v.ctx, v.kbID
	filter := domain.SeedFilter{Difficulty: v.Filter(), Limit: v.limit}
	service := v.service
	return func() tea.Msg {
		seeds, err := service.List(ctx, kbID, filter)
		return messages.IdeasLoaded{Seeds: seeds, Err: err}
	}
}

// Update handles messages for the ideas view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case messages.IdeasLoaded:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.seeds = msg.Seeds
		}
		if v.selected >= len(v.seeds) {
			v.selected = max(len(v.seeds)-1, 0)
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
			if v.selected < len(v.seeds)-1 {
				v.selected++
			}
		case keymap.Matches(key, v.keymap.Filter):
			v.filter = (v.filter + 1) % len(filters)
			v.selected = 0
			return v, v.load()
		case keymap.Matches(key, v.keymap.Refresh):
			return v, v.load()
		case keymap.Matches(key, v.keymap.Synthesize):
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewSynthesis}
			}
		}
	}
	return v, nil
}

// View renders the ideas list.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Quick ideas"))
	b.WriteString("  ")
	b.WriteString(v.styles.Muted.Render("difficulty: " + v.filterLabel()))
	b.WriteString("\n\n")

	switch {
	case v.err != nil:
		b.WriteString(v.styles.Error.Render(v.err.Error()))
		b.WriteString("\n")
		return b.String()
	case v.loading && len(v.seeds) == 0:
		b.WriteString(v.styles.Muted.Render("Loading..."))
		b.WriteString("\n")
		return b.String()
	case len(v.seeds) == 0:
		b.WriteString(v.styles.Muted.Render("No ideas yet. Ideas appear once documents are summarized."))
		b.WriteString("\n")
		return b.String()
	}

	start, end := v.window()
	for i := start; i < end; i++ {
		seed := v.seeds[i]
		cursor := "  "
		title := v.styles.Normal.Render(seed.Title)
		if i == v.selected {
			cursor = "> "
			title = v.styles.Selected.Render(seed.Title)
		}
		fmt.Fprintf(&b, "%s%s %s %s\n", cursor, v.styles.Difficulty(seed.Difficulty), title,
			v.styles.Muted.Render(fmt.Sprintf("(doc %d)", seed.DocumentID)))
		if i == v.selected && seed.Description != "" {
			b.WriteString("    ")
			b.WriteString(v.styles.Muted.Render(seed.Description))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// window returns the visible slice of seeds around the selection.
func (v *View) window() (int, int) {
	// Title, blank line, description and status bar.
	rows := v.height - 5
	if rows < 1 {
		rows = 1
	}
	if len(v.seeds) <= rows {
		return 0, len(v.seeds)
	}
	start := v.selected - rows/2
	if start < 0 {
		start = 0
	}
	end := start + rows
	if end > len(v.seeds) {
		end = len(v.seeds)
		start = end - rows
	}
	return start, end
}

func (v *View) filterLabel() string {
	if f := v.Filter(); f != "" {
		return f.String()
	}
	return "all"
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
}

// Filter returns the active difficulty filter, empty for all.
func (v *View) Filter() domain.Difficulty {
	return filters[v.filter]
}

// Seeds returns the loaded ideas.
func (v *View) Seeds() []domain.BuildIdeaSeed {
	return v.seeds
}

// Selected returns the selected index.
func (v *View) Selected() int {
	return v.selected
}

// Loading reports whether a load is in flight.
func (v *View) Loading() bool {
	return v.loading
}

// Err returns the last load error.
func (v *View) Err() error {
	return v.err
}
