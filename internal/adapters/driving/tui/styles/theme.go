// Package styles holds the palette and lipgloss styles of the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// Palette names the colours the TUI draws with.
type Palette struct {
	Accent  lipgloss.Color
	Info    lipgloss.Color
	Text    lipgloss.Color
	Dim     lipgloss.Color
	Good    lipgloss.Color
	Caution lipgloss.Color
	Bad     lipgloss.Color
	Bar     lipgloss.Color
}

// DefaultPalette is a dark palette in the Catppuccin Mocha range.
func DefaultPalette() Palette {
	return Palette{
		Accent:  "#7C3AED",
		Info:    "#06B6D4",
		Text:    "#CDD6F4",
		Dim:     "#6C7086",
		Good:    "#A6E3A1",
		Caution: "#F9E2AF",
		Bad:     "#F38BA8",
		Bar:     "#181825",
	}
}

// Styles are the rendered styles of one palette.
type Styles struct {
	palette Palette

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Selected  lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	StatusBar lipgloss.Style
	Help      lipgloss.Style

	// Tag renders a bracketed tier label.
	Tag lipgloss.Style

	difficulty map[domain.Difficulty]lipgloss.Color
	coverage   map[domain.Coverage]lipgloss.Color
}

// New derives styles from p.
func New(p Palette) *Styles {
	fg := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c)
	}
	return &Styles{
		palette:   p,
		Title:     fg(p.Accent).Bold(true),
		Subtitle:  fg(p.Info).Bold(true),
		Normal:    fg(p.Text),
		Muted:     fg(p.Dim),
		Selected:  fg(p.Text).Background(p.Accent).Bold(true),
		Error:     fg(p.Bad),
		Warning:   fg(p.Caution),
		StatusBar: fg(p.Dim).Background(p.Bar).Padding(0, 1),
		Help:      fg(p.Dim),
		Tag:       lipgloss.NewStyle().Bold(true),
		difficulty: map[domain.Difficulty]lipgloss.Color{
			domain.DifficultyBeginner:     p.Good,
			domain.DifficultyIntermediate: p.Caution,
			domain.DifficultyAdvanced:     p.Bad,
		},
		coverage: map[domain.Coverage]lipgloss.Color{
			domain.CoverageHigh:   p.Good,
			domain.CoverageMedium: p.Info,
			domain.CoverageLow:    p.Caution,
		},
	}
}

// DefaultStyles returns styles of the default palette.
func DefaultStyles() *Styles {
	return New(DefaultPalette())
}

// Palette returns the colours these styles were built from.
func (s *Styles) Palette() Palette {
	return s.palette
}

// Difficulty renders a difficulty tier as a coloured tag.
func (s *Styles) Difficulty(d domain.Difficulty) string {
	return s.tag(s.difficulty[d], "["+d.String()+"]")
}

// Coverage renders a knowledge coverage tier as a coloured tag.
func (s *Styles) Coverage(c domain.Coverage) string {
	return s.tag(s.coverage[c], "["+c.String()+" coverage]")
}

func (s *Styles) tag(c lipgloss.Color, label string) string {
	if c == "" {
		c = s.palette.Dim
	}
	return s.Tag.Foreground(c).Render(label)
}
