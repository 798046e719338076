package ideas

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

type mockIdeaSeedService struct {
	seeds   []domain.BuildIdeaSeed
	err     error
	filters []domain.SeedFilter
}

func (m *mockIdeaSeedService) Generate(_ context.Context, _ domain.KBID, _ int) (*domain.SeedGeneration, error) {
	return nil, errors.New("not used")
}

func (m *mockIdeaSeedService) List(_ context.Context, _ domain.KBID, f domain.SeedFilter) ([]domain.BuildIdeaSeed, error) {
	m.filters = append(m.filters, f)
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.BuildIdeaSeed
	for _, s := range m.seeds {
		if f.Difficulty == "" || s.Difficulty == f.Difficulty {
			out = append(out, s)
		}
	}
	return out, nil
}

func sampleSeeds() []domain.BuildIdeaSeed {
	return []domain.BuildIdeaSeed{
		{KBID: "kb", DocumentID: 2, Index: 0, Title: "Log compactor", Description: "Compact a raft log", Difficulty: domain.DifficultyAdvanced},
		{KBID: "kb", DocumentID: 1, Index: 0, Title: "CLI timer", Difficulty: domain.DifficultyBeginner},
		{KBID: "kb", DocumentID: 1, Index: 1, Title: "Rate limiter", Difficulty: domain.DifficultyIntermediate},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// loaded binds the view to a KB and applies the resulting load.
func loaded(t *testing.T, svc *mockIdeaSeedService) *View {
	t.Helper()
	v := NewView(nil, nil, svc)
	cmd := v.SetKB("kb")
	require.NotNil(t, cmd)
	v.Update(cmd())
	return v
}

func TestNewView_Defaults(t *testing.T) {
	v := NewView(nil, nil, &mockIdeaSeedService{})

	assert.Equal(t, domain.Difficulty(""), v.Filter())
	assert.Nil(t, v.Init())
	assert.Contains(t, v.View(), "No ideas yet")
}

func TestView_SetKB_Loads(t *testing.T) {
	svc := &mockIdeaSeedService{seeds: sampleSeeds()}

	v := loaded(t, svc)

	assert.Len(t, v.Seeds(), 3)
	assert.False(t, v.Loading())
	require.Len(t, svc.filters, 1)
	assert.Equal(t, domain.MaxSeedListLimit, svc.filters[0].Limit)
	out := v.View()
	assert.Contains(t, out, "Log compactor")
	assert.Contains(t, out, "[advanced]")
	assert.Contains(t, out, "Compact a raft log")
	assert.Contains(t, out, "difficulty: all")
}

func TestView_Navigate(t *testing.T) {
	v := loaded(t, &mockIdeaSeedService{seeds: sampleSeeds()})

	v.Update(key("down"))
	v.Update(key("j"))
	assert.Equal(t, 2, v.Selected())

	v.Update(key("j"))
	assert.Equal(t, 2, v.Selected(), "stops at last item")

	v.Update(key("k"))
	assert.Equal(t, 1, v.Selected())
}

func TestView_FilterCycles(t *testing.T) {
	svc := &mockIdeaSeedService{seeds: sampleSeeds()}
	v := loaded(t, svc)

	want := []domain.Difficulty{
		domain.DifficultyBeginner,
		domain.DifficultyIntermediate,
		domain.DifficultyAdvanced,
		"",
	}
	for _, d := range want {
		_, cmd := v.Update(key("tab"))
		require.NotNil(t, cmd)
		v.Update(cmd())
		assert.Equal(t, d, v.Filter())
		assert.Equal(t, d, svc.filters[len(svc.filters)-1].Difficulty)
	}
	assert.Len(t, v.Seeds(), 3)
}

func TestView_FilterNarrowsList(t *testing.T) {
	v := loaded(t, &mockIdeaSeedService{seeds: sampleSeeds()})

	_, cmd := v.Update(key("tab"))
	v.Update(cmd())

	require.Len(t, v.Seeds(), 1)
	assert.Equal(t, "CLI timer", v.Seeds()[0].Title)
	assert.Contains(t, v.View(), "difficulty: beginner")
}

func TestView_LoadError(t *testing.T) {
	v := loaded(t, &mockIdeaSeedService{err: errors.New("db closed")})

	assert.EqualError(t, v.Err(), "db closed")
	assert.Contains(t, v.View(), "db closed")
}

func TestView_SynthesizeKey(t *testing.T) {
	v := loaded(t, &mockIdeaSeedService{})

	_, cmd := v.Update(key("s"))

	require.NotNil(t, cmd)
	assert.Equal(t, messages.ViewChanged{View: messages.ViewSynthesis}, cmd())
}

func TestView_WindowKeepsSelectionVisible(t *testing.T) {
	seeds := make([]domain.BuildIdeaSeed, 30)
	for i := range seeds {
		seeds[i] = domain.BuildIdeaSeed{KBID: "kb", DocumentID: i, Title: "idea", Difficulty: domain.DifficultyBeginner}
	}
	v := loaded(t, &mockIdeaSeedService{seeds: seeds})
	v.SetDimensions(80, 10)

	for range 25 {
		v.Update(key("j"))
	}
	start, end := v.window()

	assert.LessOrEqual(t, start, v.Selected())
	assert.Greater(t, end, v.Selected())
	assert.Equal(t, 5, end-start)
}
