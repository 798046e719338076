package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/tui"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse quick ideas and synthesis in the terminal",
	Long: `Launch an interactive browser over your default knowledge base.

Controls:
  ↑/k, ↓/j - Navigate
  tab      - Cycle difficulty filter
  s        - Synthesize suggestions
  r        - Refresh
  esc      - Back
  ?        - Toggle help
  q        - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().IntP("max", "n", domain.DefaultMaxSuggestions, "Maximum suggestions per synthesis (1-10)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	if kbService == nil || ideaSeedService == nil || synthesisService == nil {
		return errors.New("services not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}
	maxSuggestions, _ := cmd.Flags().GetInt("max") //nolint:errcheck // flag is registered above

	app, err := newTUIApp(owner, maxSuggestions)
	if err != nil {
		return err
	}
	app.WithContext(commandContext(cmd))

	if err := app.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func newTUIApp(owner string, maxSuggestions int) (*tui.App, error) {
	ports := &tui.Ports{
		KnowledgeBases: kbService,
		IdeaSeeds:      ideaSeedService,
		Synthesis:      synthesisService,
	}
	app, err := tui.NewApp(ports, tui.Config{Principal: owner, MaxSuggestions: maxSuggestions})
	if err != nil {
		return nil, fmt.Errorf("create tui: %w", err)
	}
	return app, nil
}
