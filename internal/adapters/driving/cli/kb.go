package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
	Long: `Create and inspect knowledge bases. Every document, cluster and idea
belongs to exactly one knowledge base; synthesis reads only your default one.`,
}

var kbCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a knowledge base",
	Args:  cobra.NoArgs,
	RunE:  runKBCreate,
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your knowledge bases",
	Args:  cobra.NoArgs,
	RunE:  runKBList,
}

var kbDefaultCmd = &cobra.Command{
	Use:   "default [kb-id]",
	Short: "Show or set your default knowledge base",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKBDefault,
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats [kb-id]",
	Short: "Show counts for your slice of a knowledge base",
	Long:  `Show document, cluster, concept and idea counts. Defaults to your default knowledge base.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKBStats,
}

func init() {
	kbCreateCmd.Flags().Bool("default", false, "Make the new knowledge base your default")
	kbCmd.AddCommand(kbCreateCmd)
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbDefaultCmd)
	kbCmd.AddCommand(kbStatsCmd)
	rootCmd.AddCommand(kbCmd)
}

func runKBCreate(cmd *cobra.Command, _ []string) error {
	if kbService == nil {
		return errors.New("knowledge base service not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}
	makeDefault, err := cmd.Flags().GetBool("default")
	if err != nil {
		return fmt.Errorf("getting default flag: %w", err)
	}

	kb, err := kbService.Create(commandContext(cmd), owner, makeDefault)
	if err != nil {
		return fmt.Errorf("create knowledge base: %w", err)
	}

	cmd.Printf("Created knowledge base %s", kb.ID)
	if kb.Default {
		cmd.Print(" (default)")
	}
	cmd.Println()
	return nil
}

func runKBList(cmd *cobra.Command, _ []string) error {
	if kbService == nil {
		return errors.New("knowledge base service not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}

	kbs, err := kbService.List(commandContext(cmd), owner)
	if err != nil {
		return fmt.Errorf("list knowledge bases: %w", err)
	}
	if len(kbs) == 0 {
		cmd.Println("No knowledge bases. Run 'kbsynth kb create' to add one.")
		return nil
	}

	cmd.Printf("Knowledge bases for %s:\n", owner)
	for _, kb := range kbs {
		marker := " "
		if kb.Default {
			marker = "*"
		}
		cmd.Printf(" %s %s  created %s\n", marker, kb.ID, kb.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runKBDefault(cmd *cobra.Command, args []string) error {
	if kbService == nil {
		return errors.New("knowledge base service not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	if len(args) == 1 {
		if err := kbService.SetDefault(ctx, owner, domain.KBID(args[0])); err != nil {
			return fmt.Errorf("set default: %w", err)
		}
		cmd.Printf("Default knowledge base set to %s\n", args[0])
		return nil
	}

	kb, err := kbService.Default(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		cmd.Println("No default knowledge base.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get default: %w", err)
	}
	cmd.Println(kb.ID)
	return nil
}

func runKBStats(cmd *cobra.Command, args []string) error {
	if kbService == nil {
		return errors.New("knowledge base service not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	kbID, err := resolveKB(cmd, args)
	if err != nil {
		return err
	}

	stats, err := kbService.Stats(ctx, kbID, owner)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	cmd.Printf("Knowledge base %s (%s)\n", stats.KBID, stats.Principal)
	cmd.Printf("  Documents: %d\n", stats.Documents)
	cmd.Printf("  Clusters:  %d\n", stats.Clusters)
	cmd.Printf("  Concepts:  %d\n", stats.Concepts)
	cmd.Printf("  Ideas:     %d\n", stats.Seeds)
	return nil
}

// resolveKB returns the first argument as a KB id, or the principal's
// default knowledge base when no argument is given.
func resolveKB(cmd *cobra.Command, args []string) (domain.KBID, error) {
	if len(args) > 0 && args[0] != "" {
		return domain.KBID(args[0]), nil
	}
	owner, err := requirePrincipal()
	if err != nil {
		return "", err
	}
	kb, err := kbService.Default(commandContext(cmd), owner)
	if errors.Is(err, domain.ErrNotFound) {
		return "", errors.New("no default knowledge base: run 'kbsynth kb create'")
	}
	if err != nil {
		return "", fmt.Errorf("resolve default knowledge base: %w", err)
	}
	return kb.ID, nil
}
