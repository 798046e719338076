package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "Quick build ideas generated per document",
}

var ideasListCmd = &cobra.Command{
	Use:   "list [kb-id]",
	Short: "List quick ideas, newest first",
	Long:  `List stored quick ideas. This never calls the LLM. Defaults to your default knowledge base.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIdeasList,
}

var ideasGenerateCmd = &cobra.Command{
	Use:   "generate [kb-id] [doc-id]",
	Short: "Generate quick ideas for one summarized document",
	Long: `Generate 2 to 4 quick ideas for a document. Running it again after a
successful generation writes nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: runIdeasGenerate,
}

func init() {
	ideasListCmd.Flags().String("difficulty", "", "Only show one tier (beginner|intermediate|advanced)")
	ideasListCmd.Flags().IntP("limit", "n", domain.DefaultSeedListLimit, "Maximum number of ideas")
	ideasCmd.AddCommand(ideasListCmd)
	ideasCmd.AddCommand(ideasGenerateCmd)
	rootCmd.AddCommand(ideasCmd)
}

func runIdeasList(cmd *cobra.Command, args []string) error {
	if ideaSeedService == nil || kbService == nil {
		return errors.New("idea service not configured")
	}
	kbID, err := resolveKB(cmd, args)
	if err != nil {
		return err
	}
	difficulty, _ := cmd.Flags().GetString("difficulty") //nolint:errcheck // flag is registered above
	limit, _ := cmd.Flags().GetInt("limit")              //nolint:errcheck // flag is registered above

	seeds, err := ideaSeedService.List(commandContext(cmd), kbID, domain.SeedFilter{
		Difficulty: domain.Difficulty(difficulty),
		Limit:      limit,
	})
	if err != nil {
		return fmt.Errorf("list ideas: %w", err)
	}
	if len(seeds) == 0 {
		cmd.Println("No ideas yet. Ideas appear once documents are summarized.")
		return nil
	}

	for _, s := range seeds {
		cmd.Printf("[%s] %s  (doc %d)\n", s.Difficulty, s.Title, s.DocumentID)
		if s.Description != "" {
			cmd.Printf("    %s\n", s.Description)
		}
	}
	return nil
}

func runIdeasGenerate(cmd *cobra.Command, args []string) error {
	if ideaSeedService == nil {
		return errors.New("idea service not configured")
	}
	docID, err := parseDocID(args[1])
	if err != nil {
		return err
	}

	gen, err := ideaSeedService.Generate(commandContext(cmd), domain.KBID(args[0]), docID)
	if err != nil {
		return fmt.Errorf("generate ideas: %w", err)
	}
	if gen.AlreadyCompleted {
		cmd.Println("Ideas were already generated for this document.")
		return nil
	}
	cmd.Printf("Generated %d idea(s)\n", gen.IdeasGenerated)
	return nil
}
