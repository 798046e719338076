package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Suggest projects drawing on your whole default knowledge base",
	Long: `Ask the LLM for build suggestions that combine concepts across your
documents. Only your own documents in your default knowledge base are read.

Synthesis needs at least 5 documents, 10 distinct concepts and 1 cluster.
Use 'kbsynth readiness' to check progress.`,
	Args: cobra.NoArgs,
	RunE: runSynthesize,
}

var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Show progress towards the synthesis thresholds",
	Args:  cobra.NoArgs,
	RunE:  runReadiness,
}

func init() {
	synthesizeCmd.Flags().IntP("max", "n", domain.DefaultMaxSuggestions, "Maximum suggestions (1-10)")
	synthesizeCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(readinessCmd)
}

func runSynthesize(cmd *cobra.Command, _ []string) error {
	if synthesisService == nil {
		return errors.New("synthesis service not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}
	maxSuggestions, _ := cmd.Flags().GetInt("max") //nolint:errcheck // flag is registered above
	asJSON, _ := cmd.Flags().GetBool("json")       //nolint:errcheck // flag is registered above

	ctx := commandContext(cmd)
	if synthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, synthesisTimeout)
		defer cancel()
	}

	result, err := synthesisService.Synthesize(ctx, domain.SynthesisRequest{
		Principal:      owner,
		MaxSuggestions: maxSuggestions,
	})
	if err != nil {
		return explainSynthesisError(err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	cmd.Printf("Suggestions from %s (%d of %d candidates kept)\n\n",
		result.KBID, len(result.Suggestions), result.CandidatesReceived)
	for i, s := range result.Suggestions {
		cmd.Printf("%d. %s [%s coverage]\n", i+1, s.Title, s.Coverage)
		cmd.Printf("   %s\n", s.Description)
		if len(s.ConceptsUsed) > 0 {
			cmd.Printf("   Concepts: %s\n", strings.Join(s.ConceptsUsed, ", "))
		}
		if len(s.ClusterNames) > 0 {
			cmd.Printf("   Clusters: %s\n", strings.Join(s.ClusterNames, ", "))
		}
		cmd.Println()
	}
	return nil
}

// explainSynthesisError adds guidance to the errors users can act on.
func explainSynthesisError(err error) error {
	var insufficient *domain.InsufficientKnowledgeError
	var provider *domain.ProviderError
	switch {
	case errors.As(err, &insufficient):
		return fmt.Errorf("%w. Ingest more documents and try again", err)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("no default knowledge base: run 'kbsynth kb create' (%w)", err)
	case errors.Is(err, domain.ErrLLMUnavailable):
		return fmt.Errorf("%w. Run 'kbsynth config llm' to configure a provider", err)
	case errors.As(err, &provider) && provider.Timeout:
		return fmt.Errorf("synthesis timed out: %w", err)
	case errors.Is(err, domain.ErrQualityFilterEmpty):
		return fmt.Errorf("%w. Try again, or add documents on related topics", err)
	default:
		return fmt.Errorf("synthesize: %w", err)
	}
}

func runReadiness(cmd *cobra.Command, _ []string) error {
	if synthesisService == nil {
		return errors.New("synthesis service not configured")
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}

	r, err := synthesisService.Readiness(commandContext(cmd), owner)
	if err != nil {
		return fmt.Errorf("readiness: %w", err)
	}

	cmd.Printf("Knowledge base %s\n", r.KBID)
	cmd.Printf("  Documents: %d/%d\n", r.Documents, domain.MinSynthesisDocuments)
	cmd.Printf("  Concepts:  %d/%d\n", r.Concepts, domain.MinSynthesisConcepts)
	cmd.Printf("  Clusters:  %d/%d\n", r.Clusters, domain.MinSynthesisClusters)
	if r.Ready() {
		cmd.Println("Ready for synthesis.")
	} else {
		cmd.Println("Not ready yet.")
	}
	return nil
}
