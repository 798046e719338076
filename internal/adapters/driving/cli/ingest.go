package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/inbox"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.json...]",
	Short: "Ingest extracted documents",
	Long: `Ingest documents from JSON files (or stdin with "-"). Each file holds one
record or an array of records:

  {"kb_id": "...", "document_id": 1, "owner": "alice", "title": "...",
   "content": "...", "source_type": "pdf",
   "concepts": [{"name": "raft", "category": "algorithm", "confidence": 0.9}]}

The command runs the pipeline until every queued job has finished, so
clustering, summarisation and quick ideas are done when it returns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestNotifyCmd = &cobra.Command{
	Use:   "notify [kb-id] [doc-id]",
	Short: "Report a stage transition for a document",
	Long: `Report the outcome of a stage handled outside kbsynth.

  kbsynth ingest notify kb1 7 --stage summarized --summary "..."
  kbsynth ingest notify kb1 7 --stage summarized --error "model refused"
  kbsynth ingest notify kb1 7 --stage extracted --error "corrupt file"`,
	Args: cobra.ExactArgs(2),
	RunE: runIngestNotify,
}

var ingestRetryCmd = &cobra.Command{
	Use:   "retry [kb-id] [doc-id]",
	Short: "Requeue documents that stopped short of their ideas",
	Long: `Requeue the next stage of documents whose pipeline job failed or was
dropped when a previous run was interrupted. Without a document id every
stranded document of the knowledge base is requeued.

  kbsynth ingest retry kb1 7
  kbsynth ingest retry kb1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngestRetry,
}

var ingestStatusCmd = &cobra.Command{
	Use:   "status [kb-id] [doc-id]",
	Short: "Show the pipeline state of a document",
	Args:  cobra.ExactArgs(2),
	RunE:  runIngestStatus,
}

func init() {
	ingestNotifyCmd.Flags().String("stage", string(domain.StageSummarized), "Stage reached (extracted|summarized)")
	ingestNotifyCmd.Flags().String("summary", "", "Summary text for a successful summarized transition")
	ingestNotifyCmd.Flags().String("error", "", "Failure message when the stage failed")
	ingestCmd.AddCommand(ingestNotifyCmd)
	ingestCmd.AddCommand(ingestRetryCmd)
	ingestCmd.AddCommand(ingestStatusCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	var records []domain.IngestRecord
	for _, path := range args {
		recs, err := readRecords(cmd, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, recs...)
	}

	ctx := commandContext(cmd)
	if err := pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	statuses, batchErr := pipelineService.IngestBatch(ctx, records)
	pipelineService.Wait()

	ingested := 0
	for _, st := range statuses {
		if st.KBID.IsZero() {
			continue
		}
		ingested++
		final, err := pipelineService.Status(ctx, st.KBID, st.DocumentID)
		if err != nil {
			final = &st
		}
		printStatus(cmd, final)
	}
	if batchErr != nil {
		return fmt.Errorf("%d of %d document(s) failed: %w", len(records)-ingested, len(records), batchErr)
	}
	cmd.Printf("Ingested %d document(s)\n", ingested)
	return nil
}

func readRecords(cmd *cobra.Command, path string) ([]domain.IngestRecord, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return inbox.Decode(r)
}

func runIngestNotify(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	docID, err := parseDocID(args[1])
	if err != nil {
		return err
	}
	stage, _ := cmd.Flags().GetString("stage")     //nolint:errcheck // flag is registered above
	summary, _ := cmd.Flags().GetString("summary") //nolint:errcheck // flag is registered above
	failure, _ := cmd.Flags().GetString("error")   //nolint:errcheck // flag is registered above

	ctx := commandContext(cmd)
	if err := pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	err = pipelineService.Notify(ctx, domain.StageTransition{
		KBID:       domain.KBID(args[0]),
		DocumentID: docID,
		Stage:      domain.Stage(stage),
		Summary:    summary,
		Err:        failure,
	})
	pipelineService.Wait()
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	st, err := pipelineService.Status(ctx, domain.KBID(args[0]), docID)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	printStatus(cmd, st)
	return nil
}

func runIngestRetry(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	kb := domain.KBID(args[0])

	ctx := commandContext(cmd)
	if err := pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	var requeued []domain.DocumentStatus
	if len(args) == 2 {
		docID, err := parseDocID(args[1])
		if err != nil {
			return err
		}
		st, err := pipelineService.Retry(ctx, kb, docID)
		if err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		requeued = append(requeued, *st)
	} else {
		var err error
		if requeued, err = pipelineService.RetryKB(ctx, kb); err != nil {
			pipelineService.Wait()
			return fmt.Errorf("retry: %w", err)
		}
	}
	pipelineService.Wait()

	for _, st := range requeued {
		final, err := pipelineService.Status(ctx, st.KBID, st.DocumentID)
		if err != nil {
			final = &st
		}
		printStatus(cmd, final)
	}
	cmd.Printf("Retried %d document(s)\n", len(requeued))
	return nil
}

func runIngestStatus(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	docID, err := parseDocID(args[1])
	if err != nil {
		return err
	}

	st, err := pipelineService.Status(commandContext(cmd), domain.KBID(args[0]), docID)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	printStatus(cmd, st)
	return nil
}

func parseDocID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func printStatus(cmd *cobra.Command, st *domain.DocumentStatus) {
	cmd.Printf("%s/%d: %s", st.KBID, st.DocumentID, st.Stage)
	if st.ClusterID != nil {
		cmd.Printf(" (cluster %d)", *st.ClusterID)
	}
	if st.SeedsReady {
		cmd.Print(" [ideas ready]")
	}
	if st.Failure != nil {
		cmd.Printf(" failed at %s: %s", st.Failure.Stage, st.Failure.Message)
	}
	cmd.Println()
}
