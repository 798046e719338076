package driving

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// PipelineService drives documents through the ingestion stages.
type PipelineService interface {
	// Ingest stores one extracted document and queues it for clustering.
	// A record carrying an extraction error is stored with the failure and
	// never proceeds further.
	Ingest(ctx context.Context, record domain.IngestRecord) (*domain.DocumentStatus, error)

	// IngestBatch ingests records in parallel. One failing record never
	// aborts its siblings; the returned error joins every failure.
	IngestBatch(ctx context.Context, records []domain.IngestRecord) ([]domain.DocumentStatus, error)

	// Notify applies a stage transition reported by an external collaborator.
	Notify(ctx context.Context, transition domain.StageTransition) error

	// Retry requeues the next stage of a document whose job failed or was
	// dropped on Stop. Extraction failures are not retryable.
	Retry(ctx context.Context, kbID domain.KBID, documentID int) (*domain.DocumentStatus, error)

	// RetryKB requeues every stranded document of one knowledge base.
	RetryKB(ctx context.Context, kbID domain.KBID) ([]domain.DocumentStatus, error)

	// Status returns the pipeline state of one document.
	Status(ctx context.Context, kbID domain.KBID, documentID int) (*domain.DocumentStatus, error)

	// Start launches the worker pool. Jobs queued before Start run once it begins.
	Start(ctx context.Context) error

	// Stop stops accepting jobs and waits for in-flight jobs to finish.
	Stop()

	// Wait blocks until the job queue is drained.
	Wait()
}
