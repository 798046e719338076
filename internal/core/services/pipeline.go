package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// Ensure PipelineService implements the interface.
var _ driving.PipelineService = (*PipelineService)(nil)

const summaryMaxLength = 500

// seedGenerator is the part of the idea seed track the pipeline triggers.
type seedGenerator interface {
	Generate(ctx context.Context, kbID domain.KBID, documentID int) (*domain.SeedGeneration, error)
}

type jobKind int

const (
	// jobCluster clusters a document, then summarises and seeds it when it can.
	jobCluster jobKind = iota
	// jobSummarise summarises a clustered document, then seeds it.
	jobSummarise
	// jobSeed runs the idea seed track for a summarized document.
	jobSeed
)

type job struct {
	kind jobKind
	kb   domain.KBID
	doc  int

	// summary is an upstream summary applied right after clustering.
	summary string
}

// PipelineService moves documents through the ingestion stages with a
// pool of workers. Each job follows one document as far as it can go, so
// workers never enqueue follow-up work themselves.
type PipelineService struct {
	store     driven.KBStore
	seedStore driven.SeedStore
	clusters  *ClusterEngine
	seeds     seedGenerator
	llm       driven.LLMService
	prompts   driven.PromptStore
	telemetry driven.Telemetry
	workers   int
	now       func() time.Time

	// slots bounds the number of queued jobs.
	slots chan struct{}
	wake  chan struct{}

	mu      sync.Mutex
	queue   []job
	running bool
	stopped bool
	stopCh  chan struct{}
	group   *errgroup.Group
	pending sync.WaitGroup
}

// PipelineConfig wires the pipeline's collaborators.
type PipelineConfig struct {
	Store     driven.KBStore
	SeedStore driven.SeedStore
	Seeds     seedGenerator
	LLM       driven.LLMService
	Prompts   driven.PromptStore
	Telemetry driven.Telemetry
	Settings  domain.PipelineSettings
}

// NewPipelineService creates a pipeline. LLM may be nil, in which case
// summaries must arrive through Notify.
func NewPipelineService(cfg PipelineConfig) *PipelineService {
	workers := cfg.Settings.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.Settings.QueueSize
	if queueSize < 1 {
		queueSize = domain.DefaultAppSettings().Pipeline.QueueSize
	}
	telemetry := cfg.Telemetry
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &PipelineService{
		store:     cfg.Store,
		seedStore: cfg.SeedStore,
		clusters:  NewClusterEngine(cfg.Store),
		seeds:     cfg.Seeds,
		llm:       cfg.LLM,
		prompts:   cfg.Prompts,
		telemetry: telemetry,
		workers:   workers,
		now:       time.Now,
		slots:     make(chan struct{}, queueSize),
		wake:      make(chan struct{}, 1),
	}
}

// Ingest stores one extracted document and queues it for clustering.
func (p *PipelineService) Ingest(ctx context.Context, record domain.IngestRecord) (*domain.DocumentStatus, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := p.store.EnsureKB(ctx, record.KBID); err != nil {
		return nil, fmt.Errorf("ensure kb: %w", err)
	}

	now := p.now()
	var stored domain.Document
	err := p.store.Update(ctx, record.KBID, func(tx driven.PartitionTx) error {
		if _, err := tx.Document(record.DocumentID); err == nil {
			return fmt.Errorf("document %d in kb %s: %w", record.DocumentID, record.KBID, domain.ErrAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		stored = domain.Document{
			KBID:      record.KBID,
			ID:        record.DocumentID,
			Owner:     record.Owner,
			Title:     record.Title,
			Content:   record.Content,
			Stage:     domain.StageUploaded,
			CreatedAt: now,
			UpdatedAt: now,
		}
		stored.Advance(domain.StageExtracted, now)
		if record.ExtractionError != "" {
			stored.Fail(domain.StageExtracted, record.ExtractionError, now)
		}
		if err := tx.PutDocument(stored); err != nil {
			return err
		}

		concepts := make([]domain.Concept, len(record.Concepts))
		for i, c := range record.Concepts {
			c.DocumentID = record.DocumentID
			concepts[i] = c
		}
		return tx.PutMetadata(domain.DocumentMetadata{
			KBID:       record.KBID,
			DocumentID: record.DocumentID,
			Owner:      record.Owner,
			SourceType: record.SourceType,
			Concepts:   concepts,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ingest document %d: %w", record.DocumentID, err)
	}

	if stored.ExtractionFailed() {
		p.telemetry.StageFailed(domain.StageExtracted)
		logger.With("kb_id", record.KBID, "doc", record.DocumentID).
			Warnw("extraction failed upstream", "error", record.ExtractionError)
	} else {
		p.telemetry.StageCompleted(domain.StageExtracted)
		if err := p.enqueue(ctx, job{kind: jobCluster, kb: record.KBID, doc: record.DocumentID, summary: record.Summary}); err != nil {
			return nil, err
		}
	}

	return statusOf(&stored, false), nil
}

// IngestBatch ingests records in parallel, bounded by the worker count.
func (p *PipelineService) IngestBatch(ctx context.Context, records []domain.IngestRecord) ([]domain.DocumentStatus, error) {
	statuses := make([]domain.DocumentStatus, len(records))
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range records {
		g.Go(func() error {
			status, err := p.Ingest(ctx, records[i])
			if err != nil {
				errs[i] = fmt.Errorf("record %d (kb %s, doc %d): %w",
					i, records[i].KBID, records[i].DocumentID, err)
				return nil
			}
			statuses[i] = *status
			return nil
		})
	}
	_ = g.Wait()

	return statuses, errors.Join(errs...)
}

// Notify applies a stage transition reported by an external collaborator.
func (p *PipelineService) Notify(ctx context.Context, t domain.StageTransition) error {
	if t.KBID.IsZero() {
		return fmt.Errorf("%w: kb id is required", domain.ErrInvalidInput)
	}

	switch t.Stage {
	case domain.StageExtracted:
		if t.Succeeded() {
			return fmt.Errorf("%w: successful extraction is reported through ingest", domain.ErrInvalidInput)
		}
		return p.failStage(ctx, t.KBID, t.DocumentID, domain.StageExtracted, t.Err)

	case domain.StageSummarized:
		if !t.Succeeded() {
			return p.failStage(ctx, t.KBID, t.DocumentID, domain.StageSummarized, t.Err)
		}
		if err := p.markSummarized(ctx, t.KBID, t.DocumentID, t.Summary); err != nil {
			return err
		}
		return p.enqueue(ctx, job{kind: jobSeed, kb: t.KBID, doc: t.DocumentID})

	default:
		return fmt.Errorf("%w: stage %q is not reported externally", domain.ErrInvalidInput, t.Stage)
	}
}

// Retry requeues the next stage of a document that stopped short of its
// ideas, whether its job failed or was dropped when the pipeline stopped.
// A document with nothing left to do is returned unchanged.
func (p *PipelineService) Retry(ctx context.Context, kbID domain.KBID, documentID int) (*domain.DocumentStatus, error) {
	st, err := p.Status(ctx, kbID, documentID)
	if err != nil {
		return nil, err
	}
	j, err := p.resumeJob(st)
	if err != nil || j == nil {
		return st, err
	}
	if err := p.enqueue(ctx, *j); err != nil {
		return nil, err
	}
	logger.With("kb_id", kbID, "doc", documentID).Debugw("requeued document", "stage", st.Stage)
	return st, nil
}

// RetryKB requeues every document of kbID that stopped short of its ideas
// and returns the requeued ones. Documents failed at extraction and
// documents awaiting an external summary are left alone.
func (p *PipelineService) RetryKB(ctx context.Context, kbID domain.KBID) ([]domain.DocumentStatus, error) {
	docs, err := p.store.Documents(ctx, kbID)
	if err != nil {
		return nil, err
	}
	list, err := docs.List(ctx)
	if err != nil {
		return nil, err
	}

	var requeued []domain.DocumentStatus
	var errs []error
	for _, doc := range list {
		if doc.ExtractionFailed() || doc.Stage == domain.StageSeedGenerated {
			continue
		}
		st, err := p.Status(ctx, kbID, doc.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		j, err := p.resumeJob(st)
		switch {
		case errors.Is(err, domain.ErrLLMUnavailable), err == nil && j == nil:
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}
		if err := p.enqueue(ctx, *j); err != nil {
			errs = append(errs, err)
			continue
		}
		requeued = append(requeued, *st)
	}
	if len(requeued) > 0 {
		logger.With("kb_id", kbID).Infow("requeued documents", "count", len(requeued))
	}
	return requeued, errors.Join(errs...)
}

// resumeJob picks the job that carries a document on from where it stopped.
// A nil job means there is nothing left to run.
func (p *PipelineService) resumeJob(st *domain.DocumentStatus) (*job, error) {
	j := job{kb: st.KBID, doc: st.DocumentID}
	switch {
	case st.Failure != nil && st.Failure.Stage == domain.StageExtracted:
		return nil, fmt.Errorf("%w: document %d failed extraction upstream",
			domain.ErrStageOrder, st.DocumentID)
	case st.SeedsReady:
		return nil, nil
	case st.Stage == domain.StageExtracted:
		j.kind = jobCluster
	case st.Stage == domain.StageClustered:
		if p.llm == nil {
			return nil, fmt.Errorf("%w: document %d awaits an external summary",
				domain.ErrLLMUnavailable, st.DocumentID)
		}
		j.kind = jobSummarise
	case st.Stage == domain.StageSummarized:
		j.kind = jobSeed
	default:
		return nil, nil
	}
	return &j, nil
}

// Status returns the pipeline state of one document.
func (p *PipelineService) Status(ctx context.Context, kbID domain.KBID, documentID int) (*domain.DocumentStatus, error) {
	docs, err := p.store.Documents(ctx, kbID)
	if err != nil {
		return nil, err
	}
	doc, err := docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	ready := false
	if p.seedStore != nil {
		if ready, err = p.seedStore.Completed(ctx, kbID, documentID); err != nil {
			return nil, err
		}
	}
	return statusOf(doc, ready), nil
}

// Start launches the worker pool. It returns immediately.
func (p *PipelineService) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil // Already running
	}
	if p.stopped {
		return errors.New("pipeline: cannot restart a stopped pipeline")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.group = &errgroup.Group{}

	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			p.work(ctx)
			return nil
		})
	}

	// Cancelling ctx stops the pipeline so Wait never outlives the workers.
	stopCh := p.stopCh
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-stopCh:
		}
	}()
	logger.Debug("pipeline: started %d workers", p.workers)
	return nil
}

// Stop stops accepting jobs, lets in-flight jobs finish and drops the rest.
// Documents of dropped jobs keep their stage and can be requeued with Retry.
func (p *PipelineService) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	wasRunning := p.running
	p.running = false
	if wasRunning {
		close(p.stopCh)
	}
	p.mu.Unlock()

	if wasRunning {
		_ = p.group.Wait()
	}

	p.mu.Lock()
	dropped := p.queue
	p.queue = nil
	p.mu.Unlock()
	for range dropped {
		<-p.slots
		p.pending.Done()
	}
	if len(dropped) > 0 {
		logger.Warn("pipeline: dropped %d queued jobs on stop; requeue them with retry", len(dropped))
	}
}

// Wait blocks until every queued job has run. Call it after Start.
func (p *PipelineService) Wait() {
	p.pending.Wait()
}

func (p *PipelineService) enqueue(ctx context.Context, j job) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("enqueue job: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		<-p.slots
		return errors.New("pipeline: stopped")
	}
	p.queue = append(p.queue, j)
	p.pending.Add(1)
	p.mu.Unlock()

	p.signal()
	return nil
}

func (p *PipelineService) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *PipelineService) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return job{}, false
	}
	j := p.queue[0]
	p.queue = p.queue[1:]
	<-p.slots
	if len(p.queue) > 0 {
		p.signal()
	}
	return j, true
}

func (p *PipelineService) work(ctx context.Context) {
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if j, ok := p.next(); ok {
			p.run(ctx, j)
			p.pending.Done()
			continue
		}

		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-p.wake:
		}
	}
}

func (p *PipelineService) run(ctx context.Context, j job) {
	switch j.kind {
	case jobCluster:
		if !p.cluster(ctx, j) {
			return
		}
	case jobSummarise:
		if !p.summarise(ctx, j.kb, j.doc) {
			return
		}
	}
	p.generateSeeds(ctx, j.kb, j.doc)
}

// cluster assigns the document to a cluster and takes it through
// summarisation. It reports whether the document is ready for seeding.
func (p *PipelineService) cluster(ctx context.Context, j job) bool {
	log := logger.With("kb_id", j.kb, "doc", j.doc)

	if _, err := p.clusters.Assign(ctx, j.kb, j.doc); err != nil {
		if errors.Is(err, domain.ErrStageOrder) {
			log.Debugw("skipping clustering", "reason", err)
			return false
		}
		p.recordFailure(ctx, j.kb, j.doc, domain.StageClustered, err)
		return false
	}
	p.telemetry.StageCompleted(domain.StageClustered)

	switch {
	case j.summary != "":
		if err := p.markSummarized(ctx, j.kb, j.doc, j.summary); err != nil {
			log.Warnw("apply upstream summary", "error", err)
			return false
		}
		return true
	case p.llm != nil:
		return p.summarise(ctx, j.kb, j.doc)
	default:
		log.Debugw("awaiting external summary")
		return false
	}
}

// summarise asks the LLM for a single-document summary.
func (p *PipelineService) summarise(ctx context.Context, kbID domain.KBID, documentID int) bool {
	docs, err := p.store.Documents(ctx, kbID)
	if err != nil {
		p.recordFailure(ctx, kbID, documentID, domain.StageSummarized, err)
		return false
	}
	doc, err := docs.Get(ctx, documentID)
	if err != nil {
		p.recordFailure(ctx, kbID, documentID, domain.StageSummarized, err)
		return false
	}
	if !doc.CanEnter(domain.StageSummarized) {
		logger.With("kb_id", kbID, "doc", documentID).Debugw("skipping summary", "stage", doc.Stage)
		return false
	}

	tmpl, err := p.prompts.Load(driven.PromptSummarise)
	if err != nil {
		p.recordFailure(ctx, kbID, documentID, domain.StageSummarized, err)
		return false
	}

	ctx, end := p.telemetry.StartSpan(ctx, "pipeline.summarise")
	summary, err := p.llm.Generate(ctx, fmt.Sprintf(tmpl, summaryMaxLength, doc.Content), driven.GenerateOptions{
		MaxTokens:   400,
		Temperature: 0.2,
	})
	end(err)
	if err != nil {
		p.recordFailure(ctx, kbID, documentID, domain.StageSummarized, err)
		return false
	}

	if err := p.markSummarized(ctx, kbID, documentID, summary); err != nil {
		if !errors.Is(err, domain.ErrStageOrder) {
			p.recordFailure(ctx, kbID, documentID, domain.StageSummarized, err)
		}
		return false
	}
	return true
}

func (p *PipelineService) generateSeeds(ctx context.Context, kbID domain.KBID, documentID int) {
	if p.seeds == nil {
		return
	}
	// Failures are recorded by the seed track; ingestion stays successful.
	if _, err := p.seeds.Generate(ctx, kbID, documentID); err != nil {
		logger.With("kb_id", kbID, "doc", documentID).Debugw("seed job finished with error", "error", err)
	}
}

func (p *PipelineService) markSummarized(ctx context.Context, kbID domain.KBID, documentID int, summary string) error {
	err := p.store.Update(ctx, kbID, func(tx driven.PartitionTx) error {
		doc, err := tx.Document(documentID)
		if err != nil {
			return err
		}
		if !doc.CanEnter(domain.StageSummarized) {
			return fmt.Errorf("%w: document %d at %s cannot enter %s",
				domain.ErrStageOrder, documentID, doc.Stage, domain.StageSummarized)
		}
		doc.Summary = summary
		doc.Advance(domain.StageSummarized, p.now())
		return tx.PutDocument(*doc)
	})
	if err != nil {
		return fmt.Errorf("mark document %d summarized: %w", documentID, err)
	}
	p.telemetry.StageCompleted(domain.StageSummarized)
	return nil
}

// failStage records an externally reported failure. A failure may only be
// reported for the stage the document is about to enter; extraction may
// also be reported as failed while the document waits at Extracted.
func (p *PipelineService) failStage(ctx context.Context, kbID domain.KBID, documentID int, stage domain.Stage, msg string) error {
	err := p.store.Update(ctx, kbID, func(tx driven.PartitionTx) error {
		doc, err := tx.Document(documentID)
		if err != nil {
			return err
		}
		allowed := doc.Stage == stage.Prev() || (stage == domain.StageExtracted && doc.Stage == stage)
		if !allowed {
			return fmt.Errorf("%w: document %d at %s cannot fail %s",
				domain.ErrStageOrder, documentID, doc.Stage, stage)
		}
		if stage == domain.StageExtracted {
			doc.Stage = domain.StageExtracted
		}
		doc.Fail(stage, msg, p.now())
		return tx.PutDocument(*doc)
	})
	if err != nil {
		return fmt.Errorf("record %s failure: %w", stage, err)
	}
	p.telemetry.StageFailed(stage)
	return nil
}

// recordFailure marks an internal stage failure on the document.
func (p *PipelineService) recordFailure(ctx context.Context, kbID domain.KBID, documentID int, stage domain.Stage, cause error) {
	logger.With("kb_id", kbID, "doc", documentID).Warnw("pipeline stage failed", "stage", stage, "error", cause)
	p.telemetry.StageFailed(stage)

	err := p.store.Update(ctx, kbID, func(tx driven.PartitionTx) error {
		doc, err := tx.Document(documentID)
		if err != nil {
			return err
		}
		doc.Fail(stage, cause.Error(), p.now())
		return tx.PutDocument(*doc)
	})
	if err != nil {
		logger.Warn("pipeline: mark %s failure on document %d: %v", stage, documentID, err)
	}
}

func statusOf(doc *domain.Document, seedsReady bool) *domain.DocumentStatus {
	return &domain.DocumentStatus{
		KBID:       doc.KBID,
		DocumentID: doc.ID,
		Stage:      doc.Stage,
		ClusterID:  doc.ClusterID,
		Failure:    doc.Failure,
		SeedsReady: seedsReady,
	}
}
