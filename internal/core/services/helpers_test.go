package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// scriptedLLM returns queued responses in order, repeating the last one.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	delay     time.Duration
	prompts   []string
}

func (m *scriptedLLM) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	n := len(m.prompts)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	if n > len(m.responses) {
		n = len(m.responses)
	}
	return m.responses[n-1], nil
}

func (m *scriptedLLM) ModelName() string { return "scripted" }
func (m *scriptedLLM) Ping(context.Context) error { return nil }
func (m *scriptedLLM) Close() error { return nil }

func (m *scriptedLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *scriptedLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// stubPrompts serves fixed templates.
type stubPrompts struct{}

func (stubPrompts) Load(name string) (string, error) {
	switch name {
	case driven.PromptSummarise:
		return "Summarise in %d characters:\n%s", nil
	case driven.PromptIdeaSeeds:
		return "Give %d to %d ideas for:\n%s", nil
	case driven.PromptSynthesis:
		return "Suggest %d projects from:\n%s", nil
	}
	return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
}

func (stubPrompts) Reload() {}

// recordingTelemetry counts observations.
type recordingTelemetry struct {
	mu        sync.Mutex
	completed map[domain.Stage]int
	failed    map[domain.Stage]int
	seeds     int
	outcomes  []string
}

func newRecordingTelemetry() *recordingTelemetry {
	return &recordingTelemetry{
		completed: make(map[domain.Stage]int),
		failed:    make(map[domain.Stage]int),
	}
}

func (r *recordingTelemetry) StageCompleted(s domain.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[s]++
}

func (r *recordingTelemetry) StageFailed(s domain.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[s]++
}

func (r *recordingTelemetry) SeedsGenerated(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seeds += n
}

func (r *recordingTelemetry) SynthesisFinished(outcome string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (r *recordingTelemetry) Failed(s domain.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[s]
}

// fixtureDoc describes one document written straight into a partition.
type fixtureDoc struct {
	id       int
	owner    string
	title    string
	summary  string
	stage    domain.Stage
	concepts []string
}

// putDocs writes documents and metadata into kb without running the pipeline.
func putDocs(t *testing.T, store *memory.KBStore, kb domain.KBID, docs ...fixtureDoc) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureKB(ctx, kb))
	require.NoError(t, store.Update(ctx, kb, func(tx driven.PartitionTx) error {
		for _, d := range docs {
			stage := d.stage
			if stage == "" {
				stage = domain.StageExtracted
			}
			if err := tx.PutDocument(domain.Document{
				ID:      d.id,
				Owner:   d.owner,
				Title:   d.title,
				Content: d.title + " content",
				Summary: d.summary,
				Stage:   stage,
			}); err != nil {
				return err
			}
			concepts := make([]domain.Concept, len(d.concepts))
			for i, name := range d.concepts {
				concepts[i] = domain.Concept{Name: name, Confidence: 0.9 - float64(i)*0.1, DocumentID: d.id}
			}
			if err := tx.PutMetadata(domain.DocumentMetadata{
				DocumentID: d.id,
				Owner:      d.owner,
				Concepts:   concepts,
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

// putCluster writes a cluster into kb.
func putCluster(t *testing.T, store *memory.KBStore, kb domain.KBID, c domain.Cluster) {
	t.Helper()
	part, err := store.Clusters(context.Background(), kb)
	require.NoError(t, err)
	require.NoError(t, part.Put(context.Background(), c))
}

func getDoc(t *testing.T, store driven.KBStore, kb domain.KBID, id int) *domain.Document {
	t.Helper()
	part, err := store.Documents(context.Background(), kb)
	require.NoError(t, err)
	doc, err := part.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

// configValue returns the raw value stored under key, failing when absent.
func configValue(t *testing.T, store driven.ConfigStore, key string) any {
	t.Helper()
	v, ok := store.Get(key)
	require.True(t, ok, "config key %s not set", key)
	return v
}
