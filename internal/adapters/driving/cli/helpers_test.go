package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbsynth/internal/adapters/driven/telemetry"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/services"
)

// routingLLM answers by prompt kind, so one fake serves the whole pipeline.
type routingLLM struct {
	mu          sync.Mutex
	summary     string
	ideas       string
	suggestions string
	calls       map[string]int
}

func newRoutingLLM() *routingLLM {
	return &routingLLM{
		summary: "A short summary.",
		ideas: `{"ideas": [
			{"title": "Log shipper", "description": "Ship logs", "difficulty": "beginner"},
			{"title": "Consensus lab", "description": "Play with raft", "difficulty": "advanced"}
		]}`,
		suggestions: `{"suggestions": [
			{"title": "Replicated KV", "description": "Raft backed store", "knowledge_coverage": "high", "concepts_used": ["raft"]},
			{"title": "Toy", "description": "Thin", "knowledge_coverage": "low"}
		]}`,
		calls: make(map[string]int),
	}
}

func (l *routingLLM) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case strings.HasPrefix(prompt, "SUMMARISE"):
		l.calls[driven.PromptSummarise]++
		return l.summary, nil
	case strings.HasPrefix(prompt, "IDEAS"):
		l.calls[driven.PromptIdeaSeeds]++
		return l.ideas, nil
	case strings.HasPrefix(prompt, "SYNTHESIS"):
		l.calls[driven.PromptSynthesis]++
		return l.suggestions, nil
	}
	return "", fmt.Errorf("unexpected prompt %q", prompt)
}

func (l *routingLLM) ModelName() string       { return "routing" }
func (l *routingLLM) Ping(context.Context) error { return nil }
func (l *routingLLM) Close() error            { return nil }

func (l *routingLLM) Calls(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[kind]
}

type testPrompts struct{}

func (testPrompts) Load(name string) (string, error) {
	switch name {
	case driven.PromptSummarise:
		return "SUMMARISE %d\n%s", nil
	case driven.PromptIdeaSeeds:
		return "IDEAS %d-%d\n%s", nil
	case driven.PromptSynthesis:
		return "SYNTHESIS %d\n%s", nil
	}
	return "", domain.ErrNotFound
}

func (testPrompts) Reload() {}

// testEnv holds real services over memory stores.
type testEnv struct {
	kbStore  *memory.KBStore
	kbs      *memory.KnowledgeBaseStore
	seeds    *memory.SeedStore
	config   *memory.ConfigStore
	llm      *routingLLM
	registry *prometheus.Registry

	kbService *services.KnowledgeBaseService
	pipeline  *services.PipelineService
}

// setupTestServices installs real services for the duration of the test.
// A nil llm leaves the LLM unconfigured.
func setupTestServices(t *testing.T, llm *routingLLM) *testEnv {
	t.Helper()

	env := &testEnv{
		kbStore:  memory.NewKBStore(),
		kbs:      memory.NewKnowledgeBaseStore(),
		seeds:    memory.NewSeedStore(),
		config:   memory.NewConfigStore(),
		llm:      llm,
		registry: prometheus.NewRegistry(),
	}

	var model driven.LLMService
	if llm != nil {
		model = llm
	}
	tel := telemetry.New(env.registry)

	env.kbService = services.NewKnowledgeBaseService(env.kbs, env.kbStore, env.seeds)
	ideas := services.NewIdeaSeedService(env.kbStore, env.seeds, model, testPrompts{}, tel)
	env.pipeline = services.NewPipelineService(services.PipelineConfig{
		Store:     env.kbStore,
		SeedStore: env.seeds,
		Seeds:     ideas,
		LLM:       model,
		Prompts:   testPrompts{},
		Telemetry: tel,
		Settings:  domain.PipelineSettings{Workers: 2, QueueSize: 64},
	})
	synth := services.NewSynthesisEngine(env.kbs, env.kbStore, model, testPrompts{}, tel)

	SetServices(&Services{
		KnowledgeBases:   env.kbService,
		Pipeline:         env.pipeline,
		IdeaSeeds:        ideas,
		Synthesis:        services.NewRetryingSynthesizer(synth, 0),
		Settings:         services.NewSettingsService(env.config, nil),
		Metrics:          env.registry,
		SynthesisTimeout: time.Minute,
	})
	t.Cleanup(func() {
		env.pipeline.Stop()
		SetServices(nil)
	})
	return env
}

// createKB creates a knowledge base for owner and returns its id.
func (e *testEnv) createKB(t *testing.T, owner string, makeDefault bool) domain.KBID {
	t.Helper()
	kb, err := e.kbService.Create(context.Background(), owner, makeDefault)
	require.NoError(t, err)
	return kb.ID
}

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := Execute(context.Background())
	return buf.String(), err
}

// runCLIWithInput is runCLI with stdin.
func runCLIWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := Execute(context.Background())
	return buf.String(), err
}

// resetFlags restores every flag to its default so tests do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// writeRecords writes a JSON payload into a temp file.
func writeRecords(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	return path
}

// recordsJSON renders n documents for owner, sharing the "raft" concept so
// they cluster together, each adding two concepts of its own.
func recordsJSON(kb domain.KBID, owner string, n int) string {
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprintf(
			`{"kb_id": %q, "document_id": %d, "owner": %q, "title": "Doc %d", "content": "text %d",
			  "concepts": [{"name": "raft", "confidence": 0.9},
			               {"name": "topic-%d-a", "confidence": 0.8},
			               {"name": "topic-%d-b", "confidence": 0.7}]}`,
			kb, i, owner, i, i, i, i))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// newSettingsWithProbe rebuilds the settings service over env's config
// store with a custom LLM probe.
func newSettingsWithProbe(env *testEnv, p driven.LLMProbe) *services.SettingsService {
	return services.NewSettingsService(env.config, p)
}

// configValue returns the raw value stored under key, failing when absent.
func configValue(t *testing.T, store driven.ConfigStore, key string) any {
	t.Helper()
	v, ok := store.Get(key)
	require.True(t, ok, "config key %s not set", key)
	return v
}
