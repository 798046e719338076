// Command kbsynth turns ingested documents into build suggestions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/ai"
	"github.com/custodia-labs/kbsynth/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/kbsynth/internal/adapters/driven/telemetry"
	"github.com/custodia-labs/kbsynth/internal/adapters/driving/cli"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/services"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	err := cli.Execute(ctx)
	stop()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// stores groups the three persistence ports of one backend.
type stores struct {
	kb     driven.KBStore
	kbs    driven.KnowledgeBaseStore
	seeds  driven.SeedStore
	closer func() error
}

// bootstrap wires adapters into services for one command invocation.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, func(), error) {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewProber())

	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("read settings: %w", err)
	}
	if opts.Storage != "" {
		settings.Storage.Backend = domain.StorageBackend(opts.Storage)
	}
	if opts.DataDir != "" {
		settings.Storage.DataDir = opts.DataDir
	}

	st, err := openStores(settings.Storage)
	if err != nil {
		return nil, nil, err
	}

	llm, err := ai.CreateAndValidateLLMService(ctx, &settings.LLM)
	if err != nil {
		// Commands that need the LLM report ErrLLMUnavailable themselves.
		logger.Warn("%v", err)
		llm = nil
	}
	// Background work is throttled; on-demand synthesis is not.
	background := ai.NewRateLimitedLLM(llm, settings.LLM.RatePerSecond)

	prompts, err := file.NewPromptStore("")
	if err != nil {
		closeAll(st, llm)
		return nil, nil, fmt.Errorf("open prompts: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	shutdownTracing := func(context.Context) error { return nil }
	if opts.Trace {
		shutdownTracing, err = telemetry.InitTracing(ctx, os.Stderr, version)
		if err != nil {
			closeAll(st, llm)
			return nil, nil, err
		}
	}
	tel := telemetry.New(registry)

	kbService := services.NewKnowledgeBaseService(st.kbs, st.kb, st.seeds)
	ideaSeeds := services.NewIdeaSeedService(st.kb, st.seeds, background, prompts, tel)
	pipeline := services.NewPipelineService(services.PipelineConfig{
		Store:     st.kb,
		SeedStore: st.seeds,
		Seeds:     ideaSeeds,
		LLM:       background,
		Prompts:   prompts,
		Telemetry: tel,
		Settings:  settings.Pipeline,
	})
	engine := services.NewSynthesisEngine(st.kbs, st.kb, llm, prompts, tel)
	synthesis := services.NewRetryingSynthesizer(engine, settings.Synthesis.MaxRetries)

	cleanup := func() {
		pipeline.Stop()
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("shutdown tracing: %v", err)
		}
		closeAll(st, llm)
	}

	return &cli.Services{
		KnowledgeBases:   kbService,
		Pipeline:         pipeline,
		IdeaSeeds:        ideaSeeds,
		Synthesis:        synthesis,
		Settings:         settingsService,
		Metrics:          registry,
		SynthesisTimeout: settings.Synthesis.Timeout,
	}, cleanup, nil
}

func openStores(cfg domain.StorageSettings) (*stores, error) {
	switch cfg.Backend {
	case domain.StorageMemory:
		return &stores{
			kb:     memory.NewKBStore(),
			kbs:    memory.NewKnowledgeBaseStore(),
			seeds:  memory.NewSeedStore(),
			closer: func() error { return nil },
		}, nil
	case domain.StorageSQLite:
		db, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Debug("using database %s", db.Path())
		return &stores{
			kb:     db.KBStore(),
			kbs:    db.KnowledgeBaseStore(),
			seeds:  db.SeedStore(),
			closer: db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("%w: storage backend %q", domain.ErrInvalidInput, cfg.Backend)
	}
}

func closeAll(st *stores, llm driven.LLMService) {
	var errs []error
	if llm != nil {
		errs = append(errs, llm.Close())
	}
	errs = append(errs, st.closer())
	if err := errors.Join(errs...); err != nil {
		logger.Warn("close: %v", err)
	}
}
