// Package cli provides the kbsynth command line interface built on cobra.
package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services are the inbound ports the commands drive.
type Services struct {
	KnowledgeBases driving.KnowledgeBaseService
	Pipeline       driving.PipelineService
	IdeaSeeds      driving.IdeaSeedService
	Synthesis      driving.SynthesisService
	Settings       driving.SettingsService

	// Metrics is served on /metrics by 'kbsynth serve --http'.
	Metrics prometheus.Gatherer

	// SynthesisTimeout bounds one synthesis request. Zero means no bound.
	SynthesisTimeout time.Duration
}

// Options are the global flags handed to the bootstrap function.
type Options struct {
	// Storage overrides the configured storage backend when set.
	Storage string

	// DataDir overrides the configured data directory when set.
	DataDir string

	// Trace writes OpenTelemetry spans to stderr.
	Trace bool
}

// Bootstrap builds the services for one invocation. The returned func
// releases them.
type Bootstrap func(ctx context.Context, opts Options) (*Services, func(), error)

var (
	kbService        driving.KnowledgeBaseService
	pipelineService  driving.PipelineService
	ideaSeedService  driving.IdeaSeedService
	synthesisService driving.SynthesisService
	settingsService  driving.SettingsService
	metricsGatherer  prometheus.Gatherer
	synthesisTimeout time.Duration

	bootstrap Bootstrap
	release   func()
	options   Options
	principal string
)

var rootCmd = &cobra.Command{
	Use:   "kbsynth",
	Short: "Turn what you have read into what you can build",
	Long: `kbsynth ingests documents into knowledge bases, clusters them by concept,
and suggests projects you could build from what you have studied.

Quick ideas are generated per document in the background. Full synthesis
draws on your whole default knowledge base on demand.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRunE = setup
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) { releaseServices() }

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&principal, "principal", "u", os.Getenv("USER"), "Principal (owner) to act as")
	flags.StringVar(&options.Storage, "storage", "", "Storage backend override (sqlite|memory)")
	flags.StringVar(&options.DataDir, "data-dir", "", "Data directory override")
	flags.BoolVar(&options.Trace, "trace", false, "Write trace spans to stderr")
}

// SetBootstrap registers the function that builds services on demand.
func SetBootstrap(fn Bootstrap) {
	bootstrap = fn
}

// SetServices injects already built services. Bootstrap is skipped while
// services are set.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	kbService = s.KnowledgeBases
	pipelineService = s.Pipeline
	ideaSeedService = s.IdeaSeeds
	synthesisService = s.Synthesis
	settingsService = s.Settings
	metricsGatherer = s.Metrics
	synthesisTimeout = s.SynthesisTimeout
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	// PersistentPostRun is skipped when a command fails.
	defer releaseServices()
	return rootCmd.ExecuteContext(ctx)
}

func releaseServices() {
	if release != nil {
		release()
		release = nil
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		logger.SetVerbose(true)
	}
	if kbService != nil || bootstrap == nil || !needsServices(cmd) {
		return nil
	}

	services, cleanup, err := bootstrap(cmd.Context(), options)
	if err != nil {
		return err
	}
	SetServices(services)
	release = func() {
		cleanup()
		SetServices(nil)
	}
	return nil
}

// needsServices is false for commands that only print static information.
func needsServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "completion":
			return false
		}
	}
	return true
}

func requirePrincipal() (string, error) {
	if principal == "" {
		return "", errors.New("no principal: pass --principal or set $USER")
	}
	return principal, nil
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
