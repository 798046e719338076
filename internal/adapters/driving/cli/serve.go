package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/inbox"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion pipeline until interrupted",
	Long: `Run the pipeline workers in the foreground.

With --inbox, JSON record files dropped into the directory are ingested and
moved to done/ or failed/. With --http, Prometheus metrics are served on
/metrics and a liveness probe on /healthz.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("inbox", "", "Directory to watch for JSON record files")
	serveCmd.Flags().String("http", "", "Address for /metrics and /healthz, e.g. :9464")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	inboxDir, _ := cmd.Flags().GetString("inbox") //nolint:errcheck // flag is registered above
	httpAddr, _ := cmd.Flags().GetString("http")  //nolint:errcheck // flag is registered above

	ctx := commandContext(cmd)
	if err := pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if inboxDir != "" {
		watcher, err := inbox.NewWatcher(inboxDir, pipelineService)
		if err != nil {
			return err
		}
		cmd.Printf("Watching %s for records\n", watcher.Dir())
		g.Go(func() error { return watcher.Run(ctx) })
	}

	if httpAddr != "" {
		srv := &http.Server{
			Addr:              httpAddr,
			Handler:           newServeMux(metricsGatherer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		cmd.Printf("Serving metrics on %s/metrics\n", httpAddr)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	logger.Section("serve")
	logger.Info("pipeline running, press Ctrl+C to stop")
	err := g.Wait()
	pipelineService.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cmd.Println("Stopped.")
	return nil
}

func newServeMux(gatherer prometheus.Gatherer) *http.ServeMux {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
