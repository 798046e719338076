package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kbsynth/internal/logger"
)

// Version is reported to clients in the initialize handshake.
const Version = "0.1.0"

const instructions = `kbsynth turns documents a user has studied into build ideas.
Use ingest_document to add material, list_quick_ideas for per-document ideas,
and synthesize for cross-document project suggestions once readiness
reports enough knowledge.`

// Config scopes a server to one principal.
type Config struct {
	// Principal is the owner every tool acts as. Tools never accept a
	// principal from the client.
	Principal string

	// SynthesisTimeout bounds one synthesize call. Zero means no bound.
	SynthesisTimeout time.Duration
}

// Server exposes the kbsynth services as MCP tools and resources.
type Server struct {
	ports  *Ports
	cfg    Config
	server *mcp.Server
}

// NewServer registers every tool and resource for cfg.Principal.
func NewServer(ports *Ports, cfg Config) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if cfg.Principal = strings.TrimSpace(cfg.Principal); cfg.Principal == "" {
		return nil, ErrMissingPrincipal
	}

	s := &Server{
		ports: ports,
		cfg:   cfg,
		server: mcp.NewServer(
			&mcp.Implementation{Name: "kbsynth", Version: Version},
			&mcp.ServerOptions{Instructions: instructions},
		),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Endpoint is the path the streamable HTTP transport is served on.
const Endpoint = "/mcp"

const shutdownGrace = 5 * time.Second

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler serves the streamable HTTP transport at Endpoint and a liveness
// probe at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Endpoint, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// RunHTTP serves Handler on addr until ctx is cancelled, then drains open
// requests for a few seconds.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Debug("mcp: shutting down http transport")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
