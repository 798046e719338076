package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

const uriScheme = "kbsynth://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "knowledge-bases",
		Name:        "knowledge-bases",
		Description: "Knowledge bases you own",
		MIMEType:    "application/json",
	}, s.handleKnowledgeBasesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "kb/{kbId}/ideas",
		Name:        "kb-ideas",
		Description: "Quick build ideas stored for one knowledge base",
		MIMEType:    "application/json",
	}, s.handleIdeasResource)
}

func (s *Server) handleKnowledgeBasesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.KnowledgeBases == nil {
		return jsonResource(req.Params.URI, []any{})
	}

	kbs, err := s.ports.KnowledgeBases.List(ctx, s.cfg.Principal)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge bases: %w", err)
	}

	type kbInfo struct {
		ID        string `json:"id"`
		Default   bool   `json:"default"`
		CreatedAt string `json:"created_at"`
	}
	infos := make([]kbInfo, len(kbs))
	for i, kb := range kbs {
		infos[i] = kbInfo{
			ID:        kb.ID.String(),
			Default:   kb.Default,
			CreatedAt: kb.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return jsonResource(req.Params.URI, infos)
}

func (s *Server) handleIdeasResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	kbID := extractKBID(req.Params.URI)
	if kbID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	owned, err := s.ownedKB(ctx, kbID)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	seeds, err := s.ports.IdeaSeeds.List(ctx, owned, domain.SeedFilter{Limit: domain.MaxSeedListLimit})
	if err != nil {
		return nil, fmt.Errorf("listing ideas: %w", err)
	}

	ideas := make([]IdeaOutput, len(seeds))
	for i, seed := range seeds {
		ideas[i] = IdeaOutput{
			DocumentID:  seed.DocumentID,
			Title:       seed.Title,
			Description: seed.Description,
			Difficulty:  seed.Difficulty.String(),
			CreatedAt:   seed.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return jsonResource(req.Params.URI, ideas)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractKBID extracts the knowledge base ID from a URI like kbsynth://kb/{kbId}/ideas.
func extractKBID(uri string) string {
	const prefix = uriScheme + "kb/"
	const suffix = "/ideas"

	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
