package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/simulation"
)

const (
	graphMermaidURI = "ragentflow://graph/mermaid"
	lastResultURI   = "ragentflow://simulation/last"
	mimeMermaid     = "text/vnd.mermaid"
	mimeJSON        = "application/json"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			graphMermaidURI,
			"Workflow Graph",
			mcplib.WithResourceDescription("The current agent workflow graph as a Mermaid flowchart"),
			mcplib.WithMIMEType(mimeMermaid),
		),
		s.handleGraphMermaid,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			lastResultURI,
			"Last Simulation",
			mcplib.WithResourceDescription("Compact view of the most recent simulation run"),
			mcplib.WithMIMEType(mimeJSON),
		),
		s.handleLastResultResource,
	)
}

func (s *Server) handleGraphMermaid(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	g, err := s.graphs.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: graph resource: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      graphMermaidURI,
			MIMEType: mimeMermaid,
			Text:     graph.ToMermaid(g),
		},
	}, nil
}

func (s *Server) handleLastResultResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	result, err := s.simulator.LastResult()
	if errors.Is(err, simulation.ErrNoResult) {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{URI: lastResultURI, MIMEType: "text/plain", Text: noResultMessage},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: last result resource: %w", err)
	}

	data, err := json.MarshalIndent(compactResult(result), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      lastResultURI,
			MIMEType: mimeJSON,
			Text:     string(data),
		},
	}, nil
}
