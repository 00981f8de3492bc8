// Package mcp implements the Model Context Protocol server for RAGentFlow.
//
// Agents can inspect the workflow graph, validate it and run simulations
// through MCP tools, and read the graph as a Mermaid diagram resource.
package mcp

import (
	"context"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/ratelimit"
)

// GraphReader returns the current graph.
type GraphReader interface {
	Graph(ctx context.Context) (model.Graph, error)
}

// Validator reports whether the current graph can be simulated.
type Validator interface {
	Validate(ctx context.Context) (model.Validation, error)
}

// Simulator runs queries and keeps the last result.
type Simulator interface {
	Simulate(ctx context.Context, query string) (model.Result, error)
	LastResult() (model.Result, error)
}

// validationWindow is how long a validate call counts as recent for the
// simulate nudge.
const validationWindow = 10 * time.Minute

// Server wraps the MCP server with the graph services.
type Server struct {
	mcpServer *mcpserver.MCPServer
	graphs    GraphReader
	validator Validator
	simulator Simulator
	limiter   ratelimit.Limiter
	logger    *slog.Logger
	validated *validationTracker
}

// New creates and configures a new MCP server with all resources, tools
// and prompts. limiter throttles ragentflow_simulate; nil disables it.
func New(graphs GraphReader, validator Validator, simulator Simulator, limiter ratelimit.Limiter, logger *slog.Logger, version string) *Server {
	s := &Server{
		graphs:    graphs,
		validator: validator,
		simulator: simulator,
		limiter:   limiter,
		logger:    logger,
		validated: newValidationTracker(validationWindow),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"ragentflow",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(`RAGentFlow runs queries through an agent workflow graph.
Call ragentflow_validate before ragentflow_simulate; a graph with canProceed=false will not produce useful runs.
Read ragentflow://graph/mermaid to see the graph's shape.`),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// sessionID returns the MCP session of the caller, or "" outside a session.
func sessionID(ctx context.Context) string {
	session := mcpserver.ClientSessionFromContext(ctx)
	if session == nil {
		return ""
	}
	return session.SessionID()
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
