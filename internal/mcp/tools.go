package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/ratelimit"
	"github.com/Mike1ife/RAGentFlow/internal/simulation"
)

const (
	noResultMessage = "No simulation result yet."
	validateNudge   = "Note: this session has not called ragentflow_validate recently. Validate the graph before relying on simulation output."
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("ragentflow_get_graph",
			mcplib.WithDescription(`Return the current agent workflow graph.

The graph has four node types: classifier, gatekeeper and scorer nodes make
a judgment that the router matches against outgoing edge conditions;
responder nodes answer the query using retrieved context.

Use format "mermaid" for a diagram or "json" for the full structure.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("format",
				mcplib.Description("Output format: json (default) or mermaid"),
				mcplib.Enum(graph.FormatJSON, graph.FormatMermaid),
			),
		),
		s.handleGetGraph,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("ragentflow_validate",
			mcplib.WithDescription(`Check whether the graph is ready to simulate.

Reports readiness requirements (every responder has a prompt, the knowledge
base has chunks), agents unreachable from the entry node, edges that share a
condition and can never fire, and judgment values no edge handles.

Call this before ragentflow_simulate. canProceed=false means a run will fail
or produce a misleading result.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleValidate,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("ragentflow_simulate",
			mcplib.WithDescription(`Run a query through the graph.

Retrieves the most relevant knowledge-base chunks, walks the graph from the
entry node following the first matching edge at each judgment, and returns
the path taken with each node's judgment and the responder's answer.

Results are compact by default. Set verbose=true for full prompts and the
graph snapshot the run used.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("query",
				mcplib.Description("The user query to route through the graph"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("verbose",
				mcplib.Description("Return the full result instead of the compact view"),
			),
		),
		s.handleSimulate,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("ragentflow_last_result",
			mcplib.WithDescription(`Return the most recent simulation result, compact by default.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithBoolean("verbose",
				mcplib.Description("Return the full result instead of the compact view"),
			),
		),
		s.handleLastResult,
	)
}

func (s *Server) handleGetGraph(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	format := request.GetString("format", graph.FormatJSON)
	if format != graph.FormatJSON && format != graph.FormatMermaid {
		return errorResult(fmt.Sprintf("unknown format %q: use json or mermaid", format)), nil
	}

	g, err := s.graphs.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: get graph: %w", err)
	}
	data, err := graph.Export(g, format)
	if err != nil {
		return nil, fmt.Errorf("mcp: export graph: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	report, err := s.validator.Validate(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: validate: %w", err)
	}
	if id := sessionID(ctx); id != "" {
		s.validated.Record(id)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal validation: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) handleSimulate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.QueryRequest{Query: request.GetString("query", "")}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}
	if msg, limited := s.rateLimited(ctx); limited {
		return errorResult(msg), nil
	}

	result, err := s.simulator.Simulate(ctx, req.Query)
	if err != nil {
		if msg, ok := userFacingError(err); ok {
			return errorResult(msg), nil
		}
		return nil, fmt.Errorf("mcp: simulate: %w", err)
	}

	s.logger.Info("mcp: simulation complete", "traces", len(result.Traces), "chunks", len(result.Chunks))

	text, err := formatResult(result, request.GetBool("verbose", false))
	if err != nil {
		return nil, err
	}

	res := textResult(text)
	if id := sessionID(ctx); id != "" && !s.validated.Recent(id) {
		res.Content = append(res.Content, mcplib.TextContent{Type: "text", Text: validateNudge})
	}
	return res, nil
}

func (s *Server) handleLastResult(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	result, err := s.simulator.LastResult()
	if errors.Is(err, simulation.ErrNoResult) {
		return textResult(noResultMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: last result: %w", err)
	}

	text, err := formatResult(result, request.GetBool("verbose", false))
	if err != nil {
		return nil, err
	}
	return textResult(text), nil
}

func formatResult(result model.Result, verbose bool) (string, error) {
	var v any = compactResult(result)
	if verbose {
		v = result
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mcp: marshal result: %w", err)
	}
	return string(data), nil
}

// userFacingError maps errors the caller can act on to a tool error message.
// Anything else is an internal failure.
func userFacingError(err error) (string, bool) {
	switch {
	case errors.Is(err, graph.ErrNoEntry):
		return "the graph has no entry node; set one before simulating", true
	case errors.Is(err, graph.ErrJudgment):
		return "an agent returned a malformed judgment: " + err.Error(), true
	}
	return "", false
}

// rateLimited consumes one simulation token for the caller. The key is the
// client IP set by the HTTP transport, else the MCP session. Limiter errors
// let the call through.
func (s *Server) rateLimited(ctx context.Context) (string, bool) {
	if s.limiter == nil {
		return "", false
	}
	key := ratelimit.ClientKeyFromContext(ctx)
	if key == "" {
		if id := sessionID(ctx); id != "" {
			key = "session:" + id
		}
	}
	if key == "" {
		return "", false
	}
	d, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Warn("mcp: limiter error, allowing simulation", "error", err)
		return "", false
	}
	if d.Allowed {
		return "", false
	}
	retry := max(1, int(math.Ceil(d.RetryAfter.Seconds())))
	return fmt.Sprintf("Too many simulations. Retry in %ds.", retry), true
}
