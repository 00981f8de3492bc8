package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// review-run: walk through the last simulation and explain its routing.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-run",
			mcplib.WithPromptDescription("Review a simulation run and explain each routing decision"),
			mcplib.WithArgument("query",
				mcplib.ArgumentDescription("Query to simulate first; omit to review the last run"),
			),
		),
		s.handleReviewRunPrompt,
	)

	// agent-setup: system prompt snippet describing the validate-then-simulate workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("agent-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining how to work with a RAGentFlow graph"),
		),
		s.handleAgentSetupPrompt,
	)
}

func (s *Server) handleReviewRunPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	step := "1. CALL ragentflow_last_result with verbose=true to load the most recent run."
	description := "Review the last simulation run"
	if query := request.Params.Arguments["query"]; query != "" {
		step = fmt.Sprintf("1. CALL ragentflow_validate, then ragentflow_simulate with query=%q and verbose=true.", query)
		description = fmt.Sprintf("Simulate and review %q", query)
	}

	return &mcplib.GetPromptResult{
		Description: description,
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: step + `

2. For each trace in order, state the agent, its judgment value and reason,
   and the condition that sent execution to the next node.

3. Check the retrieved chunks. Say whether they support the responder's answer
   and point out any answer claims the chunks do not back.

4. If a judgment looks wrong, name the agent and suggest a concrete change to
   its decision config or its outgoing edge conditions.`,
				},
			},
		},
	}, nil
}

func (s *Server) handleAgentSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "RAGentFlow workflow instructions",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to a RAGentFlow agent graph.

Classifier, gatekeeper and scorer agents each return a judgment; the first
outgoing edge whose condition matches decides the next agent. Responder agents
answer the query from the retrieved knowledge-base chunks and end the run.

Before simulating, CALL ragentflow_validate. Only simulate when canProceed is
true, and mention any unreachable agents or missing routes it reports.

To inspect the graph, CALL ragentflow_get_graph or read ragentflow://graph/mermaid.`,
				},
			},
		},
	}, nil
}
