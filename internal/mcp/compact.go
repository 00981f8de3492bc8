package mcp

import (
	"github.com/Mike1ife/RAGentFlow/internal/model"
)

const (
	maxCompactPrompt  = 300
	maxCompactContent = 200
)

// compactResult returns a smaller view of a run for MCP responses. The
// graph snapshot and the assembled context are dropped; rendered prompts
// and chunk bodies are truncated.
func compactResult(r model.Result) map[string]any {
	chunks := make([]map[string]any, len(r.Chunks))
	for i, c := range r.Chunks {
		chunks[i] = map[string]any{
			"fileName":   c.FileName,
			"chunkIndex": c.ChunkIndex,
			"score":      c.Score,
			"content":    truncate(c.Content, maxCompactContent),
		}
	}

	traces := make([]map[string]any, 0, len(r.Traces))
	path := make([]string, 0, len(r.Traces))
	var answer string
	for _, t := range r.Traces {
		path = append(path, t.AgentName())
		switch t := t.(type) {
		case model.RouteTrace:
			traces = append(traces, map[string]any{
				"agent":            t.Agent,
				"agentType":        t.AgentType,
				"outputField":      t.OutputField,
				"outputValue":      t.OutputValue,
				"reason":           t.Reason,
				"nextNode":         t.NextNode,
				"matchedCondition": t.MatchedCondition,
			})
		case model.RespondTrace:
			answer = t.Output
			traces = append(traces, map[string]any{
				"agent":     t.Agent,
				"agentType": t.AgentType,
				"prompt":    truncate(t.Prompt, maxCompactPrompt),
				"output":    t.Output,
			})
		}
	}

	m := map[string]any{
		"query":       r.Query,
		"path":        path,
		"traces":      traces,
		"chunks":      chunks,
		"completedAt": r.CompletedAt,
	}
	if answer != "" {
		m["answer"] = answer
	}
	return m
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
