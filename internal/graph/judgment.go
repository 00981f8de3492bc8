package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/service/llm"
)

// Completer is the completion collaborator used by every node type.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// Deps are the collaborators a compiled workflow calls while running.
type Deps struct {
	Completer Completer
	Prompts   PromptRenderer
	Options   llm.Options
}

// handler executes one node against an immutable state and returns the delta
// to fold into the next state.
type handler func(ctx context.Context, deps Deps, s State, node model.AgentNode) (Delta, error)

// handlers is the closed dispatch table for agent types.
var handlers = map[model.AgentType]handler{
	model.AgentClassifier: judge,
	model.AgentGatekeeper: judge,
	model.AgentScorer:     judge,
	model.AgentResponder:  respond,
}

const classifierPrompt = `Classify this text into one of these categories:
%s

Text: %q

Return JSON: {
    "value": "<category>",
    "reason": "<brief explanation why you chose this category>"
}`

const gatekeeperPrompt = `Given the text, answer the question with true or false only.

Text: %q
Question: %s

Return JSON: {
    "value": true/false,
    "reason": "<brief explanation for your decision>"
}`

const scorerPrompt = `Given the text, compute a numeric value based on the following instruction.

Text: %q
Instruction: %s

Return JSON: {
    "value": <number>,
    "reason": "<brief explanation for this score>"
}`

// JudgmentPrompt builds the structured-output prompt for a judgment node.
func JudgmentPrompt(node model.AgentNode, query string) string {
	cfg := model.DecisionConfig{}
	if node.DecisionConfig != nil {
		cfg = *node.DecisionConfig
	}
	switch node.AgentType {
	case model.AgentClassifier:
		opts, _ := json.Marshal(cfg.Options)
		return fmt.Sprintf(classifierPrompt, opts, query)
	case model.AgentGatekeeper:
		return fmt.Sprintf(gatekeeperPrompt, query, cfg.Question)
	case model.AgentScorer:
		return fmt.Sprintf(scorerPrompt, query, cfg.Instruction)
	}
	return ""
}

// Judgment is a parsed judgment response.
type Judgment struct {
	Value  any
	Reason string
}

// ParseJudgment decodes a {"value": ..., "reason": ...} response and checks
// the value against t: string for classifiers, boolean for gatekeepers and
// number for scorers. A single surrounding Markdown code fence is tolerated.
// reason is optional. Every other deviation fails with ErrJudgment.
func ParseJudgment(t model.AgentType, response string) (Judgment, error) {
	body := stripFence(response)
	var raw struct {
		Value  json.RawMessage `json:"value"`
		Reason *string         `json:"reason"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrJudgment, err)
	}
	if dec.More() {
		return Judgment{}, fmt.Errorf("%w: trailing data after JSON object", ErrJudgment)
	}
	if raw.Value == nil {
		return Judgment{}, fmt.Errorf("%w: missing \"value\"", ErrJudgment)
	}
	v, err := model.DecodeScalar(raw.Value)
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: value: %v", ErrJudgment, err)
	}

	var ok bool
	switch t {
	case model.AgentClassifier:
		_, ok = v.(string)
	case model.AgentGatekeeper:
		_, ok = v.(bool)
	case model.AgentScorer:
		_, ok = v.(float64)
	}
	if !ok {
		return Judgment{}, fmt.Errorf("%w: %s expects %s, got %s", ErrJudgment, t, expectedKind(t), string(raw.Value))
	}

	j := Judgment{Value: v}
	if raw.Reason != nil {
		j.Reason = *raw.Reason
	}
	return j, nil
}

func expectedKind(t model.AgentType) string {
	switch t {
	case model.AgentClassifier:
		return "a string"
	case model.AgentGatekeeper:
		return "a boolean"
	case model.AgentScorer:
		return "a number"
	}
	return "no judgment"
}

func stripFence(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSuffix(s[3:], "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}

func judge(ctx context.Context, deps Deps, s State, node model.AgentNode) (Delta, error) {
	out, err := deps.Completer.Complete(ctx, JudgmentPrompt(node, s.Query), deps.Options)
	if err != nil {
		return Delta{}, fmt.Errorf("graph: %s %q: complete: %w", node.AgentType, node.Name, err)
	}
	j, err := ParseJudgment(node.AgentType, out)
	if err != nil {
		return Delta{}, fmt.Errorf("graph: %s %q: %w", node.AgentType, node.Name, err)
	}
	return Delta{
		Data: map[string]any{node.OutputField: j.Value},
		Trace: model.RouteTrace{
			Agent:            node.Name,
			AgentType:        node.AgentType,
			OutputField:      node.OutputField,
			OutputValue:      j.Value,
			Reason:           j.Reason,
			NextNode:         model.EndNode,
			MatchedCondition: model.NoMatchedCondition,
		},
	}, nil
}

func respond(ctx context.Context, deps Deps, s State, node model.AgentNode) (Delta, error) {
	prompt, err := deps.Prompts.Render(ctx, node.PromptName, s.Query, s.Context)
	if err != nil {
		return Delta{}, fmt.Errorf("graph: responder %q: render prompt %q: %w", node.Name, node.PromptName, err)
	}
	out, err := deps.Completer.Complete(ctx, prompt, deps.Options)
	if err != nil {
		return Delta{}, fmt.Errorf("graph: responder %q: complete: %w", node.Name, err)
	}
	return Delta{
		Trace: model.RespondTrace{
			Agent:     node.Name,
			AgentType: node.AgentType,
			Prompt:    prompt,
			Output:    out,
		},
	}, nil
}
