package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// unconditionalKey labels edges without a condition in reports.
const unconditionalKey = "always"

// Validator reports structural issues in the persisted graph.
type Validator struct {
	store  Store
	chunks ChunkCounter
}

// NewValidator creates a Validator.
func NewValidator(store Store, chunks ChunkCounter) *Validator {
	return &Validator{store: store, chunks: chunks}
}

// Validate loads one snapshot and runs every check against it. Findings are
// returned in the report; an error means the graph or chunk count could not
// be read.
func (v *Validator) Validate(ctx context.Context) (model.Validation, error) {
	g, err := v.store.LoadGraph(ctx)
	if err != nil {
		return model.Validation{}, fmt.Errorf("graph: validate: %w", err)
	}
	n, err := v.chunks.CountChunks(ctx)
	if err != nil {
		return model.Validation{}, fmt.Errorf("graph: validate: count chunks: %w", err)
	}
	return Analyze(g, n), nil
}

// Analyze runs all four checks on g. No check short-circuits another.
func Analyze(g model.Graph, chunkCount int) model.Validation {
	reqs := requirements(g, chunkCount)
	canProceed := true
	for _, r := range reqs {
		canProceed = canProceed && r.Passed
	}
	return model.Validation{
		CanProceed:          canProceed,
		Requirements:        reqs,
		UnreachableAgents:   Unreachable(g),
		DuplicateConditions: DuplicateConditions(g),
		MissingRoutes:       MissingRoutes(g),
	}
}

func requirements(g model.Graph, chunkCount int) []model.Requirement {
	var noPrompt []string
	for _, name := range sortedNodeNames(g) {
		n := g.Nodes[name]
		if n.AgentType == model.AgentResponder && n.PromptName == "" {
			noPrompt = append(noPrompt, name)
		}
	}
	prompts := model.Requirement{
		Name:    model.RequirementRespondersHavePrompts,
		Passed:  len(noPrompt) == 0,
		Message: "All responders have prompts",
	}
	if !prompts.Passed {
		prompts.Message = "Responder without prompt: " + strings.Join(noPrompt, ", ")
	}

	files := model.Requirement{
		Name:    model.RequirementFilesUploaded,
		Passed:  chunkCount > 0,
		Message: fmt.Sprintf("%d document chunks available for RAG", chunkCount),
	}
	if !files.Passed {
		files.Message = "No files uploaded - RAG requires at least one document"
	}
	return []model.Requirement{prompts, files}
}

// Unreachable returns the nodes not reachable from the entry node, sorted.
// With no entry node every node is unreachable.
func Unreachable(g model.Graph) []string {
	visited := make(map[string]bool, len(g.Nodes))
	if _, ok := g.Nodes[g.EntryNode]; ok {
		stack := []string{g.EntryNode}
		visited[g.EntryNode] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, e := range g.Edges[cur] {
				if !visited[e.DestNode] {
					visited[e.DestNode] = true
					stack = append(stack, e.DestNode)
				}
			}
		}
	}
	out := []string{}
	for _, name := range sortedNodeNames(g) {
		if !visited[name] {
			out = append(out, name)
		}
	}
	return out
}

// DuplicateConditions groups each node's outgoing edges by condition key and
// reports groups with more than one destination. Scorer keys include the
// operator; classifier and gatekeeper keys are the operand alone.
func DuplicateConditions(g model.Graph) []model.DuplicateCondition {
	out := []model.DuplicateCondition{}
	for _, src := range sortedEdgeSources(g) {
		node := g.Nodes[src]
		var keys []string
		groups := make(map[string][]string)
		for _, e := range g.Edges[src] {
			key := conditionKey(node.AgentType, e.Condition)
			if _, seen := groups[key]; !seen {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], e.DestNode)
		}
		for _, key := range keys {
			if len(groups[key]) > 1 {
				out = append(out, model.DuplicateCondition{SrcNode: src, DestNodes: groups[key], Condition: key})
			}
		}
	}
	return out
}

func conditionKey(t model.AgentType, c *model.Condition) string {
	if c == nil {
		return unconditionalKey
	}
	if t == model.AgentScorer {
		return c.Operator.Symbol() + " " + model.FormatValue(c.Value)
	}
	return model.FormatValue(c.Value)
}

// MissingRoutes reports judgment nodes whose outgoing edges leave some
// outcome unrouted.
func MissingRoutes(g model.Graph) []model.MissingRoute {
	out := []model.MissingRoute{}
	for _, name := range sortedNodeNames(g) {
		node := g.Nodes[name]
		if !node.AgentType.IsJudgment() {
			continue
		}
		edges := g.Edges[name]
		if len(edges) == 0 {
			out = append(out, model.MissingRoute{SrcNode: name, MissingValue: "No outgoing edges"})
			continue
		}
		var missing []string
		switch node.AgentType {
		case model.AgentClassifier:
			missing = missingOptions(node, edges)
		case model.AgentGatekeeper:
			missing = missingBranches(edges)
		case model.AgentScorer:
			if singleOperator(edges) {
				missing = []string{"Consider adding more comparisons"}
			}
		}
		if len(missing) > 0 {
			out = append(out, model.MissingRoute{SrcNode: name, MissingValue: strings.Join(missing, " / ")})
		}
	}
	return out
}

func missingOptions(node model.AgentNode, edges []model.Edge) []string {
	covered := make(map[string]bool)
	for _, e := range edges {
		if e.Condition == nil {
			return nil
		}
		if s, ok := e.Condition.Value.(string); ok && e.Condition.Operator == model.OpEq {
			covered[s] = true
		}
	}
	var missing []string
	if node.DecisionConfig == nil {
		return nil
	}
	for _, opt := range node.DecisionConfig.Options {
		if !covered[opt] {
			missing = append(missing, opt)
		}
	}
	return missing
}

func missingBranches(edges []model.Edge) []string {
	var coverTrue, coverFalse bool
	for _, e := range edges {
		if e.Condition == nil {
			return nil
		}
		if b, ok := e.Condition.Value.(bool); ok {
			coverTrue = coverTrue || b
			coverFalse = coverFalse || !b
		}
	}
	var missing []string
	if !coverTrue {
		missing = append(missing, "True")
	}
	if !coverFalse {
		missing = append(missing, "False")
	}
	return missing
}

func singleOperator(edges []model.Edge) bool {
	ops := make(map[string]bool)
	for _, e := range edges {
		if e.Condition == nil {
			ops[unconditionalKey] = true
			continue
		}
		ops[string(e.Condition.Operator)] = true
	}
	return len(ops) == 1
}

func sortedNodeNames(g model.Graph) []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sortedEdgeSources(g model.Graph) []string {
	srcs := make([]string, 0, len(g.Edges))
	for src := range g.Edges {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	return srcs
}
