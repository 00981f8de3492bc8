package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// State is the immutable input to a step. Steps never modify it; they return
// a Delta which the workflow folds into the next State.
type State struct {
	Query   string
	Context string
	Data    map[string]any
	Traces  []model.Trace
}

// Delta is the change a single step makes: new data entries and one trace.
type Delta struct {
	Data  map[string]any
	Trace model.Trace
}

// Apply returns the state that results from d. s is left untouched.
func (s State) Apply(d Delta) State {
	next := State{
		Query:   s.Query,
		Context: s.Context,
		Data:    make(map[string]any, len(s.Data)+len(d.Data)),
		Traces:  make([]model.Trace, 0, len(s.Traces)+1),
	}
	maps.Copy(next.Data, s.Data)
	maps.Copy(next.Data, d.Data)
	next.Traces = append(next.Traces, s.Traces...)
	if d.Trace != nil {
		next.Traces = append(next.Traces, d.Trace)
	}
	return next
}

// withRoute returns a copy of s whose last route trace records r.
func (s State) withRoute(r Route) State {
	if len(s.Traces) == 0 {
		return s
	}
	last, ok := s.Traces[len(s.Traces)-1].(model.RouteTrace)
	if !ok {
		return s
	}
	last.NextNode = r.Next
	last.MatchedCondition = r.Matched
	traces := slices.Clone(s.Traces)
	traces[len(traces)-1] = last
	s.Traces = traces
	return s
}

// Route is a router decision.
type Route struct {
	Next    string
	Matched string
}

// endRoute terminates execution.
var endRoute = Route{Next: model.EndNode, Matched: model.NoMatchedCondition}

type step func(ctx context.Context, s State) (Delta, error)

type router func(s State) Route

// Workflow is a compiled graph. It holds the snapshot it was compiled from
// and can be run any number of times.
type Workflow struct {
	graph   model.Graph
	entry   string
	steps   map[string]step
	routers map[string]router
}

// Compile binds a step to every node and a router to every node with
// outgoing edges. g is cloned so later edits to it do not affect the
// workflow.
func Compile(g model.Graph, deps Deps) (*Workflow, error) {
	if g.EntryNode == "" {
		return nil, ErrNoEntry
	}
	if _, ok := g.Nodes[g.EntryNode]; !ok {
		return nil, fmt.Errorf("%w: entry %q does not exist", ErrNoEntry, g.EntryNode)
	}
	g = g.Clone()
	w := &Workflow{
		graph:   g,
		entry:   g.EntryNode,
		steps:   make(map[string]step, len(g.Nodes)),
		routers: make(map[string]router, len(g.Edges)),
	}
	for name, node := range g.Nodes {
		h, ok := handlers[node.AgentType]
		if !ok {
			return nil, fmt.Errorf("%w: %q has unknown agent type %q", ErrInvalidNode, name, node.AgentType)
		}
		if node.AgentType == model.AgentResponder && deps.Prompts == nil {
			return nil, fmt.Errorf("graph: compile: responder %q needs a prompt renderer", name)
		}
		w.steps[name] = func(ctx context.Context, s State) (Delta, error) {
			return h(ctx, deps, s, node)
		}
	}
	for src, edges := range g.Edges {
		node, ok := g.Nodes[src]
		if !ok {
			return nil, fmt.Errorf("%w: edge source %q does not exist", ErrInvalidEdge, src)
		}
		w.routers[src] = newRouter(node, edges)
	}
	return w, nil
}

// Graph returns the snapshot the workflow was compiled from.
func (w *Workflow) Graph() model.Graph { return w.graph }

// newRouter returns the first edge, in insertion order, whose condition
// holds for the node's output value. Responders and nodes without an output
// field always end the run.
func newRouter(node model.AgentNode, edges []model.Edge) router {
	if node.AgentType == model.AgentResponder || node.OutputField == "" {
		return func(State) Route { return endRoute }
	}
	field := node.OutputField
	return func(s State) Route {
		value, ok := s.Data[field]
		if !ok {
			return endRoute
		}
		for _, e := range edges {
			if Evaluate(e.Condition, value) {
				matched := unconditionalKey
				if e.Condition != nil {
					matched = e.Condition.String()
				}
				return Route{Next: e.DestNode, Matched: matched}
			}
		}
		return endRoute
	}
}

// StepHook observes each executed node. It may be nil.
type StepHook func(ctx context.Context, node string) (context.Context, func(error))

// Run executes the workflow from the entry node until a router ends it. The
// graph is acyclic so every path is bounded by the node count; the bound is
// also enforced here.
func (w *Workflow) Run(ctx context.Context, initial State, hook StepHook) (State, error) {
	s := initial
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	current := w.entry
	for i := 0; i <= len(w.steps); i++ {
		if err := ctx.Err(); err != nil {
			return s, fmt.Errorf("graph: run: %w", err)
		}
		fn, ok := w.steps[current]
		if !ok {
			return s, fmt.Errorf("%w: %q", ErrNodeNotFound, current)
		}

		stepCtx, done := ctx, func(error) {}
		if hook != nil {
			stepCtx, done = hook(ctx, current)
		}
		d, err := fn(stepCtx, s)
		done(err)
		if err != nil {
			return s, err
		}
		s = s.Apply(d)

		r, ok := w.routers[current]
		if !ok {
			return s, nil
		}
		route := r(s)
		s = s.withRoute(route)
		if route.Next == model.EndNode {
			return s, nil
		}
		current = route.Next
	}
	return s, fmt.Errorf("%w: run exceeded %d steps", ErrCycle, len(w.steps))
}
