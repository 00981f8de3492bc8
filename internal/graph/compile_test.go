package graph_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/testutil"
)

func deps(c graph.Completer) graph.Deps {
	return graph.Deps{Completer: c, Prompts: testutil.StaticPrompts{}}
}

func TestRun_BillingQuery(t *testing.T) {
	completer := testutil.JudgmentByKeyword(map[string]string{"charged": `"billing"`})
	w, err := graph.Compile(graph.DefaultGraph(), deps(completer))
	require.NoError(t, err)

	final, err := w.Run(context.Background(), graph.State{
		Query:   "Why was I charged twice this month?",
		Context: "[Source: faq.pdf]\nRefunds take 5 days.\n\n",
	}, nil)
	require.NoError(t, err)

	require.Len(t, final.Traces, 2)
	route, ok := final.Traces[0].(model.RouteTrace)
	require.True(t, ok)
	assert.Equal(t, model.RouteTrace{
		Agent:            graph.DefaultEntry,
		AgentType:        model.AgentClassifier,
		OutputField:      "category",
		OutputValue:      "billing",
		Reason:           "matched charged",
		NextNode:         graph.DefaultBillingResponder,
		MatchedCondition: "eq billing",
	}, route)

	answer, ok := final.Traces[1].(model.RespondTrace)
	require.True(t, ok)
	assert.Equal(t, graph.DefaultBillingResponder, answer.Agent)
	assert.Equal(t, "billing_support|Why was I charged twice this month?|[Source: faq.pdf]\nRefunds take 5 days.\n\n", answer.Prompt)
	assert.True(t, strings.HasPrefix(answer.Output, "answer: "))
	assert.Equal(t, "billing", final.Data["category"])
}

func TestRun_FirstMatchingEdgeWins(t *testing.T) {
	g := build("s",
		[]model.AgentNode{scorer("s"), responder("first", "p1"), responder("second", "p2"), responder("fallback", "p3")},
		edge("s", "first", cond(model.OpGt, 5.0)),
		edge("s", "second", cond(model.OpGte, 7.0)),
		edge("s", "fallback", nil),
	)
	completer := &testutil.FakeCompleter{Fn: func(p string) (string, error) {
		if strings.Contains(p, "Return JSON") {
			return `{"value": 8, "reason": "high"}`, nil
		}
		return "ok", nil
	}}
	w, err := graph.Compile(g, deps(completer))
	require.NoError(t, err)

	for range 10 {
		final, err := w.Run(context.Background(), graph.State{Query: "q"}, nil)
		require.NoError(t, err)
		require.Len(t, final.Traces, 2)
		route := final.Traces[0].(model.RouteTrace)
		assert.Equal(t, "first", route.NextNode)
		assert.Equal(t, 8.0, route.OutputValue)
		assert.Equal(t, "gt 5", route.MatchedCondition)
		assert.Equal(t, "first", final.Traces[1].AgentName())
	}
}

func TestRun_UnconditionalFallback(t *testing.T) {
	g := build("g",
		[]model.AgentNode{gatekeeper("g"), responder("yes", "p"), responder("other", "p")},
		edge("g", "yes", cond(model.OpEq, true)),
		edge("g", "other", nil),
	)
	completer := testutil.JudgmentByKeyword(map[string]string{"Question": "false"})
	w, err := graph.Compile(g, deps(completer))
	require.NoError(t, err)

	final, err := w.Run(context.Background(), graph.State{Query: "q"}, nil)
	require.NoError(t, err)
	route := final.Traces[0].(model.RouteTrace)
	assert.Equal(t, "other", route.NextNode)
	assert.Equal(t, "always", route.MatchedCondition)
}

func TestRun_NoMatchingEdgeEnds(t *testing.T) {
	completer := testutil.JudgmentByKeyword(map[string]string{"Classify": `"shipping"`})
	w, err := graph.Compile(graph.DefaultGraph(), deps(completer))
	require.NoError(t, err)

	final, err := w.Run(context.Background(), graph.State{Query: "where is my parcel"}, nil)
	require.NoError(t, err)
	require.Len(t, final.Traces, 1)
	route := final.Traces[0].(model.RouteTrace)
	assert.Equal(t, model.EndNode, route.NextNode)
	assert.Equal(t, model.NoMatchedCondition, route.MatchedCondition)
	assert.Equal(t, "shipping", route.OutputValue)
}

func TestRun_MultiHop(t *testing.T) {
	g := build("c",
		[]model.AgentNode{classifier("c", "billing", "technical"), gatekeeper("urgent"), scorer("sev"), responder("page", "oncall"), responder("ticket", "queue")},
		edge("c", "urgent", cond(model.OpEq, "technical")),
		edge("urgent", "sev", cond(model.OpEq, true)),
		edge("urgent", "ticket", cond(model.OpEq, false)),
		edge("sev", "page", cond(model.OpGte, 8.0)),
		edge("sev", "ticket", cond(model.OpLt, 8.0)),
	)
	completer := testutil.JudgmentByKeyword(map[string]string{
		"Classify": `"technical"`,
		"Question": "true",
		"Rate":     "9",
	})
	w, err := graph.Compile(g, deps(completer))
	require.NoError(t, err)

	var visited []string
	hook := func(ctx context.Context, node string) (context.Context, func(error)) {
		visited = append(visited, node)
		return ctx, func(error) {}
	}
	final, err := w.Run(context.Background(), graph.State{Query: "prod is down"}, hook)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "urgent", "sev", "page"}, visited)
	require.Len(t, final.Traces, 4)
	assert.Equal(t, "gte 8", final.Traces[2].(model.RouteTrace).MatchedCondition)
	assert.Equal(t, 9.0, final.Data["sev_out"])
	assert.Equal(t, true, final.Data["urgent_out"])
}

func TestRun_MalformedJudgmentFails(t *testing.T) {
	completer := &testutil.FakeCompleter{Fn: func(string) (string, error) {
		return "I think it is billing.", nil
	}}
	w, err := graph.Compile(graph.DefaultGraph(), deps(completer))
	require.NoError(t, err)

	var hookErr error
	hook := func(ctx context.Context, _ string) (context.Context, func(error)) {
		return ctx, func(err error) { hookErr = err }
	}
	_, err = w.Run(context.Background(), graph.State{Query: "q"}, hook)
	require.ErrorIs(t, err, graph.ErrJudgment)
	assert.ErrorIs(t, hookErr, graph.ErrJudgment)
	assert.Len(t, completer.Prompts(), 1, "no responder runs after a failed judgment")
}

func TestRun_CompleterErrorFails(t *testing.T) {
	boom := errors.New("upstream unavailable")
	completer := &testutil.FakeCompleter{Fn: func(string) (string, error) { return "", boom }}
	w, err := graph.Compile(graph.DefaultGraph(), deps(completer))
	require.NoError(t, err)

	_, err = w.Run(context.Background(), graph.State{Query: "q"}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestRun_CanceledContext(t *testing.T) {
	w, err := graph.Compile(graph.DefaultGraph(), deps(testutil.JudgmentByKeyword(nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Run(ctx, graph.State{Query: "q"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompile(t *testing.T) {
	_, err := graph.Compile(model.NewGraph(), graph.Deps{})
	assert.ErrorIs(t, err, graph.ErrNoEntry)

	g := graph.DefaultGraph()
	g.EntryNode = "gone"
	_, err = graph.Compile(g, graph.Deps{})
	assert.ErrorIs(t, err, graph.ErrNoEntry)

	_, err = graph.Compile(graph.DefaultGraph(), graph.Deps{})
	assert.Error(t, err, "responders need a prompt renderer")

	g = build("x", []model.AgentNode{{Name: "x", AgentType: "router"}})
	_, err = graph.Compile(g, deps(nil))
	assert.ErrorIs(t, err, graph.ErrInvalidNode)
}

func TestCompile_SnapshotIsIsolated(t *testing.T) {
	g := graph.DefaultGraph()
	w, err := graph.Compile(g, deps(testutil.JudgmentByKeyword(nil)))
	require.NoError(t, err)

	g.Nodes[graph.DefaultEntry].DecisionConfig.Options[0] = "mutated"
	g.Edges[graph.DefaultEntry] = nil
	delete(g.Nodes, graph.DefaultTechResponder)

	snap := w.Graph()
	assert.Equal(t, graph.DefaultGraph(), snap)
}

func TestState_ApplyDoesNotMutate(t *testing.T) {
	s := graph.State{Query: "q", Data: map[string]any{"a": 1.0}}
	next := s.Apply(graph.Delta{
		Data:  map[string]any{"b": true},
		Trace: model.RespondTrace{Agent: "r"},
	})

	assert.Equal(t, map[string]any{"a": 1.0}, s.Data)
	assert.Empty(t, s.Traces)
	assert.Equal(t, map[string]any{"a": 1.0, "b": true}, next.Data)
	require.Len(t, next.Traces, 1)
	assert.Equal(t, "r", next.Traces[0].AgentName())
	assert.Equal(t, "q", next.Query)
}
