package graph_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/testutil"
)

func edges(pairs ...string) map[string][]model.Edge {
	out := map[string][]model.Edge{}
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = append(out[pairs[i]], model.Edge{SrcNode: pairs[i], DestNode: pairs[i+1]})
	}
	return out
}

func TestCausesCycle(t *testing.T) {
	g := edges("a", "b", "b", "c", "a", "d")

	assert.True(t, graph.CausesCycle(g, model.Edge{SrcNode: "a", DestNode: "a"}), "self-loop")
	assert.True(t, graph.CausesCycle(g, model.Edge{SrcNode: "b", DestNode: "a"}), "direct back edge")
	assert.True(t, graph.CausesCycle(g, model.Edge{SrcNode: "c", DestNode: "a"}), "transitive back edge")
	assert.False(t, graph.CausesCycle(g, model.Edge{SrcNode: "d", DestNode: "c"}), "cross edge")
	assert.False(t, graph.CausesCycle(g, model.Edge{SrcNode: "a", DestNode: "c"}), "forward shortcut")
	assert.False(t, graph.CausesCycle(g, model.Edge{SrcNode: "x", DestNode: "y"}), "unknown nodes")
}

func TestCausesCycle_DiamondTerminates(t *testing.T) {
	// Many paths to the same sink must not blow up the search.
	g := map[string][]model.Edge{}
	const layers = 30
	for i := range layers {
		for _, from := range []string{fmt.Sprintf("l%d", i), fmt.Sprintf("r%d", i)} {
			for _, to := range []string{fmt.Sprintf("l%d", i+1), fmt.Sprintf("r%d", i+1)} {
				g[from] = append(g[from], model.Edge{SrcNode: from, DestNode: to})
			}
		}
	}
	assert.False(t, graph.CausesCycle(g, model.Edge{SrcNode: "start", DestNode: "l0"}))
	assert.True(t, graph.CausesCycle(g, model.Edge{SrcNode: fmt.Sprintf("r%d", layers), DestNode: "l0"}))
}

// hasCycle is an independent three-colour DFS used to check the invariant.
func hasCycle(g model.Graph) bool {
	const (
		white = iota
		grey
		black
	)
	colour := map[string]int{}
	var visit func(string) bool
	visit = func(n string) bool {
		colour[n] = grey
		for _, e := range g.Edges[n] {
			switch colour[e.DestNode] {
			case grey:
				return true
			case white:
				if visit(e.DestNode) {
					return true
				}
			}
		}
		colour[n] = black
		return false
	}
	for n := range g.Nodes {
		if colour[n] == white && visit(n) {
			return true
		}
	}
	return false
}

func TestAddEdge_NeverCreatesCycle(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	names := []string{"a", "b", "c", "d", "e", "f", "g"}

	for round := range 20 {
		store := testutil.NewMemGraphStore(model.Graph{})
		m := graph.NewManager(store, testutil.TestLogger())
		for _, n := range names {
			require.NoError(t, m.AddNode(ctx, gatekeeper(n)))
		}
		for range 60 {
			e := model.Edge{
				SrcNode:   names[rng.IntN(len(names))],
				DestNode:  names[rng.IntN(len(names))],
				Condition: cond(model.OpEq, rng.IntN(2) == 0),
			}
			predicted, err := m.CauseCycle(ctx, e)
			require.NoError(t, err)

			err = m.AddEdge(ctx, e)
			switch {
			case err == nil:
				assert.False(t, predicted, "round %d: inserted %s→%s despite predicted cycle", round, e.SrcNode, e.DestNode)
			case errors.Is(err, graph.ErrCycle):
				assert.True(t, predicted, "round %d: rejected %s→%s without a cycle", round, e.SrcNode, e.DestNode)
			default:
				require.ErrorIs(t, err, graph.ErrEdgeExists)
			}
		}
		g, err := store.LoadGraph(ctx)
		require.NoError(t, err)
		require.False(t, hasCycle(g), "round %d produced a cycle", round)
	}
}
