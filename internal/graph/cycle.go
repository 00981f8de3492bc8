package graph

import "github.com/Mike1ife/RAGentFlow/internal/model"

// CausesCycle reports whether adding e to edges would close a cycle, that is
// whether e.DestNode already reaches e.SrcNode. A self-loop always does.
// edges must be acyclic.
func CausesCycle(edges map[string][]model.Edge, e model.Edge) bool {
	if e.SrcNode == e.DestNode {
		return true
	}
	visited := map[string]bool{e.DestNode: true}
	stack := []string{e.DestNode}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range edges[cur] {
			if next.DestNode == e.SrcNode {
				return true
			}
			if !visited[next.DestNode] {
				visited[next.DestNode] = true
				stack = append(stack, next.DestNode)
			}
		}
	}
	return false
}
