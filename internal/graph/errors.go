package graph

import "errors"

// Structural-edit conflicts and lookups. Callers match with errors.Is; the
// wrapped message names the offending node or edge.
var (
	ErrNodeExists   = errors.New("graph: node already exists")
	ErrNodeNotFound = errors.New("graph: node not found")
	ErrEdgeExists   = errors.New("graph: edge already exists")
	ErrEdgeNotFound = errors.New("graph: edge not found")
	ErrCycle        = errors.New("graph: edge creates a cycle")
	ErrInvalidNode  = errors.New("graph: invalid node")
	ErrInvalidEdge  = errors.New("graph: invalid edge")
	ErrNoEntry      = errors.New("graph: no entry node configured")
)

// ErrJudgment reports a completion response that does not match the
// {"value", "reason"} shape or the node's declared value type.
var ErrJudgment = errors.New("graph: malformed judgment")
