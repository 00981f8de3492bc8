// Package graph owns the workflow graph: authoring operations with their
// structural checks, the validator, and the compiler that turns a graph
// snapshot into a runnable workflow.
//
// The graph is read from the store on every call. Nothing is cached, so an
// edit is visible to the next validation or compilation.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
)

// Manager applies authoring operations to the persisted graph. Existence,
// uniqueness and cycle checks happen here, before the store is mutated.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager creates a Manager over store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Graph returns a fresh snapshot. EntryNode is empty when none is set.
func (m *Manager) Graph(ctx context.Context) (model.Graph, error) {
	g, err := m.store.LoadGraph(ctx)
	if err != nil {
		return model.Graph{}, fmt.Errorf("graph: load: %w", err)
	}
	return g, nil
}

// AddNode inserts a new node.
func (m *Manager) AddNode(ctx context.Context, node model.AgentNode) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNode, err)
	}
	exists, err := m.store.NodeExists(ctx, node.Name)
	if err != nil {
		return fmt.Errorf("graph: add node %q: %w", node.Name, err)
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrNodeExists, node.Name)
	}
	if err := m.store.InsertNode(ctx, node); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("%w: %q", ErrNodeExists, node.Name)
		}
		return fmt.Errorf("graph: add node %q: %w", node.Name, err)
	}
	m.logger.Info("graph: node added", "node", node.Name, "agent_type", node.AgentType)
	return nil
}

// UpdateNode replaces the node called name. A different node.Name renames it;
// edges and the entry flag follow the rename.
func (m *Manager) UpdateNode(ctx context.Context, name string, node model.AgentNode) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNode, err)
	}
	exists, err := m.store.NodeExists(ctx, name)
	if err != nil {
		return fmt.Errorf("graph: update node %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	if node.Name != name {
		taken, err := m.store.NodeExists(ctx, node.Name)
		if err != nil {
			return fmt.Errorf("graph: update node %q: %w", name, err)
		}
		if taken {
			return fmt.Errorf("%w: cannot rename %q to %q", ErrNodeExists, name, node.Name)
		}
	}
	if node.AgentType == model.AgentResponder {
		g, err := m.store.LoadGraph(ctx)
		if err != nil {
			return fmt.Errorf("graph: update node %q: %w", name, err)
		}
		if len(g.Edges[name]) > 0 {
			return fmt.Errorf("%w: responder %q cannot keep outgoing edges", ErrInvalidNode, name)
		}
	}
	if err := m.store.UpdateNode(ctx, name, node); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
		}
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("%w: cannot rename %q to %q", ErrNodeExists, name, node.Name)
		}
		return fmt.Errorf("graph: update node %q: %w", name, err)
	}
	return nil
}

// DeleteNode removes a node together with its incident edges.
func (m *Manager) DeleteNode(ctx context.Context, name string) error {
	if err := m.store.DeleteNode(ctx, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
		}
		return fmt.Errorf("graph: delete node %q: %w", name, err)
	}
	m.logger.Info("graph: node deleted", "node", name)
	return nil
}

// SetEntry makes name the single entry node.
func (m *Manager) SetEntry(ctx context.Context, name string) error {
	if err := m.store.SetEntryNode(ctx, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
		}
		return fmt.Errorf("graph: set entry %q: %w", name, err)
	}
	return nil
}

// CauseCycle reports whether inserting e into the current graph would create
// a cycle.
func (m *Manager) CauseCycle(ctx context.Context, e model.Edge) (bool, error) {
	g, err := m.store.LoadGraph(ctx)
	if err != nil {
		return false, fmt.Errorf("graph: cycle check: %w", err)
	}
	return CausesCycle(g.Edges, e), nil
}

// AddEdge inserts an edge after checking its endpoints. The duplicate and
// cycle checks run inside the store's serialized insert so that two
// concurrent inserts cannot together close a cycle.
func (m *Manager) AddEdge(ctx context.Context, e model.Edge) error {
	if err := m.checkEdge(ctx, e); err != nil {
		return err
	}
	guard := func(edges map[string][]model.Edge) error {
		for _, existing := range edges[e.SrcNode] {
			if existing.DestNode == e.DestNode {
				return fmt.Errorf("%w: %q → %q", ErrEdgeExists, e.SrcNode, e.DestNode)
			}
		}
		if CausesCycle(edges, e) {
			return fmt.Errorf("%w: %q → %q", ErrCycle, e.SrcNode, e.DestNode)
		}
		return nil
	}
	if err := m.store.InsertEdge(ctx, e, guard); err != nil {
		if errors.Is(err, ErrEdgeExists) || errors.Is(err, ErrCycle) {
			return err
		}
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("%w: %q → %q", ErrEdgeExists, e.SrcNode, e.DestNode)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q or %q", ErrNodeNotFound, e.SrcNode, e.DestNode)
		}
		return fmt.Errorf("graph: add edge %q → %q: %w", e.SrcNode, e.DestNode, err)
	}
	m.logger.Info("graph: edge added", "src", e.SrcNode, "dest", e.DestNode)
	return nil
}

// UpdateEdge replaces the condition of an existing edge. Topology is
// unchanged so no cycle check is needed.
func (m *Manager) UpdateEdge(ctx context.Context, e model.Edge) error {
	if e.Condition != nil {
		if err := e.Condition.Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidEdge, err)
		}
	}
	exists, err := m.store.EdgeExists(ctx, e.SrcNode, e.DestNode)
	if err != nil {
		return fmt.Errorf("graph: update edge %q → %q: %w", e.SrcNode, e.DestNode, err)
	}
	if !exists {
		return fmt.Errorf("%w: %q → %q", ErrEdgeNotFound, e.SrcNode, e.DestNode)
	}
	if err := m.store.UpdateEdge(ctx, e); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q → %q", ErrEdgeNotFound, e.SrcNode, e.DestNode)
		}
		return fmt.Errorf("graph: update edge %q → %q: %w", e.SrcNode, e.DestNode, err)
	}
	return nil
}

// DeleteEdge removes the edge src → dest.
func (m *Manager) DeleteEdge(ctx context.Context, src, dest string) error {
	if err := m.store.DeleteEdge(ctx, src, dest); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q → %q", ErrEdgeNotFound, src, dest)
		}
		return fmt.Errorf("graph: delete edge %q → %q: %w", src, dest, err)
	}
	return nil
}

// Reset replaces the whole graph with DefaultGraph.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.ReplaceGraph(ctx, DefaultGraph()); err != nil {
		return fmt.Errorf("graph: reset: %w", err)
	}
	m.logger.Info("graph: reset to default")
	return nil
}

func (m *Manager) checkEdge(ctx context.Context, e model.Edge) error {
	if e.SrcNode == "" || e.DestNode == "" {
		return fmt.Errorf("%w: source and destination are required", ErrInvalidEdge)
	}
	if e.SrcNode == e.DestNode {
		return fmt.Errorf("%w: %q → %q", ErrCycle, e.SrcNode, e.DestNode)
	}
	if e.Condition != nil {
		if err := e.Condition.Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidEdge, err)
		}
	}
	g, err := m.store.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("graph: add edge: %w", err)
	}
	src, ok := g.Nodes[e.SrcNode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, e.SrcNode)
	}
	if _, ok := g.Nodes[e.DestNode]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, e.DestNode)
	}
	if src.AgentType == model.AgentResponder {
		return fmt.Errorf("%w: responder %q is terminal", ErrInvalidEdge, e.SrcNode)
	}
	return nil
}
