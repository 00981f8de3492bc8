package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
)

// MemGraphStore is an in-memory graph.Store with the same error contract as
// the Postgres store: storage.ErrNotFound for missing rows and
// storage.ErrConflict for duplicates. Edge order is insertion order.
type MemGraphStore struct {
	mu    sync.Mutex
	entry string
	nodes map[string]model.AgentNode
	edges []model.Edge

	// BeforeInsertEdge, when set, runs after the lock is taken and before
	// the guard. Tests use it to observe serialization.
	BeforeInsertEdge func()
}

// NewMemGraphStore returns a store holding a copy of g.
func NewMemGraphStore(g model.Graph) *MemGraphStore {
	s := &MemGraphStore{nodes: map[string]model.AgentNode{}}
	_ = s.ReplaceGraph(context.Background(), g)
	return s
}

func (s *MemGraphStore) LoadGraph(context.Context) (model.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *MemGraphStore) snapshot() model.Graph {
	g := model.NewGraph()
	g.EntryNode = s.entry
	for name, n := range s.nodes {
		g.Nodes[name] = n
	}
	for _, e := range s.edges {
		g.Edges[e.SrcNode] = append(g.Edges[e.SrcNode], e)
	}
	return g.Clone()
}

func (s *MemGraphStore) NodeExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[name]
	return ok, nil
}

func (s *MemGraphStore) InsertNode(_ context.Context, node model.AgentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.Name]; ok {
		return storage.ErrConflict
	}
	s.nodes[node.Name] = node
	return nil
}

func (s *MemGraphStore) UpdateNode(_ context.Context, name string, node model.AgentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[name]; !ok {
		return storage.ErrNotFound
	}
	if node.Name != name {
		if _, ok := s.nodes[node.Name]; ok {
			return storage.ErrConflict
		}
		delete(s.nodes, name)
		for i := range s.edges {
			if s.edges[i].SrcNode == name {
				s.edges[i].SrcNode = node.Name
			}
			if s.edges[i].DestNode == name {
				s.edges[i].DestNode = node.Name
			}
		}
		if s.entry == name {
			s.entry = node.Name
		}
	}
	s.nodes[node.Name] = node
	return nil
}

func (s *MemGraphStore) DeleteNode(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.nodes, name)
	s.edges = slices.DeleteFunc(s.edges, func(e model.Edge) bool {
		return e.SrcNode == name || e.DestNode == name
	})
	if s.entry == name {
		s.entry = ""
	}
	return nil
}

func (s *MemGraphStore) SetEntryNode(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[name]; !ok {
		return storage.ErrNotFound
	}
	s.entry = name
	return nil
}

func (s *MemGraphStore) EdgeExists(_ context.Context, src, dest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgeIndex(src, dest) >= 0, nil
}

func (s *MemGraphStore) InsertEdge(_ context.Context, e model.Edge, guard func(map[string][]model.Edge) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BeforeInsertEdge != nil {
		s.BeforeInsertEdge()
	}
	if guard != nil {
		if err := guard(s.snapshot().Edges); err != nil {
			return err
		}
	}
	_, okSrc := s.nodes[e.SrcNode]
	_, okDest := s.nodes[e.DestNode]
	if !okSrc || !okDest {
		return storage.ErrNotFound
	}
	if s.edgeIndex(e.SrcNode, e.DestNode) >= 0 {
		return storage.ErrConflict
	}
	s.edges = append(s.edges, cloneEdge(e))
	return nil
}

func (s *MemGraphStore) UpdateEdge(_ context.Context, e model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.edgeIndex(e.SrcNode, e.DestNode)
	if i < 0 {
		return storage.ErrNotFound
	}
	s.edges[i].Condition = cloneEdge(e).Condition
	return nil
}

func (s *MemGraphStore) DeleteEdge(_ context.Context, src, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.edgeIndex(src, dest)
	if i < 0 {
		return storage.ErrNotFound
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	return nil
}

func (s *MemGraphStore) ReplaceGraph(_ context.Context, g model.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g = g.Clone()
	s.entry = g.EntryNode
	s.nodes = g.Nodes
	s.edges = nil
	srcs := make([]string, 0, len(g.Edges))
	for src := range g.Edges {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	for _, src := range srcs {
		s.edges = append(s.edges, g.Edges[src]...)
	}
	return nil
}

func (s *MemGraphStore) edgeIndex(src, dest string) int {
	return slices.IndexFunc(s.edges, func(e model.Edge) bool {
		return e.SrcNode == src && e.DestNode == dest
	})
}

func cloneEdge(e model.Edge) model.Edge {
	if e.Condition != nil {
		c := *e.Condition
		e.Condition = &c
	}
	return e
}
