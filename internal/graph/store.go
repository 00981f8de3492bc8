package graph

import (
	"context"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// Store persists the workflow graph. Missing rows are reported as
// storage.ErrNotFound.
type Store interface {
	LoadGraph(ctx context.Context) (model.Graph, error)
	NodeExists(ctx context.Context, name string) (bool, error)
	InsertNode(ctx context.Context, node model.AgentNode) error
	UpdateNode(ctx context.Context, name string, node model.AgentNode) error
	DeleteNode(ctx context.Context, name string) error
	SetEntryNode(ctx context.Context, name string) error
	EdgeExists(ctx context.Context, src, dest string) (bool, error)

	// InsertEdge serializes edge insertions. guard runs inside the insert
	// transaction against the edge set read after the lock is held; a
	// non-nil guard error aborts the insert and is returned as is.
	InsertEdge(ctx context.Context, edge model.Edge, guard func(edges map[string][]model.Edge) error) error
	UpdateEdge(ctx context.Context, edge model.Edge) error
	DeleteEdge(ctx context.Context, src, dest string) error

	// ReplaceGraph swaps the whole graph in one transaction.
	ReplaceGraph(ctx context.Context, g model.Graph) error
}

// ChunkCounter reports how many knowledge-base chunks are indexed.
type ChunkCounter interface {
	CountChunks(ctx context.Context) (int, error)
}

// PromptRenderer renders a saved prompt for a responder.
type PromptRenderer interface {
	Render(ctx context.Context, promptName, query, contextText string) (string, error)
}
