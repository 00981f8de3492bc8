package server

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// GraphEditor applies authoring operations to the persisted graph.
type GraphEditor interface {
	Graph(ctx context.Context) (model.Graph, error)
	AddNode(ctx context.Context, node model.AgentNode) error
	UpdateNode(ctx context.Context, name string, node model.AgentNode) error
	DeleteNode(ctx context.Context, name string) error
	SetEntry(ctx context.Context, name string) error
	AddEdge(ctx context.Context, e model.Edge) error
	UpdateEdge(ctx context.Context, e model.Edge) error
	DeleteEdge(ctx context.Context, src, dest string) error
	Reset(ctx context.Context) error
}

// Validator reports whether the current graph can be simulated.
type Validator interface {
	Validate(ctx context.Context) (model.Validation, error)
}

// Simulator runs queries through the graph and keeps the last result.
type Simulator interface {
	Simulate(ctx context.Context, query string) (model.Result, error)
	LastResult() (model.Result, error)
}

// Library browses the ingested knowledge base.
type Library interface {
	ListFiles(ctx context.Context) ([]model.File, error)
	ChunksOfFile(ctx context.Context, fileName string) ([]model.Chunk, error)
	ChunksWithScore(ctx context.Context, fileName string, vec pgvector.Vector) ([]model.Chunk, error)
	SimilarChunks(ctx context.Context, fileName string, index, limit int) ([]model.Chunk, error)
}

// Ingester adds and removes knowledge-base files.
type Ingester interface {
	Ingest(ctx context.Context, fileName string, data []byte) (int, error)
	DeleteFile(ctx context.Context, fileName string) error
	Clear(ctx context.Context) error
}

// Prompts manages the template catalog and saved prompts.
type Prompts interface {
	Template(kind model.TemplateKind) (model.PromptTemplate, error)
	List(ctx context.Context) ([]model.Prompt, error)
	Names(ctx context.Context) ([]string, error)
	Create(ctx context.Context, p model.Prompt) error
	Update(ctx context.Context, p model.Prompt) error
	Delete(ctx context.Context, name string) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker checks an optional backend such as the Qdrant mirror.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}
