// Package search provides nearest-chunk lookup through an external vector
// index with transparent fallback to pgvector in Postgres.
package search

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// pointNamespace scopes point IDs derived from chunk keys.
var pointNamespace = uuid.MustParse("6f1d2c58-3b7e-4a8e-9d0c-2a61f5e4b7a3")

// Point is the data needed to upsert one chunk into the index.
type Point struct {
	FileName   string
	ChunkIndex int
	Content    string
	Embedding  []float32
}

// PointID returns the stable index ID of chunk index of fileName. Re-ingesting
// a file overwrites its previous points instead of duplicating them.
func PointID(fileName string, index int) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(fileName+":"+strconv.Itoa(index)))
}

// ChunkSearcher returns the chunks nearest to vec, nearest first.
// Implementations must be safe for concurrent use.
type ChunkSearcher interface {
	NearestChunks(ctx context.Context, vec pgvector.Vector, limit int) ([]model.ChunkHit, error)
}

// Index is an external ANN index that can report its own reachability.
type Index interface {
	ChunkSearcher

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// Fallback serves lookups from primary while it is healthy and from
// fallback otherwise. Postgres remains the source of truth; a primary
// failure is logged and the query is retried against fallback.
type Fallback struct {
	primary  Index
	fallback ChunkSearcher
	logger   *slog.Logger
}

// NewFallback creates a Fallback. primary may be nil, in which case every
// lookup goes to fallback.
func NewFallback(primary Index, fallback ChunkSearcher, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, fallback: fallback, logger: logger}
}

// NearestChunks implements retrieval.ChunkIndex.
func (f *Fallback) NearestChunks(ctx context.Context, vec pgvector.Vector, limit int) ([]model.ChunkHit, error) {
	if f.primary == nil {
		return f.fallback.NearestChunks(ctx, vec, limit)
	}
	if err := f.primary.Healthy(ctx); err != nil {
		f.logger.Debug("search: index unhealthy, using postgres", "error", err)
		return f.fallback.NearestChunks(ctx, vec, limit)
	}
	hits, err := f.primary.NearestChunks(ctx, vec, limit)
	if err != nil {
		f.logger.Warn("search: index query failed, using postgres", "error", err)
		return f.fallback.NearestChunks(ctx, vec, limit)
	}
	return hits, nil
}
