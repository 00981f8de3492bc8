// Package retrieval builds the knowledge-base context for a run: embed the
// query, fetch the nearest chunks, rerank them and keep the best few.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/service/embedding"
	"github.com/Mike1ife/RAGentFlow/internal/service/rerank"
)

const (
	// CandidateLimit is how many nearest chunks are fetched for reranking.
	CandidateLimit = 10
	// ContextLimit is how many reranked chunks make it into the context.
	ContextLimit = 3
)

// ChunkIndex finds the chunks nearest to a query vector, nearest first.
type ChunkIndex interface {
	NearestChunks(ctx context.Context, vec pgvector.Vector, limit int) ([]model.ChunkHit, error)
}

// Retriever assembles run context. It holds no state between calls.
type Retriever struct {
	embedder embedding.Provider
	index    ChunkIndex
	scorer   rerank.Scorer
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder embedding.Provider, index ChunkIndex, scorer rerank.Scorer, logger *slog.Logger) *Retriever {
	return &Retriever{embedder: embedder, index: index, scorer: scorer, logger: logger}
}

// Retrieve returns the formatted context and the chunks it was built from,
// in rerank order. Rerank scores decide the order; distance is carried only
// for inspection. Ties keep vector order.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, []model.RetrievedChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	hits, err := r.index.NearestChunks(ctx, vec, CandidateLimit)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval: nearest chunks: %w", err)
	}
	if len(hits) == 0 {
		return "", []model.RetrievedChunk{}, nil
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Content
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval: rerank: %w", err)
	}
	if len(scores) != len(hits) {
		return "", nil, fmt.Errorf("retrieval: rerank returned %d scores for %d candidates", len(scores), len(hits))
	}

	chunks := make([]model.RetrievedChunk, len(hits))
	for i, h := range hits {
		chunks[i] = model.RetrievedChunk{
			FileName:   h.FileName,
			ChunkIndex: h.ChunkIndex,
			Content:    h.Content,
			Distance:   h.Distance,
			Score:      scores[i],
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if len(chunks) > ContextLimit {
		chunks = chunks[:ContextLimit]
	}

	r.logger.Debug("retrieval: context assembled", "candidates", len(hits), "kept", len(chunks))
	return FormatContext(chunks), chunks, nil
}

// FormatContext concatenates chunks as "[Source: <file>]\n<content>\n\n".
func FormatContext(chunks []model.RetrievedChunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString("[Source: ")
		sb.WriteString(c.FileName)
		sb.WriteString("]\n")
		sb.WriteString(c.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
