package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/retrieval"
	"github.com/Mike1ife/RAGentFlow/internal/service/rerank"
	"github.com/Mike1ife/RAGentFlow/internal/testutil"
)

func hits(n int) []model.ChunkHit {
	out := make([]model.ChunkHit, n)
	for i := range out {
		out[i] = model.ChunkHit{
			FileName:   fmt.Sprintf("doc%d.pdf", i%3),
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d", i),
			Distance:   float64(i) / 10,
		}
	}
	return out
}

func TestRetrieve_RerankDecidesOrder(t *testing.T) {
	index := testutil.FakeChunkIndex{Hits: hits(12)}
	scorer := testutil.FakeScorer{Scores: map[string]float64{
		"chunk 9": 0.95,
		"chunk 2": 0.80,
		"chunk 5": 0.80,
		"chunk 0": 0.10,
	}}
	r := retrieval.New(testutil.FakeEmbedder{}, index, scorer, testutil.TestLogger())

	ctxText, chunks, err := r.Retrieve(context.Background(), "refund policy")
	require.NoError(t, err)

	require.Len(t, chunks, retrieval.ContextLimit)
	assert.Equal(t, "chunk 9", chunks[0].Content)
	assert.Equal(t, "chunk 2", chunks[1].Content, "ties keep vector order")
	assert.Equal(t, "chunk 5", chunks[2].Content)
	assert.InDelta(t, 0.9, chunks[0].Distance, 1e-9)
	assert.Equal(t, 0.95, chunks[0].Score)

	want := "[Source: doc0.pdf]\nchunk 9\n\n" +
		"[Source: doc2.pdf]\nchunk 2\n\n" +
		"[Source: doc2.pdf]\nchunk 5\n\n"
	assert.Equal(t, want, ctxText)
}

func TestRetrieve_OnlyTenCandidatesAreScored(t *testing.T) {
	var scored int
	scorer := scoreFunc(func(candidates []string) ([]float64, error) {
		scored = len(candidates)
		return make([]float64, len(candidates)), nil
	})
	r := retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{Hits: hits(25)}, scorer, testutil.TestLogger())

	_, chunks, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, retrieval.CandidateLimit, scored)
	assert.Len(t, chunks, retrieval.ContextLimit)
}

func TestRetrieve_Idempotent(t *testing.T) {
	r := retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{Hits: hits(10)}, rerank.NoopScorer{}, testutil.TestLogger())

	ctx1, chunks1, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	ctx2, chunks2, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, ctx1, ctx2)
	assert.Equal(t, chunks1, chunks2)
	assert.Equal(t, "chunk 0", chunks1[0].Content, "noop scorer keeps vector order")
}

func TestRetrieve_FewerThanLimit(t *testing.T) {
	r := retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{Hits: hits(2)}, rerank.NoopScorer{}, testutil.TestLogger())
	ctxText, chunks, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "[Source: doc0.pdf]\nchunk 0\n\n[Source: doc1.pdf]\nchunk 1\n\n", ctxText)
}

func TestRetrieve_EmptyKnowledgeBase(t *testing.T) {
	called := false
	scorer := scoreFunc(func([]string) ([]float64, error) {
		called = true
		return nil, nil
	})
	r := retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{}, scorer, testutil.TestLogger())
	ctxText, chunks, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, ctxText)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
	assert.False(t, called)
}

func TestRetrieve_CollaboratorFailures(t *testing.T) {
	boom := errors.New("boom")

	r := retrieval.New(testutil.FakeEmbedder{Err: boom}, testutil.FakeChunkIndex{Hits: hits(3)}, rerank.NoopScorer{}, testutil.TestLogger())
	_, _, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "embed query")

	r = retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{Err: boom}, rerank.NoopScorer{}, testutil.TestLogger())
	_, _, err = r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "nearest chunks")

	r = retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{Hits: hits(3)}, testutil.FakeScorer{Err: boom}, testutil.TestLogger())
	_, _, err = r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "rerank")

	short := scoreFunc(func([]string) ([]float64, error) { return []float64{1}, nil })
	r = retrieval.New(testutil.FakeEmbedder{}, testutil.FakeChunkIndex{Hits: hits(3)}, short, testutil.TestLogger())
	_, _, err = r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "1 scores for 3 candidates")
}

type scoreFunc func(candidates []string) ([]float64, error)

func (f scoreFunc) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	return f(candidates)
}
