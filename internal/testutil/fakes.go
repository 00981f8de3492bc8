package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/service/llm"
)

// FakeCompleter answers completion calls with Fn and records every prompt.
type FakeCompleter struct {
	Fn func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (f *FakeCompleter) Complete(_ context.Context, prompt string, _ llm.Options) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.Fn == nil {
		return "", llm.ErrNotConfigured
	}
	return f.Fn(prompt)
}

// Prompts returns the prompts seen so far.
func (f *FakeCompleter) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// JudgmentByKeyword returns a completer that answers judgment prompts with
// the JSON value mapped to the first keyword contained in the prompt, and
// answers every other prompt with "answer: <last prompt line>".
func JudgmentByKeyword(rules map[string]string) *FakeCompleter {
	return &FakeCompleter{Fn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Return JSON") {
			for kw, value := range rules {
				if strings.Contains(prompt, kw) {
					return fmt.Sprintf(`{"value": %s, "reason": "matched %s"}`, value, kw), nil
				}
			}
			return "", fmt.Errorf("fake completer: no rule for prompt")
		}
		lines := strings.Split(strings.TrimSpace(prompt), "\n")
		return "answer: " + lines[len(lines)-1], nil
	}}
}

// FakeEmbedder returns deterministic unit vectors derived from the text.
type FakeEmbedder struct {
	Dims int
	Err  error
}

func (f FakeEmbedder) Embed(_ context.Context, text string) (pgvector.Vector, error) {
	if f.Err != nil {
		return pgvector.Vector{}, f.Err
	}
	return pgvector.NewVector(HashVector(text, f.Dimensions())), nil
}

func (f FakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f FakeEmbedder) Dimensions() int {
	if f.Dims == 0 {
		return 384
	}
	return f.Dims
}

// HashVector returns a unit vector of the given size seeded by text.
func HashVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, dims)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		x := float64(int64(seed>>11))/float64(1<<52) - 1
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// FakeScorer scores candidates by looking up their text in Scores; missing
// candidates score 0.
type FakeScorer struct {
	Scores map[string]float64
	Err    error
}

func (f FakeScorer) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = f.Scores[c]
	}
	return out, nil
}

// FakeChunkIndex returns the first limit Hits.
type FakeChunkIndex struct {
	Hits []model.ChunkHit
	Err  error
}

func (f FakeChunkIndex) NearestChunks(_ context.Context, _ pgvector.Vector, limit int) ([]model.ChunkHit, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if limit > len(f.Hits) {
		limit = len(f.Hits)
	}
	return append([]model.ChunkHit(nil), f.Hits[:limit]...), nil
}

// StaticPrompts renders every prompt as "<name>|<query>|<context>".
type StaticPrompts struct {
	Err error
}

func (p StaticPrompts) Render(_ context.Context, promptName, query, contextText string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return promptName + "|" + query + "|" + contextText, nil
}

// ChunkCount is a fixed graph.ChunkCounter.
type ChunkCount int

func (c ChunkCount) CountChunks(context.Context) (int, error) { return int(c), nil }
