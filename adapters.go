package ragentflow

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/Mike1ife/RAGentFlow/internal/service/embedding"
	"github.com/Mike1ife/RAGentFlow/internal/service/llm"
)

// embedderAdapter adapts a public EmbeddingProvider to embedding.Provider.
type embedderAdapter struct {
	p EmbeddingProvider
}

func (a embedderAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return embedding.Normalize(v), nil
}

func (a embedderAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	raw, err := a.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embedding: provider returned %d vectors for %d texts", len(raw), len(texts))
	}
	out := make([]pgvector.Vector, len(raw))
	for i, v := range raw {
		out[i] = embedding.Normalize(v)
	}
	return out, nil
}

func (a embedderAdapter) Dimensions() int { return a.p.Dimensions() }

// completerAdapter adapts a public Completer to llm.Completer.
type completerAdapter struct {
	c Completer
}

func (a completerAdapter) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	return a.c.Complete(ctx, prompt, CompletionOptions{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens})
}
