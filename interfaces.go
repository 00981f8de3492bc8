package ragentflow

import "context"

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces auto-detected Ollama/OpenAI/noop.
// Uses []float32 (not pgvector.Vector) to avoid forcing the pgvector dependency on
// external consumers. New wraps it in an adapter that also L2-normalises vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CompletionOptions are the sampling parameters passed to a Completer.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// Completer produces a completion for one user prompt. It backs judgment
// nodes, responders and (when no HTTP reranker is configured) the LLM
// reranker. When provided via WithCompleter, replaces the auto-detected
// OpenAI/Ollama/noop completer.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// Reranker scores each candidate's relevance to query; higher is more
// relevant. The returned slice must be parallel to candidates.
// When provided via WithReranker, replaces the auto-detected reranker.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}
