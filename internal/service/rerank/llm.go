package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Mike1ife/RAGentFlow/internal/service/llm"
)

// maxCandidateChars bounds how many bytes of each candidate are shown to
// the model. Truncation keeps whole characters.
const maxCandidateChars = 500

// LLMScorer asks a completion model to grade each candidate from 1 to 10
// and returns grade/10. Candidates the model leaves out score 0.
type LLMScorer struct {
	completer llm.Completer
	opts      llm.Options
}

// NewLLMScorer creates a scorer backed by completer. Grading runs at
// temperature 0.
func NewLLMScorer(completer llm.Completer, maxTokens int) *LLMScorer {
	return &LLMScorer{
		completer: completer,
		opts:      llm.Options{Temperature: 0, MaxTokens: maxTokens},
	}
}

type ranking struct {
	Index     int     `json:"index"`
	Relevance float64 `json:"relevance"`
}

func (s *LLMScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	out, err := s.completer.Complete(ctx, rankPrompt(query, candidates), s.opts)
	if err != nil {
		return nil, fmt.Errorf("rerank: complete: %w", err)
	}
	start := strings.Index(out, "[")
	end := strings.LastIndex(out, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("rerank: no JSON array in model response")
	}
	var rankings []ranking
	if err := json.Unmarshal([]byte(out[start:end+1]), &rankings); err != nil {
		return nil, fmt.Errorf("rerank: parse rankings: %w", err)
	}

	scores := make([]float64, len(candidates))
	for _, r := range rankings {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		rel := min(max(r.Relevance, 0), 10)
		scores[r.Index] = rel / 10
	}
	return scores, nil
}

func rankPrompt(query string, candidates []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the query: %q\n\n", query)
	sb.WriteString("Rate each document's relevance to the query from 1 to 10 (10 is most relevant).\n\nDocuments:\n")
	for i, c := range candidates {
		if len(c) > maxCandidateChars {
			n := maxCandidateChars
			for n > 0 && !utf8.RuneStart(c[n]) {
				n--
			}
			c = c[:n] + "..."
		}
		fmt.Fprintf(&sb, "\n[%d] %s\n", i, c)
	}
	sb.WriteString("\nRespond with only a JSON array, one entry per document:\n")
	sb.WriteString(`[{"index": 0, "relevance": 9}, ...]`)
	return sb.String()
}
