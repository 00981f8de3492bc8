// Package rerank scores retrieval candidates against a query with a model
// that is distinct from the vector index. Higher scores are more relevant.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Scorer assigns one relevance score per candidate, in candidate order.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// HTTPScorer calls a cross-encoder server exposing the text-embeddings-
// inference /rerank endpoint.
type HTTPScorer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHTTPScorer creates a scorer for the cross-encoder at baseURL. model is
// sent along for servers that host several rerankers and may be empty.
func NewHTTPScorer(baseURL, model string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPScorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
}

type teiScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score posts the query and candidates and maps the returned scores back to
// candidate order.
func (s *HTTPScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(teiRequest{Query: query, Texts: candidates, Model: s.model})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank: status %d: %s", resp.StatusCode, string(msg))
	}

	var scored []teiScore
	if err := json.NewDecoder(resp.Body).Decode(&scored); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	out := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, sc := range scored {
		if sc.Index < 0 || sc.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank: invalid index %d in response", sc.Index)
		}
		out[sc.Index] = sc.Score
		seen[sc.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank: response is missing candidate %d", i)
		}
	}
	return out, nil
}

// NoopScorer keeps the incoming order by scoring candidates 1, 1-1/n, ...
// Used when no reranker is configured, so vector order decides.
type NoopScorer struct{}

func (NoopScorer) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	out := make([]float64, len(candidates))
	n := float64(len(candidates))
	for i := range out {
		out[i] = 1 - float64(i)/n
	}
	return out, nil
}
