// Package rerank wraps an external rerank endpoint (Cohere-compatible
// /rerank) used to re-score and trim a merged retrieval set before it goes
// back into the prompt.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/wizardd/internal/rag"
)

// Config names the rerank endpoint. A zero Config (empty BaseURL) disables
// reranking: Rerank then becomes dedup-only pass-through, matching the
// original's "config is optional" behavior.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	K       int     // 0 = unset, no truncation
	Threshold float64 // 0 = unset, no score floor
}

type Reranker struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Reranker {
	return &Reranker{cfg: cfg, httpClient: &http.Client{Timeout: 300 * time.Second}}
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResultItem struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	ID      string             `json:"id"`
	Results []rerankResultItem `json:"results"`
}

// Rerank dedups retrievals by Identity, scores them against the query
// through the configured endpoint, drops anything below threshold (if
// overrideThreshold > 0, it wins over the configured Threshold), and
// truncates to k (overrideK > 0 wins over the configured K). When no
// endpoint is configured, it returns the deduped list unscored and
// untruncated.
func (r *Reranker) Rerank(ctx context.Context, query string, retrievals []rag.Retrieval, overrideK int, overrideThreshold float64) ([]rag.Retrieval, error) {
	unique := dedup(retrievals)
	if len(unique) == 0 {
		return nil, nil
	}
	if r.cfg.BaseURL == "" {
		return unique, nil
	}

	k := r.cfg.K
	if overrideK > 0 {
		k = overrideK
	}
	threshold := r.cfg.Threshold
	if overrideThreshold > 0 {
		threshold = overrideThreshold
	}

	docs := make([]string, len(unique))
	for i, ret := range unique {
		docs[i] = ret.ToPrompt()
	}
	topN := k
	if topN <= 0 {
		topN = len(unique)
	}

	payload, err := json.Marshal(rerankRequest{
		Model:           r.cfg.Model,
		Query:           query,
		Documents:       docs,
		TopN:            topN,
		ReturnDocuments: false,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rerank: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank: unexpected status %d: %s", resp.StatusCode, body)
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}

	reranked := make([]rag.Retrieval, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(unique) {
			continue
		}
		ret := unique[item.Index]
		score := ret.Score()
		score.Rerank = item.RelevanceScore
		setScore(ret, score)
		reranked = append(reranked, ret)
	}

	filtered := reranked
	if threshold > 0 {
		filtered = filtered[:0]
		for _, ret := range reranked {
			if ret.Score().Rerank >= threshold {
				filtered = append(filtered, ret)
			}
		}
	}
	if k > 0 && len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}

func dedup(retrievals []rag.Retrieval) []rag.Retrieval {
	seen := make(map[string]bool, len(retrievals))
	out := make([]rag.Retrieval, 0, len(retrievals))
	for _, r := range retrievals {
		id := r.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}

// setScore needs a type switch because rag.Retrieval only exposes Score()
// (a value, not a pointer field) and SetCiteID, not a score setter. Rather
// than widen the interface for one field, each concrete type keeps its own
// exported ScoreValue and we touch it directly here.
func setScore(r rag.Retrieval, s rag.Score) {
	switch v := r.(type) {
	case *rag.ChunkRetrieval:
		v.ScoreValue = s
	case *rag.WebRetrieval:
		v.ScoreValue = s
	}
}
