// Package websearch implements rag.SearchHandler's "web_search" tool
// against a SearXNG-compatible JSON search API (/search?format=json).
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// Config configures the SearXNG-compatible backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Handler queries a SearXNG instance's /search?format=json endpoint.
type Handler struct {
	baseURL string
	http    *http.Client
}

// New builds a Handler against cfg.BaseURL (e.g. "https://searx.example.com").
func New(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Handler{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Schema describes the web_search tool: a single "query" string param.
func (h *Handler) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "web_search",
		Description: "Search the public web for relevant pages.",
		Parameters:  []byte(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	}
}

type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	PublishedDate    string `json:"publishedDate"`
	PublishedDateAlt string `json:"published_date"`
}

// Search issues a SearXNG JSON search and converts its results into
// rag.WebRetrieval values.
func (h *Handler) Search(ctx context.Context, query string, sel models.ToolSelection) ([]rag.Retrieval, error) {
	u := fmt.Sprintf("%s/search?format=json&q=%s", h.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch: unexpected status %d", resp.StatusCode)
	}

	var decoded searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}

	retrievals := make([]rag.Retrieval, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		published := r.PublishedDate
		if published == "" {
			published = r.PublishedDateAlt
		}
		pubTime, _ := time.Parse(time.RFC3339, published)
		retrievals = append(retrievals, &rag.WebRetrieval{
			URL:       r.URL,
			Title:     r.Title,
			Snippet:   r.Content,
			Published: pubTime,
		})
	}
	return retrievals, nil
}

var _ rag.SearchHandler = (*Handler)(nil)
