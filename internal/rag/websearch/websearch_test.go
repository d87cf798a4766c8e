package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/pkg/models"
)

func TestSearchDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("expected format=json, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":[{"url":"https://example.com","title":"Example","content":"a page"}]}`))
	}))
	defer srv.Close()

	h := New(Config{BaseURL: srv.URL})
	retrievals, err := h.Search(context.Background(), "example", models.ToolSelection{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(retrievals) != 1 {
		t.Fatalf("expected 1 retrieval, got %d", len(retrievals))
	}
	web, ok := retrievals[0].(*rag.WebRetrieval)
	if !ok {
		t.Fatalf("expected *rag.WebRetrieval, got %T", retrievals[0])
	}
	if web.URL != "https://example.com" || web.Title != "Example" {
		t.Errorf("unexpected retrieval: %+v", web)
	}
}

func TestSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := New(Config{BaseURL: srv.URL})
	if _, err := h.Search(context.Background(), "example", models.ToolSelection{}); err == nil {
		t.Fatal("expected error for non-OK status")
	}
}
