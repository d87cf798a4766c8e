package resourcehandlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/wizardd/internal/resourceapi"
	"github.com/haasonsaas/wizardd/pkg/models"
)

func TestGetResourcesFetchesEach(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(resourceapi.Resource{ID: "r1", Name: "doc"})
	}))
	defer srv.Close()

	h := GetResources{Client: resourceapi.New(srv.URL, srv.Client(), nil)}
	args, _ := json.Marshal(map[string]any{"ids": []string{"r1"}})
	result, err := h.Invoke(context.Background(), args, models.ToolSelection{NamespaceID: "ns1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !result.Success || len(result.Data) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetChildrenListsChildren(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]resourceapi.Resource{{ID: "c1"}, {ID: "c2"}})
	}))
	defer srv.Close()

	h := GetChildren{Client: resourceapi.New(srv.URL, srv.Client(), nil)}
	args, _ := json.Marshal(map[string]any{"id": "parent1"})
	result, err := h.Invoke(context.Background(), args, models.ToolSelection{NamespaceID: "ns1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !result.Success || len(result.Data) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetParentNoneFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	h := GetParent{Client: resourceapi.New(srv.URL, srv.Client(), nil)}
	args, _ := json.Marshal(map[string]any{"id": "r1"})
	result, err := h.Invoke(context.Background(), args, models.ToolSelection{NamespaceID: "ns1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !result.Success || len(result.Data) != 0 {
		t.Fatalf("expected no parent data, got %+v", result)
	}
}

func TestFilterByTagBadArgs(t *testing.T) {
	h := FilterByTag{Client: resourceapi.New("http://example.invalid", nil, nil)}
	if _, err := h.Invoke(context.Background(), json.RawMessage(`not json`), models.ToolSelection{}); err == nil {
		t.Fatal("expected decode error")
	}
}
