package resourceapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetDecodesResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/namespaces/ns1/resources/r1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Resource{ID: "r1", Name: "doc.txt", NamespaceID: "ns1"})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), nil)
	res, err := c.Get(context.Background(), "ns1", "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.ID != "r1" || res.Name != "doc.txt" {
		t.Errorf("unexpected resource: %+v", res)
	}
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), nil)
	if _, err := c.Get(context.Background(), "ns1", "missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestChildrenDecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Resource{{ID: "child1"}, {ID: "child2"}})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), nil)
	children, err := c.Children(context.Background(), "ns1", "parent1")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
}

func TestListAppliesQueryFilters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]Resource{})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), nil)
	_, err := c.List(context.Background(), "ns1", ListFilter{Tag: "project", TagValue: "acme"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotQuery == "" {
		t.Fatal("expected query parameters to be set")
	}
}
