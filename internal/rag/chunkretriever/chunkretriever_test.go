package chunkretriever

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestCollectionName(t *testing.T) {
	if got := collectionName(""); got != "default" {
		t.Errorf("collectionName(\"\") = %q, want default", got)
	}
	if got := collectionName("acme"); got != "ns_acme" {
		t.Errorf("collectionName(acme) = %q, want ns_acme", got)
	}
}

func TestStringFieldMissing(t *testing.T) {
	if got := stringField(map[string]*qdrant.Value{}, "text"); got != "" {
		t.Errorf("expected empty string for missing field, got %q", got)
	}
}

func TestIntFieldMissing(t *testing.T) {
	if got := intField(map[string]*qdrant.Value{}, "start"); got != 0 {
		t.Errorf("expected 0 for missing field, got %d", got)
	}
}

func TestSchemaName(t *testing.T) {
	r := &Retriever{topK: 10}
	schema := r.Schema()
	if schema.Name != "private_search" {
		t.Errorf("schema name = %q, want private_search", schema.Name)
	}
}
