package embed

import "testing"

func TestNewMissingAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	c, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.model != "text-embedding-3-small" {
		t.Errorf("model = %q, want text-embedding-3-small", c.model)
	}
	if c.Dimension() != 1536 {
		t.Errorf("Dimension() = %d, want 1536", c.Dimension())
	}
}

func TestNewLargeModelDimension(t *testing.T) {
	c, err := New(Config{APIKey: "test-key", Model: "text-embedding-3-large"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Dimension() != 3072 {
		t.Errorf("Dimension() = %d, want 3072", c.Dimension())
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vectors, err := c.EmbedBatch(nil, nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil vectors for empty input, got %v", vectors)
	}
}
