// Package embed wraps an OpenAI-compatible embeddings endpoint, feeding
// the chunk retriever's embed-then-search flow.
package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Config configures the embeddings client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string // text-embedding-3-small or text-embedding-3-large
}

// Client generates text embeddings via an OpenAI-compatible endpoint.
type Client struct {
	client *openai.Client
	model  string
}

// New builds a Client. Model defaults to text-embedding-3-small.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embed: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}

	return &Client{client: openai.NewClientWithConfig(conf), model: cfg.Model}, nil
}

// Dimension returns the embedding dimension for the configured model.
func (c *Client) Dimension() int {
	switch c.model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed: no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create embeddings: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}
