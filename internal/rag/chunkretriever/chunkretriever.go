// Package chunkretriever implements rag.SearchHandler against a Qdrant
// vector index: one collection per namespace, cosine distance, the query
// embedded through internal/embed before the nearest-neighbor lookup.
package chunkretriever

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/haasonsaas/wizardd/internal/embed"
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// Config configures the Qdrant connection.
type Config struct {
	Host   string
	Port   int // gRPC port, default 6334
	APIKey string
	UseTLS bool
	TopK   int // default 10
}

// Retriever implements rag.SearchHandler's "private_search" tool: embed the
// query, look up the namespace's Qdrant collection, return the nearest
// chunks as rag.ChunkRetrieval values.
type Retriever struct {
	client   *qdrant.Client
	embedder *embed.Client
	topK     int
}

// New builds a Retriever. cfg.Host defaults to "localhost", cfg.Port to
// 6334 (Qdrant's gRPC port).
func New(cfg Config, embedder *embed.Client) (*Retriever, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	topK := cfg.TopK
	if topK == 0 {
		topK = 10
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("chunkretriever: connect qdrant %s:%d: %w", host, port, err)
	}

	return &Retriever{client: client, embedder: embedder, topK: topK}, nil
}

// Schema describes the private_search tool: a single "query" string param.
func (r *Retriever) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "private_search",
		Description: "Search the user's private document collection for relevant passages.",
		Parameters:  []byte(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	}
}

// Search embeds query, searches the namespace's collection, and converts
// Qdrant's scored points into rag.Retrieval values.
func (r *Retriever) Search(ctx context.Context, query string, sel models.ToolSelection) ([]rag.Retrieval, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chunkretriever: embed query: %w", err)
	}

	collection := collectionName(sel.NamespaceID)
	exists, err := r.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("chunkretriever: check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, nil
	}

	points, err := r.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(r.topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("chunkretriever: search %s: %w", collection, err)
	}

	retrievals := make([]rag.Retrieval, 0, len(points.Result))
	for _, p := range points.Result {
		retrievals = append(retrievals, pointToRetrieval(p))
	}
	return retrievals, nil
}

func collectionName(namespaceID string) string {
	if namespaceID == "" {
		return "default"
	}
	return "ns_" + namespaceID
}

func pointToRetrieval(p *qdrant.ScoredPoint) rag.Retrieval {
	var resourceID, folder, text string
	var start, end int
	if p.Payload != nil {
		resourceID = stringField(p.Payload, "resource_id")
		folder = stringField(p.Payload, "folder")
		text = stringField(p.Payload, "text")
		start = int(intField(p.Payload, "start"))
		end = int(intField(p.Payload, "end"))
	}
	return &rag.ChunkRetrieval{
		ResourceIDValue: resourceID,
		Folder:          folder,
		Start:           start,
		End:             end,
		Text:            text,
		ScoreValue:      rag.Score{Recall: float64(p.Score)},
	}
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func intField(payload map[string]*qdrant.Value, key string) int64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	return v.GetIntegerValue()
}

var _ rag.SearchHandler = (*Retriever)(nil)
