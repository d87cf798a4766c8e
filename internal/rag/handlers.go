package rag

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// SearchHandler backs a search-class tool (its name is in the configured
// search set, or ends in "search"). It receives the already-parsed query
// argument and the tool selection it was configured with (namespace,
// visible-resource scoping).
type SearchHandler interface {
	Schema() llm.ToolSchema
	Search(ctx context.Context, query string, sel models.ToolSelection) ([]Retrieval, error)
}

// ResourceHandler backs a resource-class tool: get_resources, get_children,
// get_parent, filter_by_time, filter_by_tag.
type ResourceHandler interface {
	Schema() llm.ToolSchema
	Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*ResourceToolResult, error)
}

// ResourceInfo is one resource record returned by a resource handler.
type ResourceInfo struct {
	ID           string
	Name         string
	ResourceType string
	NamespaceID  string
	ParentID     string
	Content      string
	Tags         []map[string]any
	UpdatedAt    string
	Summary      string // only populated when the result is metadata-only
}

// ResourceToolResult is the structured return value of a resource handler.
type ResourceToolResult struct {
	Success      bool
	Data         []ResourceInfo
	Error        string
	Hint         string
	MetadataOnly bool
}
