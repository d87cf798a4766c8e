// Package resourcehandlers implements rag.ResourceHandler over
// internal/resourceapi.Client: get_resources, get_children, get_parent,
// filter_by_time, and filter_by_tag. Each handler is a thin wrapper that
// parses its arguments, issues one resource-API call, and maps the rows
// into ResourceInfo records.
package resourcehandlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/internal/rag"
	"github.com/haasonsaas/wizardd/internal/resourceapi"
	"github.com/haasonsaas/wizardd/pkg/models"
)

func toResourceInfo(r resourceapi.Resource) rag.ResourceInfo {
	return rag.ResourceInfo{
		ID:           r.ID,
		Name:         r.Name,
		ResourceType: r.ResourceType,
		NamespaceID:  r.NamespaceID,
		ParentID:     r.ParentID,
		Content:      r.Content,
		Tags:         r.Tags,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GetResources fetches one or more resources by id.
type GetResources struct{ Client *resourceapi.Client }

func (GetResources) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "get_resources",
		Description: "Fetch resources by id.",
		Parameters:  []byte(`{"type":"object","properties":{"ids":{"type":"array","items":{"type":"string"}}},"required":["ids"]}`),
	}
}

func (h GetResources) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	var in struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("get_resources: decode args: %w", err)
	}

	result := &rag.ResourceToolResult{Success: true}
	for _, id := range in.IDs {
		res, err := h.Client.Get(ctx, sel.NamespaceID, id)
		if err != nil {
			result.Hint = fmt.Sprintf("resource %s not found", id)
			continue
		}
		result.Data = append(result.Data, toResourceInfo(*res))
	}
	return result, nil
}

// GetChildren lists the direct children of a folder resource.
type GetChildren struct{ Client *resourceapi.Client }

func (GetChildren) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "get_children",
		Description: "List the direct children of a folder resource.",
		Parameters:  []byte(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
	}
}

func (h GetChildren) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("get_children: decode args: %w", err)
	}

	children, err := h.Client.Children(ctx, sel.NamespaceID, in.ID)
	if err != nil {
		return &rag.ResourceToolResult{Success: false, Error: err.Error()}, nil
	}

	result := &rag.ResourceToolResult{Success: true}
	for _, c := range children {
		result.Data = append(result.Data, toResourceInfo(c))
	}
	return result, nil
}

// GetParent returns a resource's parent folder, if any.
type GetParent struct{ Client *resourceapi.Client }

func (GetParent) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "get_parent",
		Description: "Return a resource's parent folder, if any.",
		Parameters:  []byte(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
	}
}

func (h GetParent) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("get_parent: decode args: %w", err)
	}

	parent, err := h.Client.Parent(ctx, sel.NamespaceID, in.ID)
	if err != nil {
		return &rag.ResourceToolResult{Success: false, Error: err.Error()}, nil
	}
	if parent == nil {
		return &rag.ResourceToolResult{Success: true}, nil
	}
	return &rag.ResourceToolResult{Success: true, Data: []rag.ResourceInfo{toResourceInfo(*parent)}}, nil
}

// FilterByTime lists resources updated within a time window.
type FilterByTime struct{ Client *resourceapi.Client }

func (FilterByTime) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "filter_by_time",
		Description: "List resources updated within a time window (RFC3339 bounds).",
		Parameters:  []byte(`{"type":"object","properties":{"after":{"type":"string"},"before":{"type":"string"}}}`),
	}
}

func (h FilterByTime) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	var in struct {
		After  string `json:"after"`
		Before string `json:"before"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("filter_by_time: decode args: %w", err)
	}

	resources, err := h.Client.List(ctx, sel.NamespaceID, resourceapi.ListFilter{UpdatedAfter: in.After, UpdatedBefore: in.Before})
	if err != nil {
		return &rag.ResourceToolResult{Success: false, Error: err.Error()}, nil
	}

	result := &rag.ResourceToolResult{Success: true}
	for _, r := range resources {
		result.Data = append(result.Data, toResourceInfo(r))
	}
	return result, nil
}

// FilterByTag lists resources carrying a given tag, optionally with a
// specific value.
type FilterByTag struct{ Client *resourceapi.Client }

func (FilterByTag) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "filter_by_tag",
		Description: "List resources carrying a given tag, optionally with a specific value.",
		Parameters:  []byte(`{"type":"object","properties":{"tag":{"type":"string"},"value":{"type":"string"}},"required":["tag"]}`),
	}
}

func (h FilterByTag) Invoke(ctx context.Context, args json.RawMessage, sel models.ToolSelection) (*rag.ResourceToolResult, error) {
	var in struct {
		Tag   string `json:"tag"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("filter_by_tag: decode args: %w", err)
	}

	resources, err := h.Client.List(ctx, sel.NamespaceID, resourceapi.ListFilter{Tag: in.Tag, TagValue: in.Value})
	if err != nil {
		return &rag.ResourceToolResult{Success: false, Error: err.Error()}, nil
	}

	result := &rag.ResourceToolResult{Success: true}
	for _, r := range resources {
		result.Data = append(result.Data, toResourceInfo(r))
	}
	return result, nil
}

var (
	_ rag.ResourceHandler = GetResources{}
	_ rag.ResourceHandler = GetChildren{}
	_ rag.ResourceHandler = GetParent{}
	_ rag.ResourceHandler = FilterByTime{}
	_ rag.ResourceHandler = FilterByTag{}
)
