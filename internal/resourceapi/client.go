// Package resourceapi is a plain net/http client for the backend's resource
// store (namespace-scoped documents: get/list/children/parent).
// internal/rag/resourcehandlers wraps this into the resource-class tool
// handlers the agent loop invokes.
package resourceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Resource mirrors one record from the backend's resource store.
type Resource struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	ResourceType string           `json:"resource_type"`
	NamespaceID  string           `json:"namespace_id"`
	ParentID     string           `json:"parent_id,omitempty"`
	Content      string           `json:"content,omitempty"`
	Tags         []map[string]any `json:"tags,omitempty"`
	UpdatedAt    string           `json:"updated_at"`
}

// Client is a thin REST client over the resource-API's HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
	headers map[string]string
}

// New builds a Client against baseURL (e.g. "https://backend.internal/api").
func New(baseURL string, httpClient *http.Client, headers map[string]string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, headers: headers}
}

// Get fetches one resource by id.
func (c *Client) Get(ctx context.Context, namespaceID, resourceID string) (*Resource, error) {
	var out Resource
	path := fmt.Sprintf("/namespaces/%s/resources/%s", url.PathEscape(namespaceID), url.PathEscape(resourceID))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Children lists the direct children of a resource (folder contents).
func (c *Client) Children(ctx context.Context, namespaceID, resourceID string) ([]Resource, error) {
	var out []Resource
	path := fmt.Sprintf("/namespaces/%s/resources/%s/children", url.PathEscape(namespaceID), url.PathEscape(resourceID))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Parent returns a resource's parent, or nil if it has none.
func (c *Client) Parent(ctx context.Context, namespaceID, resourceID string) (*Resource, error) {
	var out *Resource
	path := fmt.Sprintf("/namespaces/%s/resources/%s/parent", url.PathEscape(namespaceID), url.PathEscape(resourceID))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFilter narrows List to resources matching time and/or tag criteria.
type ListFilter struct {
	UpdatedAfter  string
	UpdatedBefore string
	Tag           string
	TagValue      string
}

// List returns resources in a namespace matching filter.
func (c *Client) List(ctx context.Context, namespaceID string, filter ListFilter) ([]Resource, error) {
	query := url.Values{}
	if filter.UpdatedAfter != "" {
		query.Set("updated_after", filter.UpdatedAfter)
	}
	if filter.UpdatedBefore != "" {
		query.Set("updated_before", filter.UpdatedBefore)
	}
	if filter.Tag != "" {
		query.Set("tag", filter.Tag)
	}
	if filter.TagValue != "" {
		query.Set("tag_value", filter.TagValue)
	}

	var out []Resource
	path := fmt.Sprintf("/namespaces/%s/resources", url.PathEscape(namespaceID))
	if err := c.getJSON(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("resourceapi: build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("resourceapi: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("resourceapi: not found: %s", path)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("resourceapi: unexpected status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("resourceapi: decode response for %s: %w", path, err)
	}
	return nil
}
