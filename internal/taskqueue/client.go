// Package taskqueue is the worker-side client for the task queue backend:
// GET /task to poll for work, GET /tasks/{id} for the cancellation
// monitor's point lookups. A thin net/http wrapper, no RPC framework.
package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

// Client is the consumed interface a Worker polls and a cancellation
// monitor fetches from. ErrNoTask signals the backend's 204 ("idle");
// callers must not treat it as a transient failure.
type Client interface {
	// Poll fetches the next queued task, or (nil, ErrNoTask) when the
	// queue is empty.
	Poll(ctx context.Context) (*wire.Task, error)
	// GetTask fetches the current state of one task by id, used by the
	// cancellation monitor to observe CanceledAt.
	GetTask(ctx context.Context, id string) (*wire.Task, error)
}

// ErrNoTask is returned by Poll when the backend answers 204 No Content.
var ErrNoTask = fmt.Errorf("taskqueue: no task available")

// HTTPClient implements Client against the REST surface of §6: GET /task,
// GET /tasks/{id}.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	headers map[string]string
}

// NewHTTPClient builds an HTTPClient. headers (e.g. a bearer token) are
// attached to every request.
func NewHTTPClient(baseURL string, httpClient *http.Client, headers map[string]string) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, http: httpClient, headers: headers}
}

// Poll issues GET /task. A 200 response is decoded as a wire.Task; a 204
// response yields ErrNoTask; any other status is a transient-network-error
// candidate the caller should log and retry.
func (c *HTTPClient) Poll(ctx context.Context) (*wire.Task, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/task", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: poll: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, ErrNoTask
	case http.StatusOK:
		var task wire.Task
		if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
			return nil, fmt.Errorf("taskqueue: decode task: %w", err)
		}
		return &task, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("taskqueue: poll: unexpected status %d: %s", resp.StatusCode, body)
	}
}

// GetTask issues GET /tasks/{id}.
func (c *HTTPClient) GetTask(ctx context.Context, id string) (*wire.Task, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/tasks/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: get task %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("taskqueue: get task %s: unexpected status %d: %s", id, resp.StatusCode, body)
	}
	var task wire.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("taskqueue: decode task %s: %w", id, err)
	}
	return &task, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

var _ Client = (*HTTPClient)(nil)
