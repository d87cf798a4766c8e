// Package wire defines the task queue's over-the-wire shapes: the unit of
// work dispatched to a worker, and the exception record a worker reports
// back to the backend on failure.
package wire

import (
	"encoding/json"
	"time"
)

// TaskStatus is the terminal or in-flight state of a task as seen by the
// backend.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is the unit of work a worker polls, executes, and reports back on.
type Task struct {
	ID          string          `json:"id"`
	Priority    int             `json:"priority,omitempty"`
	NamespaceID string          `json:"namespace_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Function    string          `json:"function"`
	Input       json.RawMessage `json:"input,omitempty"`
	Payload     TaskPayload     `json:"payload,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Exception   *TaskException  `json:"exception,omitempty"`
	Status      TaskStatus      `json:"status,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
}

// TaskPayload is pass-through metadata that rides along with a task but is
// never interpreted as task input: trace propagation headers and
// per-function timeout overrides.
type TaskPayload struct {
	TraceHeaders    map[string]string `json:"trace_headers,omitempty"`
	FunctionTimeout *time.Duration    `json:"function_timeout,omitempty"`
	GlobalTimeout   *time.Duration    `json:"global_timeout,omitempty"`
}

// CallbackPayload is the exact shape POSTed to the backend's callback
// endpoints: the inline callback carries all four fields, the S3-fallback
// summary-only callback carries only ID and a reduced Exception.
type CallbackPayload struct {
	ID        string          `json:"id"`
	Exception *TaskException  `json:"exception,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Status    TaskStatus      `json:"status,omitempty"`
}

// UploadURLResponse is the backend's response to the presigned-upload-URL
// request: a single PUT URL scoped to one task id.
type UploadURLResponse struct {
	URL string `json:"url"`
}

// TaskException is the failure record a worker attaches to a task. The
// shape is stable across validation errors, handler panics, timeouts, and
// cancellations — only Type and the optional TimeoutSource vary.
type TaskException struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	Traceback     string `json:"traceback,omitempty"`
	TimeoutSource string `json:"timeout_source,omitempty"` // "function" | "global"
	TimeoutSecs   float64 `json:"timeout,omitempty"`
}

// IsTerminal reports whether the task has reached a state that will not
// change again (ended_at has been set). A cancelled task may still have
// ended_at set for audit purposes; the two are not mutually exclusive.
func (t *Task) IsTerminal() bool {
	return t.EndedAt != nil
}
