package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/wizardd/internal/objectstore"
	"github.com/haasonsaas/wizardd/pkg/wire"
)

// TaskHandlers implements the task queue backend's exposed surface: GET
// /task, GET /tasks/{id}, the inline/S3 callback endpoints, and the
// cancellation endpoint a producer uses to cancel work in flight.
type TaskHandlers struct {
	store  QueueStore
	blobs  *objectstore.Store
}

// NewTaskHandlers builds a TaskHandlers. blobs may be nil, in which case
// the upload/s3-callback endpoints respond 501 — a backend not configured
// for large-payload offload.
func NewTaskHandlers(store QueueStore, blobs *objectstore.Store) *TaskHandlers {
	return &TaskHandlers{store: store, blobs: blobs}
}

// pollWait bounds how long GET /task waits on an empty queue before
// answering 204.
const pollWait = 5 * time.Second

// Poll implements GET /task: 200 with a Task, or 204 when idle.
func (h *TaskHandlers) Poll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pollWait)
	defer cancel()
	task, err := h.store.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// GetTask implements GET /tasks/{id}.
func (h *TaskHandlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Enqueue implements POST /task: a producer submits new work.
func (h *TaskHandlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	var task wire.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if task.ID == "" || task.Function == "" {
		http.Error(w, "id and function are required", http.StatusBadRequest)
		return
	}
	if err := h.store.Enqueue(r.Context(), &task); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, &task)
}

// CancelTask implements POST /tasks/{id}/cancel.
func (h *TaskHandlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Callback implements POST /internal/api/v1/wizard/callback: the inline
// result-delivery path from internal/worker/callback.Sender.
func (h *TaskHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	var payload wire.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.store.Complete(r.Context(), payload); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestUpload implements POST /internal/api/v1/wizard/tasks/{id}/upload:
// issues a presigned PUT URL for the oversized-callback path.
func (h *TaskHandlers) RequestUpload(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		http.Error(w, "object storage not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	url, err := h.blobs.PresignPut(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wire.UploadURLResponse{URL: url})
}

// NotifyUploaded implements POST /internal/api/v1/wizard/tasks/{id}/callback:
// the worker has PUT its payload to S3; fetch it and apply it as the
// task's terminal state.
func (h *TaskHandlers) NotifyUploaded(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		http.Error(w, "object storage not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	data, err := h.blobs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var payload wire.CallbackPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		http.Error(w, "invalid payload in object storage", http.StatusBadGateway)
		return
	}
	if err := h.store.Complete(r.Context(), payload); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
