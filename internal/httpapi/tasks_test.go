package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

func newTestRouter(h *TaskHandlers) chi.Router {
	r := chi.NewRouter()
	r.Get("/task", h.Poll)
	r.Post("/task", h.Enqueue)
	r.Get("/tasks/{id}", h.GetTask)
	r.Post("/tasks/{id}/cancel", h.CancelTask)
	r.Post("/internal/api/v1/wizard/callback", h.Callback)
	return r
}

func TestEnqueueThenPoll(t *testing.T) {
	store := NewMemoryStore()
	h := NewTaskHandlers(store, nil)
	router := newTestRouter(h)

	body, _ := json.Marshal(wire.Task{ID: "t1", Function: "agent-run"})
	req := httptest.NewRequest(http.MethodPost, "/task", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	pollReq := httptest.NewRequest(http.MethodGet, "/task", nil)
	pollRec := httptest.NewRecorder()
	router.ServeHTTP(pollRec, pollReq)
	if pollRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", pollRec.Code)
	}
	var task wire.Task
	if err := json.Unmarshal(pollRec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "t1" {
		t.Errorf("expected task t1, got %q", task.ID)
	}
}

func TestEnqueueMissingFieldsRejected(t *testing.T) {
	store := NewMemoryStore()
	h := NewTaskHandlers(store, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/task", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := NewMemoryStore()
	h := NewTaskHandlers(store, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCallbackCompletesTask(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Enqueue(context.Background(), &wire.Task{ID: "t2", Function: "agent-run"})
	h := NewTaskHandlers(store, nil)
	router := newTestRouter(h)

	payload, _ := json.Marshal(wire.CallbackPayload{ID: "t2", Status: wire.TaskStatusSucceeded})
	req := httptest.NewRequest(http.MethodPost, "/internal/api/v1/wizard/callback", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequestUploadWithoutBlobsReturns501(t *testing.T) {
	store := NewMemoryStore()
	h := NewTaskHandlers(store, nil)
	router := chi.NewRouter()
	router.Post("/internal/api/v1/wizard/tasks/{id}/upload", h.RequestUpload)

	req := httptest.NewRequest(http.MethodPost, "/internal/api/v1/wizard/tasks/t1/upload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}
