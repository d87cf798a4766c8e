// Package httpapi exposes the task queue backend's HTTP surface: GET
// /task, GET /tasks/{id}, the inline/S3 callback endpoints, the SSE chat
// endpoint, and GET /health.
package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

// QueueStore is the task queue backend's storage seam: enqueue a task,
// dequeue the next one (LPUSH/BRPOP semantics), look one up by id, mark it
// cancelled, and record its terminal callback payload. MemoryStore and
// RedisStore both implement it.
type QueueStore interface {
	Enqueue(ctx context.Context, task *wire.Task) error
	Dequeue(ctx context.Context) (*wire.Task, error)
	Get(ctx context.Context, id string) (*wire.Task, error)
	Cancel(ctx context.Context, id string) error
	Complete(ctx context.Context, payload wire.CallbackPayload) error
}

// ErrTaskNotFound is returned by Get/Cancel/Complete for an unknown id.
var ErrTaskNotFound = fmt.Errorf("httpapi: task not found")

// MemoryStore is an in-process reference QueueStore: a FIFO queue plus a
// by-id index, guarded by one mutex. Suitable for tests and single-process
// deployments; RedisStore is the distributed equivalent.
type MemoryStore struct {
	mu     sync.Mutex
	queue  []string
	tasks  map[string]*wire.Task
	nowFn  func() time.Time
	signal chan struct{}
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]*wire.Task),
		nowFn:  time.Now,
		signal: make(chan struct{}, 1),
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, task *wire.Task) error {
	s.mu.Lock()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.nowFn()
	}
	task.Status = wire.TaskStatusPending
	s.tasks[task.ID] = task
	s.queue = append(s.queue, task.ID)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the oldest pending task, blocking (via a short poll loop,
// mirroring Redis BRPOP's blocking semantics) until one is available or ctx
// is done.
func (s *MemoryStore) Dequeue(ctx context.Context) (*wire.Task, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			id := s.queue[0]
			s.queue = s.queue[1:]
			task := s.tasks[id]
			if task != nil {
				now := s.nowFn()
				task.Status = wire.TaskStatusRunning
				task.StartedAt = &now
			}
			s.mu.Unlock()
			if task != nil {
				return task, nil
			}
			continue
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.signal:
		case <-time.After(time.Second):
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*wire.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	now := s.nowFn()
	task.CanceledAt = &now
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, payload wire.CallbackPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[payload.ID]
	if !ok {
		return ErrTaskNotFound
	}
	now := s.nowFn()
	task.Status = payload.Status
	task.Output = payload.Output
	task.Exception = payload.Exception
	task.EndedAt = &now
	return nil
}

var _ QueueStore = (*MemoryStore)(nil)
