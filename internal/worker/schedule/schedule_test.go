package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*wire.Task
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *wire.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func TestSchedulerTriggersOnEverySecond(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := New(enq, nil)
	if err := s.Add(Entry{Name: "heartbeat", Spec: "@every 1s", Function: "agent-run"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for enq.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if enq.count() == 0 {
		t.Fatal("expected at least one triggered task")
	}
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := New(&fakeEnqueuer{}, nil)
	if err := s.Add(Entry{Name: "bad", Spec: "not a cron expression", Function: "agent-run"}); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New(&fakeEnqueuer{}, nil)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSchedulerTaskCarriesEntryIdentity(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := New(enq, nil)
	if err := s.Add(Entry{
		Name:        "daily-digest",
		Spec:        "@every 1s",
		Function:    "agent-run",
		NamespaceID: "ns-1",
		UserID:      "user-1",
		Input:       []byte(`{"query":"summarize today"}`),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for enq.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	enq.mu.Lock()
	defer enq.mu.Unlock()
	if len(enq.tasks) == 0 {
		t.Fatal("expected a triggered task")
	}
	task := enq.tasks[0]
	if task.Function != "agent-run" || task.NamespaceID != "ns-1" || task.UserID != "user-1" {
		t.Errorf("unexpected task identity: %+v", task)
	}
	if task.ID == "" {
		t.Error("expected a generated task ID")
	}
}
