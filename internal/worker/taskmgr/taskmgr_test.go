package taskmgr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

type stubFetcher struct {
	task *wire.Task
	err  error
}

func (s *stubFetcher) GetTask(ctx context.Context, id string) (*wire.Task, error) {
	return s.task, s.err
}

func TestSuperviseSuccess(t *testing.T) {
	out, exc := Supervise(context.Background(), Config{GlobalTimeout: time.Second}, nil, "t1", func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}, nil)
	if exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	if string(out) != `{"ok":true}` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSuperviseFunctionTimeout(t *testing.T) {
	out, exc := Supervise(context.Background(), Config{FunctionTimeout: 10 * time.Millisecond}, nil, "t1", func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	if out != nil {
		t.Fatalf("expected nil output, got %s", out)
	}
	if exc == nil || exc.Type != "TimeoutError" || exc.TimeoutSource != "function" {
		t.Fatalf("expected function TimeoutError, got %+v", exc)
	}
}

func TestSuperviseGlobalTimeoutWhenNoFunctionTimeout(t *testing.T) {
	out, exc := Supervise(context.Background(), Config{GlobalTimeout: 10 * time.Millisecond}, nil, "t1", func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	if out != nil {
		t.Fatalf("expected nil output, got %s", out)
	}
	if exc == nil || exc.Type != "TimeoutError" || exc.TimeoutSource != "global" {
		t.Fatalf("expected global TimeoutError, got %+v", exc)
	}
}

func TestSuperviseCompletingAtDeadlineIsSuccess(t *testing.T) {
	// fn returns immediately before the (very short) deadline can fire;
	// the priority-drain check must classify this as success, not a race.
	out, exc := Supervise(context.Background(), Config{FunctionTimeout: 50 * time.Millisecond}, nil, "t1", func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`"done"`), nil
	}, nil)
	if exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	if string(out) != `"done"` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSuperviseCancellationMonitorDetectsCancel(t *testing.T) {
	canceledAt := time.Now()
	fetcher := &stubFetcher{task: &wire.Task{ID: "t1", CanceledAt: &canceledAt}}

	out, exc := Supervise(context.Background(), Config{GlobalTimeout: time.Minute, CheckInterval: 5 * time.Millisecond}, fetcher, "t1", func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	if out != nil {
		t.Fatalf("expected nil output, got %s", out)
	}
	if exc == nil || exc.Type != "CancelledError" {
		t.Fatalf("expected CancelledError, got %+v", exc)
	}
}

func TestSuperviseTransientFetchErrorsDoNotStopMonitor(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection refused")}
	var fetchErrors int
	out, exc := Supervise(context.Background(), Config{GlobalTimeout: 50 * time.Millisecond, CheckInterval: 5 * time.Millisecond}, fetcher, "t1", func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, func(error) { fetchErrors++ })
	if exc == nil || exc.Type != "TimeoutError" {
		t.Fatalf("expected TimeoutError despite transient fetch errors, got %+v", exc)
	}
	if out != nil {
		t.Fatalf("expected nil output, got %s", out)
	}
	if fetchErrors == 0 {
		t.Fatal("expected at least one fetch error to be reported")
	}
}

func TestSuperviseFnErrorIsExecutionError(t *testing.T) {
	out, exc := Supervise(context.Background(), Config{GlobalTimeout: time.Second}, nil, "t1", func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}, nil)
	if out != nil {
		t.Fatalf("expected nil output, got %s", out)
	}
	if exc == nil || exc.Type != "ExecutionError" || exc.Message != "boom" {
		t.Fatalf("unexpected exception: %+v", exc)
	}
}
