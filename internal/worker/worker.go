// Package worker implements the poll/dispatch/callback state machine: a
// single worker repeatedly polls the task queue, dispatches matched
// functions under the task manager's timeout and cancellation supervision,
// and always delivers a result via the callback protocol.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/haasonsaas/wizardd/internal/backoff"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/internal/taskqueue"
	"github.com/haasonsaas/wizardd/internal/worker/callback"
	"github.com/haasonsaas/wizardd/internal/worker/taskmgr"
	"github.com/haasonsaas/wizardd/pkg/wire"
)

// FunctionHandler executes one task's function. The worker supervises it
// with a timeout and cooperative cancellation; handlers are expected to
// honor ctx.
type FunctionHandler func(ctx context.Context, task *wire.Task) (output json.RawMessage, err error)

// DefaultPollInterval is how long an idle worker sleeps between polls.
const DefaultPollInterval = time.Second

// Config bounds one worker's supervised execution and poll cadence.
type Config struct {
	// PollInterval is the idle-loop sleep (default 1s).
	PollInterval time.Duration
	// FunctionTimeouts maps function name to its dedicated timeout.
	// A task's own Payload.FunctionTimeout, if set, takes precedence.
	FunctionTimeouts map[string]time.Duration
	// GlobalTimeout bounds any function without a dedicated timeout.
	GlobalTimeout time.Duration
	// CheckInterval is the cancellation monitor's poll period (default 3s).
	CheckInterval time.Duration
	// Metrics, if set, receives poll-outcome and task terminal-state
	// counters.
	Metrics *observability.Metrics
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

// Worker runs the idle/poll/running/terminal/callback state machine for
// one goroutine's worth of task throughput.
type Worker struct {
	id       int
	queue    taskqueue.Client
	handlers map[string]FunctionHandler
	health   *HealthTracker
	callback *callback.Sender
	cfg      Config
	logger   *slog.Logger
}

// New builds a Worker. health and callback may be shared across an entire
// Pool; queue and handlers are typically shared too (handlers are
// stateless, namespaced by function name).
func New(id int, queue taskqueue.Client, handlers map[string]FunctionHandler, health *HealthTracker, cb *callback.Sender, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:       id,
		queue:    queue,
		handlers: handlers,
		health:   health,
		callback: cb,
		cfg:      cfg,
		logger:   logger.With("component", "worker", "worker_id", id),
	}
}

// Run blocks the calling goroutine, polling and dispatching tasks until ctx
// is done. Consecutive poll failures back off exponentially; a successful
// poll (task or idle 204) resets the curve.
func (w *Worker) Run(ctx context.Context) {
	w.health.RegisterWorker(w.id)

	policy := backoff.DefaultPolicy()
	policy.Initial = w.cfg.pollInterval()
	pollFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Poll(ctx)
		switch {
		case errors.Is(err, taskqueue.ErrNoTask):
			pollFailures = 0
			w.recordPoll("idle")
			w.health.UpdateStatus(w.id, StatusIdle, time.Time{})
			if sleepErr := backoff.SleepWithContext(ctx, w.cfg.pollInterval()); sleepErr != nil {
				return
			}
		case err != nil:
			// transient-network-error: log and retry without advancing state.
			pollFailures++
			w.recordPoll("error")
			w.logger.Warn("poll failed, retrying", "error", err, "consecutive_failures", pollFailures)
			w.health.IncrementErrorCount(w.id)
			w.health.UpdateStatus(w.id, StatusError, time.Time{})
			if sleepErr := policy.Sleep(ctx, pollFailures); sleepErr != nil {
				return
			}
		default:
			pollFailures = 0
			w.recordPoll("task")
			w.dispatch(ctx, task)
		}
	}
}

func (w *Worker) recordPoll(outcome string) {
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordPoll(outcome)
	}
}

// dispatch runs one task end to end: lookup, supervised execution,
// terminal-state bookkeeping, and callback delivery.
func (w *Worker) dispatch(ctx context.Context, task *wire.Task) {
	w.health.UpdateStatus(w.id, StatusRunning, time.Time{})

	taskCtx := ctx
	if len(task.Payload.TraceHeaders) > 0 {
		carrier := propagation.MapCarrier(task.Payload.TraceHeaders)
		taskCtx = otel.GetTextMapPropagator().Extract(ctx, carrier)
	}
	taskCtx, span := otel.Tracer("github.com/haasonsaas/wizardd/internal/worker").Start(taskCtx, "worker.dispatch")
	defer span.End()

	started := time.Now()
	task.StartedAt = &started

	var output json.RawMessage
	var exception *wire.TaskException

	handler, ok := w.handlers[task.Function]
	if !ok {
		exception = &wire.TaskException{Type: "ValidationError", Message: fmt.Sprintf("unknown function %q", task.Function)}
	} else {
		cfg := taskmgr.Config{
			FunctionTimeout: w.cfg.FunctionTimeouts[task.Function],
			GlobalTimeout:   w.cfg.GlobalTimeout,
			CheckInterval:   w.cfg.CheckInterval,
		}
		if task.Payload.FunctionTimeout != nil {
			cfg.FunctionTimeout = *task.Payload.FunctionTimeout
		}
		if task.Payload.GlobalTimeout != nil {
			cfg.GlobalTimeout = *task.Payload.GlobalTimeout
		}

		output, exception = taskmgr.Supervise(taskCtx, cfg, w.queue, task.ID, func(c context.Context) (json.RawMessage, error) {
			return handler(c, task)
		}, func(fetchErr error) {
			w.logger.Warn("cancellation monitor poll failed", "task_id", task.ID, "error", fetchErr)
		})
	}

	ended := time.Now()
	task.EndedAt = &ended
	task.Output = output
	task.Exception = exception

	switch {
	case exception == nil:
		task.Status = wire.TaskStatusSucceeded
	case exception.Type == "CancelledError":
		task.Status = wire.TaskStatusCancelled
		task.CanceledAt = &ended
	default:
		task.Status = wire.TaskStatusFailed
		w.health.IncrementErrorCount(w.id)
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordTask(task.Function, string(task.Status), ended.Sub(started).Seconds())
	}

	if w.callback != nil {
		if err := w.callback.Send(ctx, task); err != nil {
			w.logger.Error("callback delivery failed", "task_id", task.ID, "error", err)
		}
	}

	w.health.UpdateStatus(w.id, StatusIdle, ended)
}

// Pool owns N Workers, each polling and dispatching on its own goroutine.
type Pool struct {
	workers []*Worker
	health  *HealthTracker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool builds a pool of count workers sharing one HealthTracker, task
// queue client, handler set, and callback sender.
func NewPool(count int, queue taskqueue.Client, handlers map[string]FunctionHandler, cb *callback.Sender, cfg Config, logger *slog.Logger) *Pool {
	if count <= 0 {
		count = 1
	}
	health := NewHealthTracker()
	p := &Pool{health: health}
	for i := 0; i < count; i++ {
		p.workers = append(p.workers, New(i, queue, handlers, health, cb, cfg, logger))
	}
	return p
}

// Start launches one goroutine per worker. It returns immediately; callers
// stop the pool with Stop.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(runCtx)
		}(w)
	}
}

// Stop cancels every worker's context and blocks until all have returned.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Health returns the pool's shared tracker, for the /health HTTP handler.
func (p *Pool) Health() *HealthTracker {
	return p.health
}
