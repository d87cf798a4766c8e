// Package schedule triggers recurring tasks on a cron expression. It is a
// thin adaptation of internal/tasks.Scheduler's poll/acquire/cleanup
// machinery, generalized from "agent conversation turn" execution against a
// SQL-backed Store to "enqueue an agent-run task" against the task queue's
// own Enqueuer, and built directly on robfig/cron/v3's own scheduler rather
// than reimplementing cron-expression math.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/pkg/wire"
)

// Enqueuer is the subset of internal/httpapi.QueueStore a schedule needs.
// Declared locally so this package has no dependency on internal/httpapi;
// *httpapi.MemoryStore and *httpapi.RedisStore both satisfy it already.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *wire.Task) error
}

// Entry is one recurring trigger: a cron expression and the task it
// enqueues when due.
type Entry struct {
	// Name identifies the entry in logs; does not need to be unique.
	Name string
	// Spec is a standard five-field or robfig/cron/v3 six-field (with
	// seconds) cron expression, or a descriptor such as "@every 1h".
	Spec string
	// Function is the wire.Task.Function dispatched to workers, e.g.
	// "agent-run".
	Function string
	// NamespaceID and UserID populate the enqueued task's identity
	// fields; both are optional.
	NamespaceID string
	UserID      string
	// Input is the raw JSON payload passed through to the handler
	// unchanged on every trigger.
	Input []byte
}

// Scheduler runs a fixed set of Entry triggers against an Enqueuer on
// robfig/cron/v3's own clock. Unlike internal/tasks.Scheduler it holds no
// persistent execution history; a missed tick simply does not fire, which
// matches a cron-triggered agent run's at-most-once-per-tick semantics.
type Scheduler struct {
	cron     *cron.Cron
	enqueuer Enqueuer
	logger   *observability.Logger

	mu      sync.Mutex
	running bool
}

// New builds a Scheduler. logger may be nil, in which case a default
// info-level logger is used.
func New(enqueuer Enqueuer, logger *observability.Logger) *Scheduler {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser)),
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Add registers an entry. It must be called before Start; entries added
// after Start take effect on the next cron tick per cron.Cron's own
// semantics.
func (s *Scheduler) Add(entry Entry) error {
	_, err := s.cron.AddFunc(entry.Spec, func() {
		s.trigger(entry)
	})
	if err != nil {
		return fmt.Errorf("schedule: add entry %q: %w", entry.Name, err)
	}
	return nil
}

func (s *Scheduler) trigger(entry Entry) {
	task := &wire.Task{
		ID:          uuid.NewString(),
		Function:    entry.Function,
		NamespaceID: entry.NamespaceID,
		UserID:      entry.UserID,
		Input:       entry.Input,
	}
	ctx := context.Background()
	if err := s.enqueuer.Enqueue(ctx, task); err != nil {
		s.logger.Error(ctx, "schedule: enqueue failed", "entry", entry.Name, "function", entry.Function, "error", err)
		return
	}
	s.logger.Info(ctx, "schedule: triggered", "entry", entry.Name, "function", entry.Function, "task_id", task.ID)
}

// Start begins running entries in the background. It returns immediately;
// robfig/cron/v3 manages its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop blocks until any in-flight trigger finishes, per cron.Cron.Stop's
// own contract.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
