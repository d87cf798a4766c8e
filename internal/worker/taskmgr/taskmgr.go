// Package taskmgr wraps a task's execution function with two concurrent
// supervisors: a timeout that bounds wall-clock time, and a cancellation
// monitor that polls the backend for a cooperative cancel signal. Whichever supervisor fires first wins; both stop cleanly on the
// execution's normal completion.
package taskmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/wizardd/pkg/wire"
)

// DefaultCheckInterval is the cancellation monitor's poll period when
// Config.CheckInterval is unset.
const DefaultCheckInterval = 3 * time.Second

// Config bounds one supervised execution.
type Config struct {
	// FunctionTimeout, if positive, takes precedence over GlobalTimeout.
	FunctionTimeout time.Duration
	// GlobalTimeout is the fallback deadline when no function-specific
	// timeout is configured.
	GlobalTimeout time.Duration
	// CheckInterval is the cancellation monitor's poll period (default 3s).
	CheckInterval time.Duration
}

func (c Config) deadline() (time.Duration, string) {
	if c.FunctionTimeout > 0 {
		return c.FunctionTimeout, "function"
	}
	return c.GlobalTimeout, "global"
}

// TaskFetcher is the narrow backend capability the cancellation monitor
// needs: point lookup of a task's current state. taskqueue.Client
// satisfies this.
type TaskFetcher interface {
	GetTask(ctx context.Context, id string) (*wire.Task, error)
}

type execResult struct {
	output json.RawMessage
	err    error
}

// Supervise runs fn to completion, racing it against a timeout deadline and
// a cancellation monitor. It returns fn's output on success, or a
// TaskException classifying the failure (timeout, cancellation, or fn's own
// error) otherwise. Logging of transient fetch errors is the caller's
// responsibility: onFetchError, if non-nil, is invoked for every failed
// GetTask poll without stopping the monitor.
func Supervise(
	ctx context.Context,
	cfg Config,
	fetcher TaskFetcher,
	taskID string,
	fn func(context.Context) (json.RawMessage, error),
	onFetchError func(error),
) (json.RawMessage, *wire.TaskException) {
	deadline, timeoutSource := cfg.deadline()
	checkInterval := cfg.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	var execCtx context.Context
	var cancelExec context.CancelFunc
	if deadline > 0 {
		execCtx, cancelExec = context.WithTimeout(ctx, deadline)
	} else {
		execCtx, cancelExec = context.WithCancel(ctx)
	}
	defer cancelExec()

	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	var monitorCancelled atomic.Bool

	resultCh := make(chan execResult, 1)
	go func() {
		output, err := fn(execCtx)
		resultCh <- execResult{output: output, err: err}
	}()

	if fetcher != nil {
		go runCancellationMonitor(ctx, done, checkInterval, fetcher, taskID, &monitorCancelled, cancelExec, onFetchError)
	}

	// Priority drain: a non-blocking check first, so an fn that completes
	// exactly as the deadline fires is classified as success, not a race.
	select {
	case r := <-resultCh:
		stop()
		return classify(r, deadline, timeoutSource, false)
	default:
	}

	select {
	case r := <-resultCh:
		stop()
		return classify(r, deadline, timeoutSource, false)
	case <-execCtx.Done():
		select {
		case r := <-resultCh:
			stop()
			return classify(r, deadline, timeoutSource, false)
		default:
		}
		stop()
		return classify(execResult{err: execCtx.Err()}, deadline, timeoutSource, monitorCancelled.Load())
	}
}

func runCancellationMonitor(
	ctx context.Context,
	done <-chan struct{},
	interval time.Duration,
	fetcher TaskFetcher,
	taskID string,
	cancelled *atomic.Bool,
	cancelExec context.CancelFunc,
	onFetchError func(error),
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			task, err := fetcher.GetTask(ctx, taskID)
			if err != nil {
				if onFetchError != nil {
					onFetchError(err)
				}
				continue
			}
			if task != nil && task.CanceledAt != nil {
				cancelled.Store(true)
				cancelExec()
				return
			}
		}
	}
}

func classify(r execResult, deadline time.Duration, timeoutSource string, monitorCancelled bool) (json.RawMessage, *wire.TaskException) {
	if r.err == nil {
		return r.output, nil
	}
	if monitorCancelled {
		return nil, &wire.TaskException{Type: "CancelledError", Message: "task canceled by backend"}
	}
	if errors.Is(r.err, context.DeadlineExceeded) {
		return nil, &wire.TaskException{
			Type:          "TimeoutError",
			Message:       fmt.Sprintf("execution exceeded %s timeout", timeoutSource),
			TimeoutSource: timeoutSource,
			TimeoutSecs:   deadline.Seconds(),
		}
	}
	if errors.Is(r.err, context.Canceled) {
		return nil, &wire.TaskException{Type: "CancelledError", Message: "execution canceled"}
	}
	return nil, &wire.TaskException{Type: "ExecutionError", Message: r.err.Error()}
}
