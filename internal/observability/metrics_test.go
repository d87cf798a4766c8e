package observability

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Metrics register with the process-global default registry, so NewMetrics
// must only run once across the whole test binary.
var (
	metricsOnce sync.Once
	testMetrics *Metrics
)

func sharedMetrics() *Metrics {
	metricsOnce.Do(func() { testMetrics = NewMetrics() })
	return testMetrics
}

func TestRecordToolExecutionCountsByNameAndStatus(t *testing.T) {
	m := sharedMetrics()

	m.RecordToolExecution("private_search", "success", 0.25)
	m.RecordToolExecution("private_search", "success", 0.75)
	m.RecordToolExecution("web_search", "timeout", 30)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("private_search", "success")); got != 2 {
		t.Errorf("private_search success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("web_search", "timeout")); got != 1 {
		t.Errorf("web_search timeout count = %v, want 1", got)
	}
}

func TestRecordPollCountsOutcomes(t *testing.T) {
	m := sharedMetrics()

	m.RecordPoll("idle")
	m.RecordPoll("idle")
	m.RecordPoll("task")
	m.RecordPoll("error")

	if got := testutil.ToFloat64(m.PollCounter.WithLabelValues("idle")); got != 2 {
		t.Errorf("idle poll count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PollCounter.WithLabelValues("task")); got != 1 {
		t.Errorf("task poll count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PollCounter.WithLabelValues("error")); got != 1 {
		t.Errorf("error poll count = %v, want 1", got)
	}
}

func TestRecordTaskCountsTerminalStates(t *testing.T) {
	m := sharedMetrics()

	m.RecordTask("agent-run", "succeeded", 12.5)
	m.RecordTask("agent-run", "failed", 3.1)
	m.RecordTask("file_reader", "cancelled", 600)

	if got := testutil.ToFloat64(m.TaskCounter.WithLabelValues("agent-run", "succeeded")); got != 1 {
		t.Errorf("agent-run succeeded count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TaskCounter.WithLabelValues("agent-run", "failed")); got != 1 {
		t.Errorf("agent-run failed count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TaskCounter.WithLabelValues("file_reader", "cancelled")); got != 1 {
		t.Errorf("file_reader cancelled count = %v, want 1", got)
	}
}

func TestRecordCallbackCountsPaths(t *testing.T) {
	m := sharedMetrics()

	m.RecordCallback("inline", "success")
	m.RecordCallback("s3", "success")
	m.RecordCallback("summary_only", "error")

	if got := testutil.ToFloat64(m.CallbackCounter.WithLabelValues("inline", "success")); got != 1 {
		t.Errorf("inline success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CallbackCounter.WithLabelValues("s3", "success")); got != 1 {
		t.Errorf("s3 success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CallbackCounter.WithLabelValues("summary_only", "error")); got != 1 {
		t.Errorf("summary_only error count = %v, want 1", got)
	}
}
