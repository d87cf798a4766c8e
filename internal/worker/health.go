package worker

import (
	"sync"
	"time"
)

// HealthStatus is a worker's last-reported state.
type HealthStatus string

const (
	StatusIdle    HealthStatus = "idle"
	StatusRunning HealthStatus = "running"
	StatusError   HealthStatus = "error"
)

// UnhealthyAfter is the heartbeat staleness window past which a worker is
// reported unhealthy.
const UnhealthyAfter = 30 * time.Second

// WorkerHealth is one worker's snapshot entry.
type WorkerHealth struct {
	ID            int
	Status        HealthStatus
	LastHeartbeat time.Time
	LastTaskAt    time.Time
	ErrorCount    int
	TotalTasks    int
	Healthy       bool
}

// HealthSnapshot is the process-wide health view exposed by GET /health.
type HealthSnapshot struct {
	Total   int
	Healthy int
	Workers []WorkerHealth
}

// HealthTracker is a process-wide, mutex-guarded registry of worker
// heartbeats. Workers (writers) call UpdateStatus on every state
// transition; the health HTTP handler (reader) calls Snapshot.
type HealthTracker struct {
	mu      sync.Mutex
	workers map[int]*WorkerHealth
	now     func() time.Time
}

// NewHealthTracker builds an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{workers: make(map[int]*WorkerHealth), now: time.Now}
}

// RegisterWorker adds worker id to the tracker in idle state.
func (h *HealthTracker) RegisterWorker(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[id] = &WorkerHealth{ID: id, Status: StatusIdle, LastHeartbeat: h.now()}
}

// UpdateStatus records a state transition and refreshes the heartbeat. When
// the worker just finished a task, pass lastTaskAt as that completion time;
// otherwise pass the zero time to leave it unchanged.
func (h *HealthTracker) UpdateStatus(id int, status HealthStatus, lastTaskAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.workers[id]
	if !ok {
		w = &WorkerHealth{ID: id}
		h.workers[id] = w
	}
	w.Status = status
	w.LastHeartbeat = h.now()
	if !lastTaskAt.IsZero() {
		w.LastTaskAt = lastTaskAt
		w.TotalTasks++
	}
}

// IncrementErrorCount bumps a worker's error counter without otherwise
// touching its status.
func (h *HealthTracker) IncrementErrorCount(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.workers[id]; ok {
		w.ErrorCount++
	}
}

// Snapshot returns the current health view. A worker is healthy if its
// heartbeat is younger than UnhealthyAfter.
func (h *HealthTracker) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	snap := HealthSnapshot{Total: len(h.workers)}
	for _, w := range h.workers {
		entry := *w
		entry.Healthy = now.Sub(w.LastHeartbeat) < UnhealthyAfter
		if entry.Healthy {
			snap.Healthy++
		}
		snap.Workers = append(snap.Workers, entry)
	}
	return snap
}

// IsHealthy reports whether every registered worker is within the
// heartbeat window (used by the /health handler to choose 200 vs 503).
func (s HealthSnapshot) IsHealthy() bool {
	return s.Total > 0 && s.Healthy == s.Total
}
