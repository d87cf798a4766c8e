package httpapi

import (
	"net/http"
	"time"

	"github.com/haasonsaas/wizardd/internal/worker"
)

// healthResponse is the GET /health body.
type healthResponse struct {
	Status  string              `json:"status"`
	Uptime  float64             `json:"uptime"`
	Workers healthWorkersDetail `json:"workers"`
}

type healthWorkersDetail struct {
	Total   int                   `json:"total"`
	Healthy int                   `json:"healthy"`
	Details []worker.WorkerHealth `json:"details"`
}

// HealthHandler serves GET /health from a shared worker.HealthTracker.
type HealthHandler struct {
	tracker   *worker.HealthTracker
	startedAt time.Time
}

// NewHealthHandler builds a HealthHandler; startedAt anchors the reported
// uptime.
func NewHealthHandler(tracker *worker.HealthTracker, startedAt time.Time) *HealthHandler {
	return &HealthHandler{tracker: tracker, startedAt: startedAt}
}

// ServeHTTP answers 200 when every registered worker is within the
// heartbeat window, 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Snapshot()
	status := "unhealthy"
	code := http.StatusServiceUnavailable
	if snap.IsHealthy() {
		status = "healthy"
		code = http.StatusOK
	}
	writeJSON(w, code, healthResponse{
		Status: status,
		Uptime: time.Since(h.startedAt).Seconds(),
		Workers: healthWorkersDetail{
			Total:   snap.Total,
			Healthy: snap.Healthy,
			Details: snap.Workers,
		},
	})
}
