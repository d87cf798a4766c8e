package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/wizardd/internal/agent"
	"github.com/haasonsaas/wizardd/internal/auth"
	httpauth "github.com/haasonsaas/wizardd/internal/httpapi/auth"
	"github.com/haasonsaas/wizardd/internal/objectstore"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/internal/worker"
)

// Deps wires NewRouter's collaborators: the queue store backing the task
// endpoints, the agent loop behind the SSE chat endpoint, the shared
// worker health tracker, and an optional object store for the
// oversized-callback path.
type Deps struct {
	Store       QueueStore
	Loop        *agent.Loop
	HealthTrack *worker.HealthTracker
	Blobs       *objectstore.Store
	Auth        *auth.Service
	Logger      *observability.Logger
	StartedAt   time.Time
}

// NewRouter builds the process's HTTP surface: the task queue backend
// (GET/POST /task, /tasks/{id}, the callback endpoints), GET /health,
// GET /metrics, and the SSE chat endpoint.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	r.Handle("/metrics", promhttp.Handler())

	tasks := NewTaskHandlers(deps.Store, deps.Blobs)
	health := NewHealthHandler(deps.HealthTrack, deps.StartedAt)

	bearer := httpauth.Middleware(deps.Auth)

	r.Route("/", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(bearer)
			r.Get("/task", tasks.Poll)
			r.Post("/task", tasks.Enqueue)
			r.Get("/tasks/{id}", tasks.GetTask)
			r.Post("/tasks/{id}/cancel", tasks.CancelTask)
			r.Post("/internal/api/v1/wizard/callback", tasks.Callback)
			r.Post("/internal/api/v1/wizard/tasks/{id}/upload", tasks.RequestUpload)
			r.Post("/internal/api/v1/wizard/tasks/{id}/callback", tasks.NotifyUploaded)
			r.Get("/health", health.ServeHTTP)

			if deps.Loop != nil {
				chatHandler := NewChatHandler(deps.Loop, deps.Logger)
				r.Post("/chat/stream", chatHandler.ServeHTTP)
			}
		})
	})

	return r
}
