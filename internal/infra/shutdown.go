package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ShutdownPhase orders handlers during shutdown: earlier phases complete
// before later ones begin.
type ShutdownPhase int

const (
	// PhasePreShutdown stops accepting new work (HTTP listeners).
	PhasePreShutdown ShutdownPhase = iota
	// PhaseServices stops background services (worker pool, scheduler).
	PhaseServices
	// PhaseConnections closes external connections (queue stores, clients).
	PhaseConnections
	phaseCount
)

func (p ShutdownPhase) String() string {
	switch p {
	case PhasePreShutdown:
		return "pre-shutdown"
	case PhaseServices:
		return "services"
	case PhaseConnections:
		return "connections"
	default:
		return fmt.Sprintf("phase-%d", p)
	}
}

// ShutdownFunc performs one component's cleanup. The context it receives is
// cancelled when its phase's time budget runs out.
type ShutdownFunc func(ctx context.Context) error

type shutdownHandler struct {
	name  string
	phase ShutdownPhase
	fn    ShutdownFunc
}

// ShutdownResult records one handler's outcome.
type ShutdownResult struct {
	Name     string
	Phase    ShutdownPhase
	Duration time.Duration
	Error    error
}

// ShutdownCoordinator runs registered cleanup handlers in phase order when
// the process stops. Handlers within one phase run concurrently; phases run
// sequentially.
type ShutdownCoordinator struct {
	mu             sync.Mutex
	handlers       [phaseCount][]shutdownHandler
	defaultTimeout time.Duration
	logger         *slog.Logger
	once           sync.Once
	results        []ShutdownResult
}

// NewShutdownCoordinator builds a coordinator whose handlers each get
// defaultTimeout to finish. A nil logger falls back to slog.Default.
func NewShutdownCoordinator(defaultTimeout time.Duration, logger *slog.Logger) *ShutdownCoordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownCoordinator{
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// RegisterFunc registers a cleanup handler under the given phase.
func (c *ShutdownCoordinator) RegisterFunc(name string, phase ShutdownPhase, fn ShutdownFunc) {
	if phase < 0 || phase >= phaseCount {
		phase = PhaseConnections
	}
	c.mu.Lock()
	c.handlers[phase] = append(c.handlers[phase], shutdownHandler{name: name, phase: phase, fn: fn})
	c.mu.Unlock()
}

// RegisterService registers a background-service stop under PhaseServices.
func (c *ShutdownCoordinator) RegisterService(name string, fn ShutdownFunc) {
	c.RegisterFunc(name, PhaseServices, fn)
}

// RegisterConnection registers a connection closure under PhaseConnections.
func (c *ShutdownCoordinator) RegisterConnection(name string, fn ShutdownFunc) {
	c.RegisterFunc(name, PhaseConnections, fn)
}

// Shutdown runs every registered handler exactly once and returns their
// results. Subsequent calls return the first run's results.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) []ShutdownResult {
	c.once.Do(func() {
		start := time.Now()
		c.logger.Info("starting graceful shutdown")

		var results []ShutdownResult
		for phase := ShutdownPhase(0); phase < phaseCount; phase++ {
			c.mu.Lock()
			handlers := c.handlers[phase]
			c.mu.Unlock()
			if len(handlers) == 0 {
				continue
			}

			c.logger.Info("executing shutdown phase", "phase", phase.String(), "handlers", len(handlers))
			results = append(results, c.runPhase(ctx, handlers)...)

			if ctx.Err() != nil {
				c.logger.Warn("shutdown context cancelled", "phase", phase.String())
				break
			}
		}

		c.logger.Info("graceful shutdown complete", "duration", time.Since(start))
		c.mu.Lock()
		c.results = results
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

func (c *ShutdownCoordinator) runPhase(ctx context.Context, handlers []shutdownHandler) []ShutdownResult {
	results := make([]ShutdownResult, len(handlers))
	var wg sync.WaitGroup
	for i, h := range handlers {
		wg.Add(1)
		go func(idx int, h shutdownHandler) {
			defer wg.Done()
			results[idx] = c.runHandler(ctx, h)
		}(i, h)
	}
	wg.Wait()
	return results
}

func (c *ShutdownCoordinator) runHandler(ctx context.Context, h shutdownHandler) ShutdownResult {
	start := time.Now()

	handlerCtx, cancel := context.WithTimeout(ctx, c.defaultTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.fn(handlerCtx) }()

	result := ShutdownResult{Name: h.name, Phase: h.phase}
	select {
	case err := <-done:
		result.Duration = time.Since(start)
		result.Error = err
		if err != nil {
			c.logger.Warn("shutdown handler error", "handler", h.name, "phase", h.phase.String(), "error", err)
		}
	case <-handlerCtx.Done():
		result.Duration = time.Since(start)
		result.Error = handlerCtx.Err()
		c.logger.Warn("shutdown handler timed out", "handler", h.name, "phase", h.phase.String(), "timeout", c.defaultTimeout)
	}
	return result
}
