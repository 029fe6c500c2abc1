package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trainerbase/taskengine/internal/outbox/domain"
	"github.com/trainerbase/taskengine/internal/outbox/repository"
)

// Handler executes one claimed task. Retry and backoff policy belongs to the
// handler, not the dispatcher: a handler that wants another attempt re-enqueues
// a task (usually with a delayed available_at) before returning. A returned
// error is terminal for this claim and is only logged and counted.
type Handler interface {
	Handle(ctx context.Context, task *domain.Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *domain.Task) error

func (f HandlerFunc) Handle(ctx context.Context, task *domain.Task) error {
	return f(ctx, task)
}

// Registry maps task kinds to handlers. Registration happens at startup; the
// dispatcher only reads it afterwards.
type Registry struct {
	handlers map[domain.TaskKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.TaskKind]Handler)}
}

// Register binds a handler to a kind. Registering the same kind twice is a
// wiring bug and panics at startup.
func (r *Registry) Register(kind domain.TaskKind, h Handler) {
	if !kind.Valid() {
		panic(fmt.Sprintf("register: unknown task kind %q", kind))
	}
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("register: duplicate handler for kind %q", kind))
	}
	r.handlers[kind] = h
}

// Lookup returns the handler for a kind, if registered.
func (r *Registry) Lookup(kind domain.TaskKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// DispatcherConfig holds the dispatcher's polling knobs.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
}

func (c *DispatcherConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Dispatcher runs a pool of workers, each polling the outbox store and
// executing claimed tasks through the registry.
type Dispatcher struct {
	repo     repository.TaskRepository
	registry *Registry
	logger   *slog.Logger
	config   DispatcherConfig
}

func NewDispatcher(repo repository.TaskRepository, registry *Registry, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg.normalize()
	return &Dispatcher{
		repo:     repo,
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
		config:   cfg,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled. A database
// failure during claim is logged and retried on the next tick rather than
// stopping the worker; transient outages must not take the pool down.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < d.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			return d.runWorker(groupCtx, workerID)
		})
	}

	return g.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, workerID int) error {
	logger := d.logger.With("worker", workerID)
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Dispatcher worker stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			claimed, err := d.PollOnce(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to claim due tasks", "error", err)
				continue
			}
			if claimed > 0 {
				logger.DebugContext(ctx, "Processed claimed tasks", "count", claimed)
			}
		}
	}
}

// PollOnce claims one batch and executes every claimed task. It returns the
// number of tasks claimed; claim errors are returned, handler errors are not.
func (d *Dispatcher) PollOnce(ctx context.Context) (int, error) {
	tasks, err := d.repo.ClaimDue(ctx, d.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due tasks: %w", err)
	}

	for _, task := range tasks {
		d.process(ctx, task)
	}
	return len(tasks), nil
}

func (d *Dispatcher) process(ctx context.Context, task *domain.Task) {
	timer := prometheus.NewTimer(taskDurationHist.WithLabelValues(string(task.Kind)))
	defer timer.ObserveDuration()

	handler, ok := d.registry.Lookup(task.Kind)
	if !ok {
		// A claimed row with no handler has already been deleted; dropping it
		// with a loud log is the only safe terminal disposition.
		d.logger.ErrorContext(ctx, "No handler registered for task kind; task dropped",
			"task_id", task.ID, "kind", task.Kind)
		tasksProcessedCounter.WithLabelValues(string(task.Kind), "unknown_kind").Inc()
		return
	}

	err := d.safeHandle(ctx, handler, task)
	if err != nil {
		d.logger.ErrorContext(ctx, "Task handler failed",
			"task_id", task.ID, "kind", task.Kind, "error", err)
		tasksProcessedCounter.WithLabelValues(string(task.Kind), "failed").Inc()
		return
	}

	tasksProcessedCounter.WithLabelValues(string(task.Kind), "success").Inc()
}

func (d *Dispatcher) safeHandle(ctx context.Context, handler Handler, task *domain.Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler.Handle(ctx, task)
}
