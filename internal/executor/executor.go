// Package executor dispatches claimed tasks to the handler registered
// for their kind and turns every possible failure into a classified
// outcome. Nothing a handler does, including panicking, may propagate
// to the daemon loop.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/sokrates-llm/sokq/internal/task"
)

// Handler performs the actual work for one task kind.
type Handler interface {
	// Handle processes the payload and returns handler-defined result
	// data. Returned errors should be classified via the task error
	// types; unclassified errors are treated as transient.
	Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, payload)
}

// Registry maps task kinds to their handlers. It is populated at
// startup; the executor never branches on kind beyond the lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[task.Kind]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[task.Kind]Handler)}
}

// Register binds a handler to a kind, replacing any previous binding.
func (r *Registry) Register(kind task.Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind task.Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []task.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]task.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Outcome is the terminal result of one execution attempt: either a
// result or a classified error, never both.
type Outcome struct {
	Result json.RawMessage
	Err    *task.Error
}

// Success reports whether the attempt produced a result.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Executor runs tasks through their registered handlers.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// New creates an Executor over the given registry.
func New(registry *Registry, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Execute runs the task's handler and returns its classified outcome.
// An unregistered kind is a permanent failure; a handler panic is
// recovered and reported as a permanent failure.
func (e *Executor) Execute(ctx context.Context, t *task.Task) (outcome Outcome) {
	log := e.logger.With("task_id", t.ID, "kind", t.Kind, "attempt", t.Attempts)

	handler, ok := e.registry.Lookup(t.Kind)
	if !ok {
		log.Error("no handler registered for task kind")
		outcome.Err = task.Permanentf("unsupported task kind %q", t.Kind)
		return outcome
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "panic", r)
			outcome = Outcome{Err: task.Permanentf("handler panic: %v", r)}
		}
	}()

	result, err := handler.Handle(ctx, t.Payload)
	if err != nil {
		classified := task.AsError(err)
		log.Error("handler failed", "error", err, "class", classified.Class)
		return Outcome{Err: classified}
	}

	log.Info("handler succeeded", "result_size", len(result))
	return Outcome{Result: result}
}
