// Package ops implements the operator-facing operations over the
// queue: submitting, listing, inspecting, and removing tasks. The CLI
// is a thin shell around this service.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sokrates-llm/sokq/internal/store"
	"github.com/sokrates-llm/sokq/internal/task"
	"github.com/sokrates-llm/sokq/internal/workflows"
)

// Service mediates between operator commands and the task store.
type Service struct {
	store              store.TaskStore
	defaultMaxAttempts int
	logger             *slog.Logger
}

// NewService creates an operations service over the given store.
// defaultMaxAttempts is the configured retry ceiling applied to
// submissions that don't carry their own; a non-positive value falls
// back to task.DefaultMaxAttempts.
func NewService(s store.TaskStore, defaultMaxAttempts int, logger *slog.Logger) *Service {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = task.DefaultMaxAttempts
	}
	return &Service{store: s, defaultMaxAttempts: defaultMaxAttempts, logger: logger}
}

// AddRequest describes a task submission.
type AddRequest struct {
	Kind        task.Kind
	Payload     json.RawMessage
	Priority    task.Priority
	MaxAttempts int
}

// Add validates and persists a new pending task, returning its ID.
// Validation happens at submission so a malformed task never reaches
// the daemon.
func (s *Service) Add(ctx context.Context, req AddRequest) (uuid.UUID, error) {
	if !req.Kind.Valid() {
		return uuid.Nil, fmt.Errorf("unknown task kind %q (valid kinds: %v)", req.Kind, task.Kinds())
	}
	if !req.Priority.Valid() {
		return uuid.Nil, fmt.Errorf("invalid priority %d", req.Priority)
	}
	if err := workflows.ValidatePayload(req.Kind, req.Payload); err != nil {
		return uuid.Nil, fmt.Errorf("invalid payload for kind %q: %w", req.Kind, err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}

	t := task.New(req.Kind, req.Payload, req.Priority, maxAttempts)
	if err := s.store.Create(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist task: %w", err)
	}

	s.logger.Info("task submitted",
		"task_id", t.ID,
		"kind", t.Kind,
		"priority", t.Priority.String())
	return t.ID, nil
}

// Summary is the list view of a task: enough to identify it and see
// where it stands, without the payload or result bodies.
type Summary struct {
	ID        uuid.UUID
	Kind      task.Kind
	Priority  task.Priority
	Status    task.Status
	Attempts  int
	CreatedAt time.Time
}

// List returns task summaries matching the filter, oldest first.
func (s *Service) List(ctx context.Context, f store.Filter) ([]Summary, error) {
	tasks, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	summaries := make([]Summary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, Summary{
			ID:        t.ID,
			Kind:      t.Kind,
			Priority:  t.Priority,
			Status:    t.Status,
			Attempts:  t.Attempts,
			CreatedAt: t.CreatedAt,
		})
	}
	return summaries, nil
}

// Status returns the full record for one task.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Counts returns the number of tasks per status.
func (s *Service) Counts(ctx context.Context) (map[task.Status]int, error) {
	return s.store.CountByStatus(ctx)
}

// Remove deletes a task, returning whether the row is gone.
// Non-terminal tasks are protected behind force: a pending task is
// cancelled before deletion, and a running task gets a cooperative
// stop request before its record is destroyed, so an in-flight handler
// can still notice the stop. The daemon tolerates its claim target
// vanishing; it logs the dangling claim and moves on.
func (s *Service) Remove(ctx context.Context, id uuid.UUID, force bool) (bool, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}

	switch {
	case t.Status.IsTerminal():
		return true, s.store.Delete(ctx, id)

	case t.Status == task.StatusPending:
		if !force {
			return false, fmt.Errorf("task %s is pending; use force to cancel and remove it: %w",
				id, store.ErrInvalidState)
		}
		if err := s.store.CancelPending(ctx, id); err != nil {
			// Claimed between the read and the cancel.
			return false, err
		}
		return true, s.store.Delete(ctx, id)

	case t.Status == task.StatusRunning:
		if !force {
			return false, fmt.Errorf("task %s is running; use force to remove it: %w",
				id, store.ErrInvalidState)
		}
		s.logger.Info("removing running task", "task_id", id)
		if err := s.store.RequestStop(ctx, id); err != nil {
			if store.IsNotFound(err) {
				return false, err
			}
			// The task left running between the read and the stop
			// request; deletion below still applies.
			if !store.IsInvalidState(err) {
				return false, err
			}
		}
		return true, s.store.Delete(ctx, id)

	default:
		return false, fmt.Errorf("task %s is in unexpected status %q: %w",
			id, t.Status, store.ErrInvalidState)
	}
}
