// Package store defines the persistence contract for task records.
// Implementations live under internal/platform; consumers depend only
// on the interfaces and errors defined here.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sokrates-llm/sokq/internal/task"
)

// Filter narrows List results. All set fields combine with AND
// semantics; zero values mean "no constraint".
type Filter struct {
	Status        task.Status
	Priority      *task.Priority
	Kind          task.Kind
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// TaskStore is the durable task record store. All writes are atomic at
// single-record granularity; the conditional transition methods return
// ErrInvalidState when the record exists but is not in the required
// state, which is what makes the claim protocol safe under concurrent
// daemons.
type TaskStore interface {
	// Create persists a new task record.
	Create(ctx context.Context, t *task.Task) error

	// Get returns the task with the given id, or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*task.Task, error)

	// List returns tasks matching the filter, ordered by creation time
	// ascending.
	List(ctx context.Context, f Filter) ([]*task.Task, error)

	// Delete removes the task record, or returns ErrTaskNotFound.
	Delete(ctx context.Context, id uuid.UUID) error

	// NextPending returns the highest-priority oldest pending task, or
	// nil when no task is eligible.
	NextPending(ctx context.Context) (*task.Task, error)

	// ClaimPending transitions a pending task to running on behalf of
	// owner, incrementing attempts and stamping started_at and the
	// claim expiry. It returns false without error when the task was no
	// longer pending, so callers can re-poll after losing the race.
	ClaimPending(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error)

	// CompleteRunning transitions a running task to completed with its
	// result, clearing the claim.
	CompleteRunning(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// FailRunning transitions a running task to failed with the given
	// error detail, clearing the claim.
	FailRunning(ctx context.Context, id uuid.UUID, msg string, class task.ErrorClass) error

	// RequeueFailed transitions a failed task with attempts remaining
	// back to pending for retry.
	RequeueFailed(ctx context.Context, id uuid.UUID) error

	// CancelPending transitions a pending task to cancelled.
	CancelPending(ctx context.Context, id uuid.UUID) error

	// RequestStop sets the cooperative stop flag on a running task.
	RequestStop(ctx context.Context, id uuid.UUID) error

	// ListExpiredClaims returns running tasks whose claim lapsed before
	// now. Used by daemon startup crash recovery.
	ListExpiredClaims(ctx context.Context, now time.Time) ([]*task.Task, error)

	// CountByStatus returns the number of tasks per status.
	CountByStatus(ctx context.Context) (map[task.Status]int, error)

	// DeleteTerminalBefore removes completed, cancelled, and
	// terminally-failed tasks finished before cutoff, returning how
	// many records were removed. Backs the optional retention policy.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the underlying storage handle.
	Close() error
}
