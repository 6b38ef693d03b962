// Package queue provides the dequeue-side view of the task store: which
// pending task runs next, and the atomic claim that marks it as owned.
//
// Ordering is strict priority (urgent > high > normal > low) with a
// created_at tie-break inside each band. A continuous stream of
// higher-priority tasks can starve lower bands indefinitely; that is
// accepted, documented behavior, not a bug.
package queue

import (
	"context"
	"time"

	"github.com/sokrates-llm/sokq/internal/store"
	"github.com/sokrates-llm/sokq/internal/task"
)

// DefaultClaimTTL bounds how long a claim is honored before crash
// recovery may treat the task as abandoned.
const DefaultClaimTTL = 30 * time.Minute

// Index selects and claims eligible tasks.
type Index struct {
	store    store.TaskStore
	claimTTL time.Duration
}

// NewIndex creates an Index over the given store. A non-positive
// claimTTL falls back to DefaultClaimTTL.
func NewIndex(s store.TaskStore, claimTTL time.Duration) *Index {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Index{store: s, claimTTL: claimTTL}
}

// NextEligible returns the task that would run next, or nil when no
// pending task exists. It does not claim the task.
func (i *Index) NextEligible(ctx context.Context) (*task.Task, error) {
	return i.store.NextPending(ctx)
}

// ClaimNext selects and claims the next eligible task on behalf of
// owner, returning nil when the queue is drained. Selection and claim
// compose atomically: the claim is a conditional update guarded on
// status, and a lost race simply re-selects.
func (i *Index) ClaimNext(ctx context.Context, owner string) (*task.Task, error) {
	for {
		next, err := i.store.NextPending(ctx)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}

		claimed, err := i.store.ClaimPending(ctx, next.ID, owner, i.claimTTL)
		if err != nil {
			// The task may have been removed between selection and
			// claim; treat that as losing the race.
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if !claimed {
			continue
		}

		return i.store.Get(ctx, next.ID)
	}
}
