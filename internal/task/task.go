// Package task defines the core task entity, its enumerations, and the
// state machine rules that govern status transitions.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task.
type Status string

// Possible task status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
// A failed task with attempts remaining is not terminal; that distinction
// lives on the Task, see Task.IsTerminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return st, nil
}

// Kind identifies the handler that executes a task.
type Kind string

// The set of task kinds is closed at build time; adding a kind means
// registering a handler for it, the executor itself never changes.
const (
	KindSendPrompt     Kind = "send-prompt"
	KindRefine         Kind = "refine"
	KindBreakdown      Kind = "breakdown"
	KindIdeaGeneration Kind = "idea-generation"
)

// Kinds returns all built-in task kinds.
func Kinds() []Kind {
	return []Kind{KindSendPrompt, KindRefine, KindBreakdown, KindIdeaGeneration}
}

// Valid reports whether k is a built-in task kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSendPrompt, KindRefine, KindBreakdown, KindIdeaGeneration:
		return true
	}
	return false
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown task kind %q", s)
	}
	return k, nil
}

// Priority orders tasks for dequeueing. Higher values are dequeued first.
type Priority int

// Priority bands, lowest to highest.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the lowercase name of the priority band.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is a known priority band.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// ParsePriority converts a priority name into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// DefaultMaxAttempts is applied when a task is submitted without an
// explicit retry ceiling and no configured default is available.
const DefaultMaxAttempts = 3

// Task represents one unit of queued LLM-processing work.
type Task struct {
	ID          uuid.UUID
	Kind        Kind
	Payload     json.RawMessage
	Priority    Priority
	Status      Status
	Attempts    int
	MaxAttempts int

	// Result holds handler-defined output once the task completes.
	Result json.RawMessage

	// ErrorMessage and ErrorClass record the last failure, if any.
	ErrorMessage string
	ErrorClass   ErrorClass

	// LockOwner and LockExpiry mark the claim held by the executing
	// daemon instance. A zero LockExpiry means no claim is held.
	LockOwner  string
	LockExpiry time.Time

	// StopRequested is a best-effort cooperative cancellation flag
	// consulted by the executor; it never forces a state transition.
	StopRequested bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// New creates a pending task ready for persistence. maxAttempts <= 0
// falls back to DefaultMaxAttempts.
func New(kind Kind, payload json.RawMessage, priority Priority, maxAttempts int) *Task {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     payload,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal reports whether the task can make no further transitions.
// Failed tasks are terminal only once their attempts are exhausted or
// their last failure was classified permanent.
func (t *Task) IsTerminal() bool {
	if t.Status.IsTerminal() {
		return true
	}
	if t.Status == StatusFailed {
		return t.Attempts >= t.MaxAttempts || t.ErrorClass == ErrorClassPermanent
	}
	return false
}

// CanTransition reports whether moving the task to the given status is
// allowed by the state machine. It encodes:
//
//	pending → running | cancelled
//	running → completed | failed
//	failed  → pending (only while attempts remain and the failure was transient)
func (t *Task) CanTransition(to Status) bool {
	switch t.Status {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusPending && !t.IsTerminal()
	}
	return false
}

// ClaimExpired reports whether the task holds a claim that lapsed before
// now. Used by crash recovery to detect executions that died mid-run.
func (t *Task) ClaimExpired(now time.Time) bool {
	return t.Status == StatusRunning && !t.LockExpiry.IsZero() && t.LockExpiry.Before(now)
}
