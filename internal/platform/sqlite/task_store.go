package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokrates-llm/sokq/internal/platform/logger"
	"github.com/sokrates-llm/sokq/internal/store"
	"github.com/sokrates-llm/sokq/internal/task"
)

// timeLayout is a fixed-width UTC timestamp format so that TEXT
// comparisons in SQL order chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// taskColumns is the column list shared by every SELECT, kept in one
// place so scanTask stays in sync with it.
const taskColumns = `id, kind, payload, priority, status, attempts, max_attempts,
	result, error_message, error_class, lock_owner, lock_expiry, stop_requested,
	created_at, updated_at, started_at, finished_at`

// TaskStore implements the store.TaskStore interface on SQLite.
type TaskStore struct {
	db *sql.DB
}

// compile-time interface check
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore over an open database handle.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Close releases the underlying database handle.
func (s *TaskStore) Close() error {
	return s.db.Close()
}

// Create persists a new task record.
func (s *TaskStore) Create(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID.String(),
		string(t.Kind),
		string(t.Payload),
		int(t.Priority),
		string(t.Status),
		t.Attempts,
		t.MaxAttempts,
		nullRaw(t.Result),
		t.ErrorMessage,
		string(t.ErrorClass),
		t.LockOwner,
		nullTime(t.LockExpiry),
		boolToInt(t.StopRequested),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
		nullTime(t.StartedAt),
		nullTime(t.FinishedAt),
	)
	if err != nil {
		// The mattn driver reports constraint violations by message;
		// matching on it avoids importing the CGO package here.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("create task %s: %w", t.ID, store.ErrDuplicateID)
		}
		log.Error("failed to create task", "task_id", t.ID, "kind", t.Kind, "error", err)
		return store.NewError("create", "insert task", err)
	}

	return nil
}

// Get returns the task with the given id.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get task %s: %w", id, store.ErrTaskNotFound)
	}
	if err != nil {
		return nil, store.NewError("get", "query task", err)
	}
	return t, nil
}

// List returns tasks matching the filter, oldest first.
func (s *TaskStore) List(ctx context.Context, f store.Filter) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`

	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != nil {
		conds = append(conds, "priority = ?")
		args = append(args, int(*f.Priority))
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.CreatedAfter.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(f.CreatedAfter))
	}
	if !f.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, formatTime(f.CreatedBefore))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewError("list", "query tasks", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, store.NewError("list", "scan task row", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewError("list", "iterate task rows", err)
	}

	return tasks, nil
}

// Delete removes the task record.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return store.NewError("delete", "delete task", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewError("delete", "rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete task %s: %w", id, store.ErrTaskNotFound)
	}
	return nil
}

// NextPending returns the highest-priority oldest pending task, or nil
// when nothing is eligible. Ties within a priority band break on
// created_at ascending; a continuous stream of high-priority tasks can
// therefore starve lower bands, which is accepted behavior.
func (s *TaskStore) NextPending(ctx context.Context) (*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT 1
	`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, string(task.StatusPending)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, store.NewError("next_pending", "query next eligible task", err)
	}
	return t, nil
}

// ClaimPending atomically transitions a pending task to running. The
// status guard in the WHERE clause is what makes concurrent claims
// safe: only one caller observes a row change.
func (s *TaskStore) ClaimPending(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()

	query := `
		UPDATE tasks
		SET status = ?, attempts = attempts + 1, lock_owner = ?, lock_expiry = ?,
		    started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(task.StatusRunning),
		owner,
		formatTime(now.Add(ttl)),
		formatTime(now),
		formatTime(now),
		id.String(),
		string(task.StatusPending),
	)
	if err != nil {
		return false, store.NewError("claim", "claim pending task", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, store.NewError("claim", "rows affected", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
		// Task exists but another claimant won the race.
		return false, nil
	}
	return true, nil
}

// CompleteRunning transitions a running task to completed.
func (s *TaskStore) CompleteRunning(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	now := formatTime(time.Now().UTC())

	query := `
		UPDATE tasks
		SET status = ?, result = ?, error_message = '', error_class = '',
		    lock_owner = '', lock_expiry = NULL, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(task.StatusCompleted),
		nullRaw(result),
		now,
		now,
		id.String(),
		string(task.StatusRunning),
	)
	if err != nil {
		return store.NewError("complete", "complete running task", err)
	}
	return s.transitionResult(ctx, res, "complete", id)
}

// FailRunning transitions a running task to failed with its error
// detail. finished_at is only stamped when the failure is terminal:
// attempts exhausted or a permanent classification.
func (s *TaskStore) FailRunning(ctx context.Context, id uuid.UUID, msg string, class task.ErrorClass) error {
	now := formatTime(time.Now().UTC())

	query := `
		UPDATE tasks
		SET status = ?, error_message = ?, error_class = ?,
		    lock_owner = '', lock_expiry = NULL, updated_at = ?,
		    finished_at = CASE
		        WHEN ? = 'permanent' OR attempts >= max_attempts THEN ?
		        ELSE finished_at
		    END
		WHERE id = ? AND status = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(task.StatusFailed),
		msg,
		string(class),
		now,
		string(class),
		now,
		id.String(),
		string(task.StatusRunning),
	)
	if err != nil {
		return store.NewError("fail", "fail running task", err)
	}
	return s.transitionResult(ctx, res, "fail", id)
}

// RequeueFailed transitions a retryable failed task back to pending.
func (s *TaskStore) RequeueFailed(ctx context.Context, id uuid.UUID) error {
	now := formatTime(time.Now().UTC())

	query := `
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND attempts < max_attempts AND error_class != 'permanent'
	`

	res, err := s.db.ExecContext(ctx, query,
		string(task.StatusPending),
		now,
		id.String(),
		string(task.StatusFailed),
	)
	if err != nil {
		return store.NewError("requeue", "requeue failed task", err)
	}
	return s.transitionResult(ctx, res, "requeue", id)
}

// CancelPending transitions a pending task to cancelled.
func (s *TaskStore) CancelPending(ctx context.Context, id uuid.UUID) error {
	now := formatTime(time.Now().UTC())

	query := `
		UPDATE tasks
		SET status = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(task.StatusCancelled),
		now,
		now,
		id.String(),
		string(task.StatusPending),
	)
	if err != nil {
		return store.NewError("cancel", "cancel pending task", err)
	}
	return s.transitionResult(ctx, res, "cancel", id)
}

// RequestStop sets the cooperative stop flag on a running task.
func (s *TaskStore) RequestStop(ctx context.Context, id uuid.UUID) error {
	now := formatTime(time.Now().UTC())

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET stop_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		now, id.String(), string(task.StatusRunning),
	)
	if err != nil {
		return store.NewError("request_stop", "flag running task", err)
	}
	return s.transitionResult(ctx, res, "request_stop", id)
}

// ListExpiredClaims returns running tasks whose claim lapsed before now.
func (s *TaskStore) ListExpiredClaims(ctx context.Context, now time.Time) ([]*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = ? AND lock_expiry IS NOT NULL AND lock_expiry < ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(task.StatusRunning), formatTime(now.UTC()))
	if err != nil {
		return nil, store.NewError("expired_claims", "query expired claims", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, store.NewError("expired_claims", "scan task row", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewError("expired_claims", "iterate task rows", err)
	}
	return tasks, nil
}

// CountByStatus returns the number of tasks per status.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, store.NewError("count", "count tasks by status", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, store.NewError("count", "scan count row", err)
		}
		counts[task.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewError("count", "iterate count rows", err)
	}
	return counts, nil
}

// DeleteTerminalBefore removes terminal tasks finished before cutoff.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE finished_at IS NOT NULL AND finished_at < ?
		  AND (status IN (?, ?)
		       OR (status = ? AND (attempts >= max_attempts OR error_class = 'permanent')))
	`

	res, err := s.db.ExecContext(ctx, query,
		formatTime(cutoff.UTC()),
		string(task.StatusCompleted),
		string(task.StatusCancelled),
		string(task.StatusFailed),
	)
	if err != nil {
		return 0, store.NewError("retention", "delete terminal tasks", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewError("retention", "rows affected", err)
	}
	return affected, nil
}

// transitionResult converts a conditional UPDATE result into the error
// taxonomy: zero rows means either the task is gone (ErrTaskNotFound)
// or it was not in the required state (ErrInvalidState).
func (s *TaskStore) transitionResult(ctx context.Context, res sql.Result, op string, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return store.NewError(op, "rows affected", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%s task %s: %w", op, id, store.ErrInvalidState)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		idStr, kind, payload, status       string
		priority, attempts, maxAttempts    int
		result, lockExpiry                 sql.NullString
		errorMessage, errorClass, lockOwnr string
		stopRequested                      int
		createdAt, updatedAt               string
		startedAt, finishedAt              sql.NullString
	)

	err := row.Scan(
		&idStr, &kind, &payload, &priority, &status, &attempts, &maxAttempts,
		&result, &errorMessage, &errorClass, &lockOwnr, &lockExpiry, &stopRequested,
		&createdAt, &updatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse task id %q: %w", idStr, err)
	}

	t := &task.Task{
		ID:            id,
		Kind:          task.Kind(kind),
		Priority:      task.Priority(priority),
		Status:        task.Status(status),
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
		ErrorMessage:  errorMessage,
		ErrorClass:    task.ErrorClass(errorClass),
		LockOwner:     lockOwnr,
		StopRequested: stopRequested != 0,
	}
	if payload != "" {
		t.Payload = json.RawMessage(payload)
	}
	if result.Valid && result.String != "" {
		t.Result = json.RawMessage(result.String)
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if t.LockExpiry, err = parseNullTime(lockExpiry); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if t.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, err
	}

	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
