// Package daemon owns the queue's run loop and its lifecycle: a
// singleton background process that polls for eligible tasks, claims
// them, hands them to the executor, and applies the retry policy.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sokrates-llm/sokq/internal/config"
	"github.com/sokrates-llm/sokq/internal/executor"
	"github.com/sokrates-llm/sokq/internal/queue"
	"github.com/sokrates-llm/sokq/internal/store"
	"github.com/sokrates-llm/sokq/internal/task"
)

// Options configures the daemon loop.
type Options struct {
	// PollInterval is how long the loop sleeps when the queue is
	// drained. After completing a task the loop re-polls immediately
	// to drain backlog quickly.
	PollInterval time.Duration

	// ClaimTTL bounds how long a claim is honored before crash
	// recovery treats the task as abandoned.
	ClaimTTL time.Duration

	// BackoffBase and BackoffCap parameterize the retry delay.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// RetentionDays, when > 0, enables the startup sweep deleting
	// terminal tasks older than the window.
	RetentionDays int

	// HTTPAddr, when non-empty, enables the loopback status endpoint.
	HTTPAddr string

	// PIDFilePath locates the singleton process marker.
	PIDFilePath string
}

// OptionsFromConfig derives daemon options from the application
// configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:  cfg.Daemon.PollInterval(),
		ClaimTTL:      cfg.Queue.ClaimTTL(),
		BackoffBase:   cfg.Queue.BackoffBase(),
		BackoffCap:    cfg.Queue.BackoffCap(),
		RetentionDays: cfg.Queue.RetentionDays,
		HTTPAddr:      cfg.Daemon.HTTPAddr,
		PIDFilePath:   cfg.PIDFilePath(),
	}
}

// Daemon runs the poll-claim-execute-update loop.
type Daemon struct {
	store   store.TaskStore
	index   *queue.Index
	exec    *executor.Executor
	opts    Options
	logger  *slog.Logger
	pidFile *PIDFile
	owner   string

	startedAt time.Time

	mu       sync.Mutex
	lastPoll time.Time
	retries  map[uuid.UUID]time.Time
}

// New creates a Daemon. The owner identity ties claims in the store to
// this daemon instance.
func New(s store.TaskStore, registry *executor.Registry, opts Options, logger *slog.Logger) *Daemon {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Daemon{
		store:   s,
		index:   queue.NewIndex(s, opts.ClaimTTL),
		exec:    executor.New(registry, logger),
		opts:    opts,
		logger:  logger,
		pidFile: NewPIDFile(opts.PIDFilePath),
		owner:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		retries: make(map[uuid.UUID]time.Time),
	}
}

// Run acquires the singleton marker, recovers from any previous crash,
// and polls until ctx is cancelled. The task in flight when
// cancellation arrives is completed, not abandoned.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidFile.Remove(); err != nil {
			d.logger.Error("failed to remove pid file", "error", err)
		}
	}()

	d.startedAt = time.Now().UTC()
	d.logger.Info("daemon started",
		"owner", d.owner,
		"poll_interval", d.opts.PollInterval,
		"claim_ttl", d.opts.ClaimTTL)

	if err := d.recover(ctx); err != nil {
		return fmt.Errorf("crash recovery: %w", err)
	}
	d.sweepRetention(ctx)

	stopHTTP := d.startHTTP(ctx)
	defer stopHTTP()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping", "uptime", time.Since(d.startedAt))
			return nil
		default:
		}

		d.markPoll()
		d.releaseDueRetries(ctx)

		claimed, err := d.index.ClaimNext(ctx, d.owner)
		if err != nil {
			// A store error fails this poll, not the daemon.
			d.logger.Error("failed to claim next task", "error", err)
			d.sleep(ctx)
			continue
		}
		if claimed == nil {
			d.sleep(ctx)
			continue
		}

		d.process(ctx, claimed)
		// Immediate re-poll to drain backlog.
	}
}

// process executes one claimed task and persists its outcome.
func (d *Daemon) process(ctx context.Context, t *task.Task) {
	log := d.logger.With("task_id", t.ID, "kind", t.Kind, "attempt", t.Attempts)
	log.Info("processing task", "priority", t.Priority.String())

	outcome := d.exec.Execute(ctx, t)

	if outcome.Success() {
		switch err := d.store.CompleteRunning(ctx, t.ID, outcome.Result); {
		case err == nil:
			log.Info("task completed")
		case store.IsNotFound(err):
			// Force-removed while the handler ran; the outcome has no
			// home and the claim died with the row.
			log.Warn("task removed while running, discarding result")
		default:
			log.Error("failed to persist task completion", "error", err)
		}
		return
	}

	msg := outcome.Err.Err.Error()
	if err := d.store.FailRunning(ctx, t.ID, msg, outcome.Err.Class); err != nil {
		if store.IsNotFound(err) {
			log.Warn("task removed while running, discarding failure")
		} else {
			log.Error("failed to persist task failure", "error", err)
		}
		return
	}

	if outcome.Err.Class == task.ErrorClassTransient && t.Attempts < t.MaxAttempts {
		// Stop requests are honored between attempts: a task asked to
		// stop while running is not retried.
		if fresh, err := d.store.Get(ctx, t.ID); err == nil && fresh.StopRequested {
			log.Info("stop requested, not retrying task")
			return
		}

		delay := Backoff(t.Attempts, d.opts.BackoffBase, d.opts.BackoffCap, true)
		d.scheduleRetry(t.ID, delay)
		log.Warn("task failed, retry scheduled",
			"error", msg,
			"delay", delay,
			"attempts_left", t.MaxAttempts-t.Attempts)
		return
	}

	log.Error("task failed terminally",
		"error", msg,
		"class", outcome.Err.Class,
		"attempts", t.Attempts)
}

// recover routes tasks stuck from a previous run back through the
// retry path before normal polling begins: running tasks with expired
// claims become failed attempts, and non-terminal failed tasks (whose
// scheduled retry died with the previous daemon) are requeued.
func (d *Daemon) recover(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := d.store.ListExpiredClaims(ctx, now)
	if err != nil {
		return err
	}
	for _, t := range expired {
		d.logger.Warn("recovering task with expired claim",
			"task_id", t.ID,
			"lock_owner", t.LockOwner,
			"attempts", t.Attempts)
		if err := d.store.FailRunning(ctx, t.ID, "claim expired: daemon died during execution", task.ErrorClassTransient); err != nil {
			d.logger.Error("failed to fail expired task", "task_id", t.ID, "error", err)
		}
	}

	failed, err := d.store.List(ctx, store.Filter{Status: task.StatusFailed})
	if err != nil {
		return err
	}

	requeued := 0
	for _, t := range failed {
		if t.IsTerminal() || t.StopRequested {
			continue
		}
		if err := d.store.RequeueFailed(ctx, t.ID); err != nil {
			d.logger.Error("failed to requeue task", "task_id", t.ID, "error", err)
			continue
		}
		requeued++
	}

	d.logger.Info("crash recovery finished",
		"expired_claims", len(expired),
		"requeued", requeued)
	return nil
}

// sweepRetention applies the optional retention policy.
func (d *Daemon) sweepRetention(ctx context.Context) {
	if d.opts.RetentionDays <= 0 {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -d.opts.RetentionDays)
	removed, err := d.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		d.logger.Error("retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		d.logger.Info("retention sweep removed terminal tasks",
			"removed", removed,
			"older_than_days", d.opts.RetentionDays)
	}
}

// scheduleRetry records when a failed task becomes eligible again.
func (d *Daemon) scheduleRetry(id uuid.UUID, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retries[id] = time.Now().UTC().Add(delay)
}

// releaseDueRetries requeues failed tasks whose backoff delay has
// elapsed.
func (d *Daemon) releaseDueRetries(ctx context.Context) {
	d.mu.Lock()
	var due []uuid.UUID
	now := time.Now().UTC()
	for id, at := range d.retries {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	for _, id := range due {
		delete(d.retries, id)
	}
	d.mu.Unlock()

	for _, id := range due {
		err := d.store.RequeueFailed(ctx, id)
		switch {
		case err == nil:
			d.logger.Info("task requeued for retry", "task_id", id)
		case store.IsNotFound(err) || store.IsInvalidState(err):
			// Removed or transitioned by an operator in the meantime.
			d.logger.Debug("skipping retry for task", "task_id", id, "error", err)
		default:
			d.logger.Error("failed to requeue task for retry", "task_id", id, "error", err)
		}
	}
}

// markPoll refreshes the liveness heartbeat.
func (d *Daemon) markPoll() {
	d.mu.Lock()
	d.lastPoll = time.Now().UTC()
	d.mu.Unlock()

	if err := d.pidFile.Touch(); err != nil {
		d.logger.Debug("failed to refresh pid file heartbeat", "error", err)
	}
}

// LastPoll returns the time of the most recent poll.
func (d *Daemon) LastPoll() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPoll
}

// sleep waits one poll interval, waking early on cancellation.
func (d *Daemon) sleep(ctx context.Context) {
	timer := time.NewTimer(d.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
