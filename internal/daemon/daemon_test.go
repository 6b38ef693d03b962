package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokrates-llm/sokq/internal/daemon"
	"github.com/sokrates-llm/sokq/internal/executor"
	"github.com/sokrates-llm/sokq/internal/platform/sqlite"
	"github.com/sokrates-llm/sokq/internal/task"
)

func testOptions(t *testing.T) daemon.Options {
	t.Helper()
	return daemon.Options{
		PollInterval: 10 * time.Millisecond,
		ClaimTTL:     time.Minute,
		BackoffBase:  time.Millisecond,
		BackoffCap:   5 * time.Millisecond,
		PIDFilePath:  filepath.Join(t.TempDir(), "daemon.pid"),
	}
}

func newTestStore(t *testing.T) *sqlite.TaskStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "sokq.db"))
	require.NoError(t, err)
	s := sqlite.NewTaskStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runUntil runs the daemon until the condition holds or the deadline
// passes, then shuts it down.
func runUntil(t *testing.T, d *daemon.Daemon, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !cond() {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
	require.True(t, cond(), "condition not reached before deadline")
}

func TestDaemonCompletesTask(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"output":"done"}`), nil
		}))

	tk := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`), task.PriorityNormal, 3)
	require.NoError(t, s.Create(context.Background(), tk))

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runUntil(t, d, func() bool {
		got, err := s.Get(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusCompleted
	})

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.JSONEq(t, `{"output":"done"}`, string(got.Result))
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestDaemonRetriesTransientFailureUntilExhausted(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var calls atomic.Int32
	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			calls.Add(1)
			return nil, task.Transient(errors.New("endpoint unreachable"))
		}))

	tk := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`), task.PriorityNormal, 2)
	require.NoError(t, s.Create(context.Background(), tk))

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runUntil(t, d, func() bool {
		got, err := s.Get(context.Background(), tk.ID)
		return err == nil && got.IsTerminal()
	})

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, got.ErrorMessage, "endpoint unreachable")
	assert.False(t, got.FinishedAt.IsZero())
}

func TestDaemonStopsRetryingPermanentFailure(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var calls atomic.Int32
	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			calls.Add(1)
			return nil, task.Permanent(errors.New("model not found"))
		}))

	tk := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`), task.PriorityNormal, 5)
	require.NoError(t, s.Create(context.Background(), tk))

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runUntil(t, d, func() bool {
		got, err := s.Get(context.Background(), tk.ID)
		return err == nil && got.IsTerminal()
	})

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, task.ErrorClassPermanent, got.ErrorClass)
}

func TestDaemonProcessesHigherPriorityFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var order []string
	doneCh := make(chan struct{})
	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Prompt string `json:"prompt"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			order = append(order, p.Prompt)
			if len(order) == 3 {
				close(doneCh)
			}
			return json.RawMessage(`{}`), nil
		}))

	for i, prio := range []task.Priority{task.PriorityLow, task.PriorityUrgent, task.PriorityNormal} {
		payload := json.RawMessage(fmt.Sprintf(`{"prompt":%q}`, prio.String()))
		tk := task.New(task.KindSendPrompt, payload, prio, 3)
		tk.CreatedAt = tk.CreatedAt.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, s.Create(context.Background(), tk))
	}

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runUntil(t, d, func() bool {
		select {
		case <-doneCh:
			return true
		default:
			return false
		}
	})

	assert.Equal(t, []string{"urgent", "normal", "low"}, order)
}

func TestDaemonRecoversExpiredClaim(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	tk := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`), task.PriorityNormal, 3)
	require.NoError(t, s.Create(ctx, tk))

	// Simulate a claim from a daemon that died mid-execution: claimed
	// with an already-expired TTL, never transitioned off running.
	claimed, err := s.ClaimPending(ctx, tk.ID, "dead-daemon-1", -time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"output":"recovered"}`), nil
		}))

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runUntil(t, d, func() bool {
		got, err := s.Get(ctx, tk.ID)
		return err == nil && got.Status == task.StatusCompleted
	})

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	// One failed attempt from the dead daemon plus the successful one.
	assert.Equal(t, 2, got.Attempts)
}

func TestDaemonRequeuesFailedTasksAtStartup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// A task left failed with attempts remaining, as after a daemon
	// crash between failure and its scheduled retry.
	tk := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`), task.PriorityNormal, 3)
	require.NoError(t, s.Create(ctx, tk))
	claimed, err := s.ClaimPending(ctx, tk.ID, "dead-daemon-1", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.FailRunning(ctx, tk.ID, "boom", task.ErrorClassTransient))

	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		}))

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runUntil(t, d, func() bool {
		got, err := s.Get(ctx, tk.ID)
		return err == nil && got.Status == task.StatusCompleted
	})
}

func TestDaemonSurvivesTaskRemovedWhileRunning(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	registry := executor.NewRegistry()
	registry.Register(task.KindSendPrompt, executor.HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage(`{"output":"late"}`), nil
		}))
	registry.Register(task.KindBreakdown, executor.HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		}))

	doomed := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`), task.PriorityNormal, 3)
	require.NoError(t, s.Create(ctx, doomed))

	d := daemon.New(s, registry, testOptions(t), discardLogger())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never picked up the task")
	}

	// Force-remove the claimed row out from under the handler, then
	// let the handler finish into a vanished record.
	require.NoError(t, s.Delete(ctx, doomed.ID))
	close(release)

	// The loop must keep draining work afterwards.
	next := task.New(task.KindBreakdown, json.RawMessage(`{"task":"carry on"}`), task.PriorityNormal, 3)
	require.NoError(t, s.Create(ctx, next))
	require.Eventually(t, func() bool {
		got, err := s.Get(ctx, next.ID)
		return err == nil && got.Status == task.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	opts := testOptions(t)
	registry := executor.NewRegistry()
	logger := discardLogger()

	first := daemon.New(s, registry, opts, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()

	// Wait for the first instance to take the pid file.
	pidFile := daemon.NewPIDFile(opts.PIDFilePath)
	require.Eventually(t, func() bool {
		_, err := pidFile.Read()
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	second := daemon.New(s, registry, opts, logger)
	err := second.Run(ctx)
	require.ErrorIs(t, err, daemon.ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestDaemonRetentionSweep(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	old := task.New(task.KindSendPrompt, json.RawMessage(`{"prompt":"old"}`), task.PriorityNormal, 1)
	require.NoError(t, s.Create(ctx, old))
	claimed, err := s.ClaimPending(ctx, old.ID, "d1", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.CompleteRunning(ctx, old.ID, json.RawMessage(`{}`)))

	opts := testOptions(t)
	opts.RetentionDays = 7
	registry := executor.NewRegistry()

	// FinishedAt is now, inside the window, so the sweep must keep it.
	d := daemon.New(s, registry, opts, discardLogger())
	runUntil(t, d, func() bool { return !d.LastPoll().IsZero() })

	_, err = s.Get(ctx, old.ID)
	require.NoError(t, err)
}
