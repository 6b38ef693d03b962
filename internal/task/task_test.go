package task

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"prompt":"hi"}`)
	tk := New(KindSendPrompt, payload, PriorityHigh, 5)

	assert.NotEqual(t, "", tk.ID.String())
	assert.Equal(t, KindSendPrompt, tk.Kind)
	assert.Equal(t, PriorityHigh, tk.Priority)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, 0, tk.Attempts)
	assert.Equal(t, 5, tk.MaxAttempts)
	assert.False(t, tk.CreatedAt.IsZero())
	assert.Equal(t, tk.CreatedAt, tk.UpdatedAt)
}

func TestNew_DefaultMaxAttempts(t *testing.T) {
	t.Parallel()

	tk := New(KindRefine, nil, PriorityNormal, 0)
	assert.Equal(t, DefaultMaxAttempts, tk.MaxAttempts)
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to running", StatusPending, StatusRunning, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to cancelled", StatusRunning, StatusCancelled, false},
		{"completed is terminal", StatusCompleted, StatusPending, false},
		{"cancelled is terminal", StatusCancelled, StatusRunning, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tk := New(KindSendPrompt, nil, PriorityNormal, 3)
			tk.Status = tc.from
			assert.Equal(t, tc.allowed, tk.CanTransition(tc.to))
		})
	}
}

func TestCanTransition_FailedRetry(t *testing.T) {
	t.Parallel()

	t.Run("attempts remain", func(t *testing.T) {
		t.Parallel()

		tk := New(KindSendPrompt, nil, PriorityNormal, 3)
		tk.Status = StatusFailed
		tk.Attempts = 1
		tk.ErrorClass = ErrorClassTransient
		assert.True(t, tk.CanTransition(StatusPending))
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		t.Parallel()

		tk := New(KindSendPrompt, nil, PriorityNormal, 3)
		tk.Status = StatusFailed
		tk.Attempts = 3
		tk.ErrorClass = ErrorClassTransient
		assert.False(t, tk.CanTransition(StatusPending))
		assert.True(t, tk.IsTerminal())
	})

	t.Run("permanent failure", func(t *testing.T) {
		t.Parallel()

		tk := New(KindSendPrompt, nil, PriorityNormal, 3)
		tk.Status = StatusFailed
		tk.Attempts = 1
		tk.ErrorClass = ErrorClassPermanent
		assert.False(t, tk.CanTransition(StatusPending))
		assert.True(t, tk.IsTerminal())
	})
}

func TestClaimExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tk := New(KindSendPrompt, nil, PriorityNormal, 3)
	tk.Status = StatusRunning
	tk.LockExpiry = now.Add(-time.Minute)
	assert.True(t, tk.ClaimExpired(now))

	tk.LockExpiry = now.Add(time.Minute)
	assert.False(t, tk.ClaimExpired(now))

	tk.Status = StatusPending
	tk.LockExpiry = now.Add(-time.Minute)
	assert.False(t, tk.ClaimExpired(now))
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent} {
		parsed, err := ParsePriority(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParsePriority("critical")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		parsed, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("juggle")
	assert.Error(t, err)
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	assert.Greater(t, int(PriorityUrgent), int(PriorityHigh))
	assert.Greater(t, int(PriorityHigh), int(PriorityNormal))
	assert.Greater(t, int(PriorityNormal), int(PriorityLow))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorClassPermanent, Classify(Permanentf("bad payload")))
	assert.Equal(t, ErrorClassTransient, Classify(Transientf("timeout")))

	// Wrapped classified errors keep their class.
	wrapped := errors.Join(errors.New("outer"), Permanent(errors.New("inner")))
	assert.Equal(t, ErrorClassPermanent, Classify(wrapped))

	// Plain errors default to transient.
	assert.Equal(t, ErrorClassTransient, Classify(errors.New("dial tcp: timeout")))
}

func TestAsError(t *testing.T) {
	t.Parallel()

	perm := Permanent(errors.New("nope"))
	assert.Same(t, perm, AsError(perm))

	plain := errors.New("boom")
	coerced := AsError(plain)
	assert.Equal(t, ErrorClassTransient, coerced.Class)
	assert.ErrorIs(t, coerced, plain)
}
