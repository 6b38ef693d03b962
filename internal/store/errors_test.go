package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(ErrTaskNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("status lookup: %w", ErrTaskNotFound)))
	assert.False(t, IsNotFound(ErrInvalidState))
	assert.False(t, IsNotFound(nil))
}

func TestIsInvalidState(t *testing.T) {
	t.Parallel()

	assert.True(t, IsInvalidState(ErrInvalidState))
	assert.True(t, IsInvalidState(fmt.Errorf("remove: %w", ErrInvalidState)))
	assert.False(t, IsInvalidState(ErrTaskNotFound))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk I/O error")
	err := NewError("create", "insert task", cause)

	assert.Equal(t, "store create failed: insert task: disk I/O error", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStoreError(err))
	assert.True(t, IsStoreError(fmt.Errorf("add: %w", err)))
	assert.False(t, IsStoreError(cause))
}

func TestStoreError_NoCause(t *testing.T) {
	t.Parallel()

	err := NewError("claim", "no rows affected", nil)
	assert.Equal(t, "store claim failed: no rows affected", err.Error())
}
