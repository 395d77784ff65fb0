package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateError_WrapsSentinel(t *testing.T) {
	err := NewTemplateError("GetByID", "tpl-1", ErrTemplateNotFound)

	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.True(t, IsTemplateNotFound(err))
	assert.Contains(t, err.Error(), "tpl-1")
	assert.Contains(t, err.Error(), "GetByID")
}

func TestStepExecutionError_IncludesInstance(t *testing.T) {
	err := &StepExecutionError{
		Op:          "UpdateStatus",
		ExecutionID: "exec-1",
		InstanceID:  "inst-1",
		Err:         ErrConcurrencyConflict,
	}

	assert.Contains(t, err.Error(), "exec-1")
	assert.Contains(t, err.Error(), "inst-1")
	assert.True(t, IsConcurrencyConflict(err))
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(NewInstanceError("GetByID", "inst-1", ErrInstanceNotFound)))
	require.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrStepExecutionNotFound)))
	require.False(t, IsNotFound(ErrConcurrencyConflict))
	require.False(t, IsNotFound(errors.New("boom")))
}
