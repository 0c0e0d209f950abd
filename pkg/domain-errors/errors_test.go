package domainerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "paddock/pkg/domain-errors"
)

func TestNew(t *testing.T) {
	err := dErrors.New(dErrors.CodeNotFound, "event not found")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
	assert.Equal(t, "event not found", dErrors.MessageOf(err))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := dErrors.Wrap(cause, dErrors.CodeInternal, "failed to load event")

	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.ErrorIs(t, err, cause)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	inner := dErrors.New(dErrors.CodeConflict, "already registered")
	outer := fmt.Errorf("register: %w", inner)

	assert.True(t, dErrors.HasCode(outer, dErrors.CodeConflict))
	assert.False(t, dErrors.HasCode(outer, dErrors.CodeNotFound))
}

// Unclassified errors are treated as internal.
func TestCodeOfPlainError(t *testing.T) {
	err := errors.New("something broke")
	require.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	assert.Empty(t, dErrors.MessageOf(err))
}
