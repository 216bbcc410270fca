package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("inbound: %w", NewError(KindRetriable, "redis transact", "", cause))

	assert.True(t, errors.Is(err, ErrRetriable))
	assert.False(t, errors.Is(err, ErrInconsistentState))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsRetriable(err))
}

func TestError_Message(t *testing.T) {
	err := NewError(KindCapacityExceeded, "inbound", "container C1 is full", nil)
	assert.Equal(t, "inbound: capacity exceeded: container C1 is full", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInconsistentState, KindOf(NewError(KindInconsistentState, "", "", nil)))
	assert.Equal(t, KindNonRetriable, KindOf(errors.New("plain")))
	assert.False(t, IsRetriable(nil))
}
