package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("create booking: %w", CapacityExceeded("no spots left"))

	assert.Equal(t, KindCapacityExceeded, KindOf(err))
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "no spots left", Message(err))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestInvalidTransition_NamesStatus(t *testing.T) {
	err := InvalidTransition("booking", "confirm", "cancelled")

	assert.Equal(t, "cannot confirm booking in status cancelled", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := External(cause, "payment gateway unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}
