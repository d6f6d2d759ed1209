package printerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsKindThroughWrapping(t *testing.T) {
	cause := errors.New("pipe broken")
	err := fmt.Errorf("print: %w", Wrap(KindSend, "send", cause))

	assert.Equal(t, KindSend, KindOf(err))
	assert.True(t, IsSend(err))
	assert.False(t, IsConnect(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "print: send: pipe broken", err.Error())
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(KindConnect, "connect", nil)

	assert.Error(t, err)
	assert.True(t, IsConnect(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsLayout(nil))
}

func TestSentinelsSurviveWrap(t *testing.T) {
	err := Wrap(KindInvalidOperation, "connect", ErrNoDeviceSelected)

	assert.True(t, IsInvalidOperation(err))
	assert.ErrorIs(t, err, ErrNoDeviceSelected)
}
