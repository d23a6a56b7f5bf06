package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateConnecting))
	assert.True(t, CanTransition(StateConnecting, StateOpen))
	assert.True(t, CanTransition(StateConnecting, StateClosed))
	assert.True(t, CanTransition(StateOpen, StateClosing))
	assert.True(t, CanTransition(StateOpen, StateClosed))
	assert.True(t, CanTransition(StateClosing, StateClosed))
	assert.True(t, CanTransition(StateClosed, StateConnecting))

	assert.False(t, CanTransition(StateIdle, StateOpen))
	assert.False(t, CanTransition(StateClosed, StateOpen))
	assert.False(t, CanTransition(StateOpen, StateConnecting))
	assert.False(t, CanTransition(StateClosing, StateOpen))
}
