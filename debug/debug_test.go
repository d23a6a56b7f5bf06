package debug

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerHonoursToggle(t *testing.T) {
	prev := Enabled()
	t.Cleanup(func() {
		if prev {
			Enable()
		} else {
			Disable()
		}
	})

	Disable()
	var buf bytes.Buffer
	NewLogger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, NewLogger(&buf).Enabled(context.Background(), slog.LevelDebug))

	Enable()
	buf.Reset()
	NewLogger(&buf).Debug("shown", "event", "duel-tick")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "event=duel-tick")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelDebug))
}
