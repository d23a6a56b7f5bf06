// Package debug holds the process-wide debug toggle and builds the default
// structured logger used by the socket client and its transports.
package debug

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
)

const envVar = "LIVESOCKET_DEBUG"

var enabled atomic.Bool

func init() {
	debugEnv, exists := os.LookupEnv(envVar)
	if exists {
		if val, err := strconv.ParseBool(debugEnv); err == nil {
			enabled.Store(val)
		}
	}
}

func Enabled() bool {
	return enabled.Load()
}

func Enable() {
	enabled.Store(true)
}

func Disable() {
	enabled.Store(false)
}

// NewLogger returns a text logger writing to w. Debug records are emitted
// only while the toggle is on at the time of the call.
func NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if Enabled() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Logger is NewLogger(os.Stderr).
func Logger() *slog.Logger {
	return NewLogger(os.Stderr)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
