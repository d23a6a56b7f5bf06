package socket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedTransport records writes; each Send waits for a token on gate.
type gatedTransport struct {
	gate chan error

	mu      sync.Mutex
	written []string
}

func (g *gatedTransport) Connect(context.Context) error { return nil }
func (g *gatedTransport) Receive() ([]byte, error)      { return nil, errors.New("unused") }
func (g *gatedTransport) Close() error                  { return nil }

func (g *gatedTransport) Send(data []byte) error {
	if err := <-g.gate; err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.written = append(g.written, string(data))
	return nil
}

func (g *gatedTransport) frames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.written...)
}

type writerResult struct {
	err        error
	superseded bool
}

func startWriter(t *testing.T) (*connWriter, *gatedTransport, chan writerResult) {
	t.Helper()
	g := &gatedTransport{gate: make(chan error)}
	w := newConnWriter(g)
	failed := make(chan writerResult, 1)
	go w.run(func() {}, func(err error, superseded bool) { failed <- writerResult{err, superseded} })
	return w, g, failed
}

func TestConnWriterWritesInOrder(t *testing.T) {
	w, g, _ := startWriter(t)
	defer w.stop()

	w.enqueue([]byte("a"), []byte("b"))
	w.enqueue([]byte("c"))
	for i := 0; i < 3; i++ {
		g.gate <- nil
	}

	require.Eventually(t, func() bool { return len(g.frames()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, g.frames())
	assert.Equal(t, 0, w.backlog())
}

func TestConnWriterStopLeavesInFlightFrame(t *testing.T) {
	w, g, failed := startWriter(t)

	w.enqueue([]byte("a"), []byte("b"), []byte("c"))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.writing
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, w.backlog())

	unsent := w.stop()
	assert.Equal(t, [][]byte{[]byte("b"), []byte("c")}, unsent)
	assert.Nil(t, w.stop())

	g.gate <- errors.New("closed")
	res := <-failed
	assert.True(t, res.superseded)

	w.enqueue([]byte("d"))
	assert.Equal(t, 0, w.backlog())
}

func TestConnWriterFailureKeepsFailedFrame(t *testing.T) {
	w, g, failed := startWriter(t)

	w.enqueue([]byte("a"), []byte("b"))
	g.gate <- errors.New("broken pipe")

	res := <-failed
	require.Error(t, res.err)
	assert.False(t, res.superseded)

	w.enqueue([]byte("c"))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, w.stop())
	assert.Empty(t, g.frames())
}
