package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubTimer struct{ stopped bool }

func (t *stubTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type stubClock struct {
	delays []time.Duration
	timers []*stubTimer
	fns    []func()
}

func (c *stubClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &stubTimer{}
	c.delays = append(c.delays, d)
	c.timers = append(c.timers, t)
	c.fns = append(c.fns, f)
	return t
}

func TestReconnectSchedulerBounded(t *testing.T) {
	clock := &stubClock{}
	r := newReconnectScheduler(clock, 2, 100*time.Millisecond)

	var fired []uint64
	fire := func(token uint64) { fired = append(fired, token) }

	armed, exhausted := r.schedule(fire)
	assert.True(t, armed)
	assert.False(t, exhausted)
	assert.Equal(t, 1, r.attempts())

	armed, exhausted = r.schedule(fire)
	assert.False(t, armed, "second schedule while pending is a no-op")
	assert.False(t, exhausted)
	assert.Equal(t, 1, r.attempts())

	clock.fns[0]()
	assert.True(t, r.claim(fired[0]))
	assert.False(t, r.isPending())

	armed, _ = r.schedule(fire)
	assert.True(t, armed)
	clock.fns[1]()
	assert.True(t, r.claim(fired[1]))

	armed, exhausted = r.schedule(fire)
	assert.False(t, armed)
	assert.True(t, exhausted)
	assert.Equal(t, 2, r.attempts())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, clock.delays)
}

func TestReconnectSchedulerZeroAttemptsDisables(t *testing.T) {
	r := newReconnectScheduler(&stubClock{}, 0, time.Second)
	armed, exhausted := r.schedule(func(uint64) {})
	assert.False(t, armed)
	assert.True(t, exhausted)

	r = newReconnectScheduler(&stubClock{}, -3, time.Second)
	_, exhausted = r.schedule(func(uint64) {})
	assert.True(t, exhausted)
}

func TestReconnectSchedulerCancelInvalidatesFiringTimer(t *testing.T) {
	clock := &stubClock{}
	r := newReconnectScheduler(clock, 3, time.Second)

	var token uint64
	r.schedule(func(tok uint64) { token = tok })
	r.cancel()
	assert.True(t, clock.timers[0].stopped)
	assert.False(t, r.isPending())

	// The callback raced with cancel and runs anyway.
	clock.fns[0]()
	assert.False(t, r.claim(token))
}

func TestReconnectSchedulerReset(t *testing.T) {
	clock := &stubClock{}
	r := newReconnectScheduler(clock, 1, time.Second)

	r.schedule(func(uint64) {})
	r.reset()
	assert.Equal(t, 0, r.attempts())
	assert.False(t, r.isPending())

	armed, _ := r.schedule(func(uint64) {})
	assert.True(t, armed)
}

func (r *reconnectScheduler) isPending() bool {
	return r.pending != nil
}
