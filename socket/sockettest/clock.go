package sockettest

import (
	"sort"
	"sync"
	"time"

	"github.com/kepuz/livesocket/socket"
)

// Clock is a manual socket.Clock. Callbacks fire on the goroutine calling
// Advance, in due-time order.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*timer
	fired  []time.Duration
}

type timer struct {
	clock   *Clock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	done    bool
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) AfterFunc(d time.Duration, f func()) socket.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.done {
		return false
	}
	t.stopped = true
	return true
}

// Now is the time elapsed since the clock was created.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward by d, firing every timer that falls due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.done = true
		c.fired = append(c.fired, next.at)
		c.mu.Unlock()

		next.f()
	}
}

func (c *Clock) nextDueLocked(target time.Duration) *timer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.done {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.Slice(c.timers, func(i, j int) bool {
		if c.timers[i].at == c.timers[j].at {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at < c.timers[j].at
	})
	if len(c.timers) == 0 || c.timers[0].at > target {
		return nil
	}
	return c.timers[0]
}

// Pending is the number of armed timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.done {
			n++
		}
	}
	return n
}

// Fired returns the clock times at which timers fired, in order.
func (c *Clock) Fired() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.fired))
	copy(out, c.fired)
	return out
}
