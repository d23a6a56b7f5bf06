package socket

import "time"

// reconnectScheduler owns the bounded fixed-interval retry policy. The client
// lock guards it. Each armed timer carries a token; a callback whose token no
// longer matches was cancelled after it started and must do nothing.
type reconnectScheduler struct {
	clock       Clock
	maxAttempts int
	interval    time.Duration

	attempt int
	pending Timer
	token   uint64
}

func newReconnectScheduler(clock Clock, maxAttempts int, interval time.Duration) *reconnectScheduler {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &reconnectScheduler{
		clock:       clock,
		maxAttempts: maxAttempts,
		interval:    interval,
	}
}

// schedule arms one retry unless one is already pending or attempts are
// exhausted. The attempt counter is incremented at schedule time.
func (r *reconnectScheduler) schedule(fire func(token uint64)) (armed, exhausted bool) {
	if r.pending != nil {
		return false, false
	}
	if r.attempt >= r.maxAttempts {
		return false, true
	}
	r.attempt++
	r.token++
	token := r.token
	r.pending = r.clock.AfterFunc(r.interval, func() { fire(token) })
	return true, false
}

// claim is called by a firing timer. It reports whether token is still the
// live timer and, if so, clears it.
func (r *reconnectScheduler) claim(token uint64) bool {
	if r.pending == nil || token != r.token {
		return false
	}
	r.pending = nil
	return true
}

func (r *reconnectScheduler) cancel() {
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.token++
}

// reset cancels any pending retry and zeroes the attempt counter.
func (r *reconnectScheduler) reset() {
	r.cancel()
	r.attempt = 0
}

func (r *reconnectScheduler) attempts() int {
	return r.attempt
}
