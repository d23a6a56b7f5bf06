package socket

import "time"

// Timer is a pending callback scheduled on a Clock.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already
	// ran or was stopped.
	Stop() bool
}

// Clock schedules callbacks. The client never sleeps; every wait is a
// callback fired by the clock on its own goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
