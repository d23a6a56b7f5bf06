package socket

import (
	"context"
	"sync"
)

// statusChannel publishes the connectivity boolean with replay-latest and
// distinct-until-changed semantics.
//
// Publications carry a sequence number assigned under the client lock; one
// older than the last applied is discarded, so goroutines racing to publish
// after releasing the client lock cannot leave subscribers on a stale value.
//
// Every subscriber has its own mailbox. Values are appended under s.mu in
// publish order and drained by whichever goroutine finds the mailbox idle, so
// one subscriber sees values in order and never twice in a row, calls made
// from inside a subscriber only append, and a subscriber stuck in its
// callback does not hold back the replay owed to a new one.
type statusChannel struct {
	mu      sync.Mutex
	value   bool
	lastSeq uint64
	nextID  int
	subs    map[int]*statusSub
}

type statusSub struct {
	fn        func(bool)
	last      bool
	seen      bool
	mail      []bool
	busy      bool
	cancelled bool
}

func newStatusChannel() *statusChannel {
	return &statusChannel{subs: make(map[int]*statusSub)}
}

func (s *statusChannel) current() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// publish applies value if seq is newer than the last applied sequence and
// value differs from the current one. It reports whether the value changed.
func (s *statusChannel) publish(seq uint64, value bool) bool {
	s.mu.Lock()
	if seq <= s.lastSeq {
		s.mu.Unlock()
		return false
	}
	s.lastSeq = seq
	if value == s.value {
		s.mu.Unlock()
		return false
	}
	s.value = value

	subs := make([]*statusSub, 0, len(s.subs))
	for _, sub := range s.subs {
		sub.offer(value)
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.drain(sub)
	}
	return true
}

// subscribe hands fn the current value, then every change. Unless fn is
// already running on this goroutine's behalf, the current value is delivered
// before subscribe returns.
func (s *statusChannel) subscribe(fn func(bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	sub := &statusSub{fn: fn}
	sub.offer(s.value)
	s.subs[id] = sub
	s.mu.Unlock()

	s.drain(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			sub.cancelled = true
			sub.mail = nil
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// drain delivers sub's pending values unless another goroutine is already
// doing so, in which case that goroutine picks them up.
func (s *statusChannel) drain(sub *statusSub) {
	s.mu.Lock()
	if sub.busy {
		s.mu.Unlock()
		return
	}
	sub.busy = true
	for len(sub.mail) > 0 && !sub.cancelled {
		v := sub.mail[0]
		sub.mail = sub.mail[1:]
		s.mu.Unlock()
		sub.fn(v)
		s.mu.Lock()
	}
	sub.busy = false
	s.mu.Unlock()
}

// offer queues v unless it repeats the last value queued. Callers hold s.mu.
func (sub *statusSub) offer(v bool) {
	if sub.seen && sub.last == v {
		return
	}
	sub.seen = true
	sub.last = v
	sub.mail = append(sub.mail, v)
}

// changes adapts subscribe to a channel. The channel holds at most one
// unread value; when a new value arrives while one is still unread, the two
// cancel out because a boolean stream that never repeats alternates, and the
// reader's last seen value already equals the newest one. The exception is
// the replayed value: if the reader has not taken it yet, it is replaced.
func (s *statusChannel) changes(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	var mu sync.Mutex
	done := false
	delivered := 0

	cancel := s.subscribe(func(v bool) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case <-ch:
			if delivered == 1 {
				ch <- v
			}
		default:
			ch <- v
			delivered++
		}
	})

	go func() {
		<-ctx.Done()
		cancel()
		mu.Lock()
		done = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}
