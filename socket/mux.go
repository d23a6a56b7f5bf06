package socket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives the raw data of every frame sent under its event.
type Listener func(data json.RawMessage)

type subscription struct {
	id    string
	event Event
	fn    Listener
}

// multiplexer fans inbound frames out to every listener registered under the
// frame's event name.
//
// clear starts a new epoch. A frame accepted under an earlier epoch is not
// dispatched, so it cannot reach listeners registered after the clear.
type multiplexer struct {
	mu        sync.RWMutex
	listeners map[Event][]*subscription
	epoch     uint64
	logger    *slog.Logger
}

func newMultiplexer(logger *slog.Logger) *multiplexer {
	return &multiplexer{
		listeners: make(map[Event][]*subscription),
		logger:    logger,
	}
}

// add registers fn and returns an idempotent disposer that removes only this
// registration.
func (m *multiplexer) add(event Event, fn Listener) func() {
	sub := &subscription{id: generateID(), event: event, fn: fn}

	m.mu.Lock()
	m.listeners[event] = append(m.listeners[event], sub)
	m.mu.Unlock()

	m.logger.Debug("listener registered", "event", event, "subscription", sub.id)

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(sub) })
	}
}

func (m *multiplexer) remove(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.listeners[sub.event]
	for i, s := range subs {
		if s != sub {
			continue
		}
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(m.listeners, sub.event)
		} else {
			m.listeners[sub.event] = next
		}
		m.logger.Debug("listener disposed", "event", sub.event, "subscription", sub.id)
		return
	}
}

// currentEpoch returns the epoch to pass to dispatch.
func (m *multiplexer) currentEpoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// dispatch calls every listener of f.Event in registration order and returns
// how many were called. Listeners run on the caller's goroutine without any
// lock held, so they may register, dispose or send. Nothing is called when
// the registry was cleared after epoch was read.
func (m *multiplexer) dispatch(f Frame, epoch uint64) int {
	m.mu.RLock()
	if m.epoch != epoch {
		m.mu.RUnlock()
		return 0
	}
	subs := m.listeners[f.Event]
	m.mu.RUnlock()

	for _, sub := range subs {
		m.call(sub, f.Data)
	}
	return len(subs)
}

func (m *multiplexer) call(sub *subscription, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked", "event", sub.event, "subscription", sub.id, "panic", fmt.Sprint(r))
		}
	}()
	sub.fn(data)
}

func (m *multiplexer) clear() {
	m.mu.Lock()
	m.listeners = make(map[Event][]*subscription)
	m.epoch++
	m.mu.Unlock()
}
