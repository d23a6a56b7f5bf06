// Package sockettest provides deterministic doubles for exercising a
// socket.Client: a scripted transport whose handles open, fail, deliver and
// drop on command, and a manual clock.
package sockettest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kepuz/livesocket/socket"
)

var (
	ErrClosed  = errors.New("sockettest: transport closed")
	ErrDropped = errors.New("sockettest: connection dropped")
)

const waitTimeout = 2 * time.Second

// Factory hands out scripted Conns. Use f.Dial as the client's
// socket.TransportFactory.
type Factory struct {
	mu         sync.Mutex
	conns      []*Conn
	created    chan *Conn
	connectErr error
	autoOpen   bool
}

func NewFactory() *Factory {
	return &Factory{created: make(chan *Conn, 128)}
}

// FailConnects makes every Conn created from now on fail its Connect with
// err. A nil err restores scripted behaviour.
func (f *Factory) FailConnects(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// AutoOpen makes every Conn created from now on open immediately.
func (f *Factory) AutoOpen(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoOpen = on
}

func (f *Factory) Dial() socket.Transport {
	f.mu.Lock()
	c := newConn(f.connectErr, f.autoOpen)
	f.conns = append(f.conns, c)
	f.mu.Unlock()

	f.created <- c
	return c
}

// Next waits for the next Conn handed to the client.
func (f *Factory) Next(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-f.created:
		return c
	case <-time.After(waitTimeout):
		t.Fatalf("sockettest: no transport dialed within %s", waitTimeout)
		return nil
	}
}

// Count is the number of Conns created so far.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Conn is one scripted connection attempt.
type Conn struct {
	open   chan error
	inbox  chan []byte
	drop   chan error
	closed chan struct{}

	once sync.Once

	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	gate      chan struct{}
	writing   int
	connected bool
}

func newConn(connectErr error, autoOpen bool) *Conn {
	c := &Conn{
		open:   make(chan error, 1),
		inbox:  make(chan []byte, 128),
		drop:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	switch {
	case connectErr != nil:
		c.open <- connectErr
	case autoOpen:
		c.open <- nil
	}
	return c
}

func (c *Conn) Connect(ctx context.Context) error {
	select {
	case err := <-c.open:
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	}
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if gate := c.gate; gate != nil {
		c.writing++
		c.mu.Unlock()
		select {
		case <-gate:
		case <-c.closed:
		}
		c.mu.Lock()
		c.writing--
	}
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	c.sent = append(c.sent, frame)
	return nil
}

// Receive prefers queued inbound frames over a pending drop so frames
// delivered before Drop are read first.
func (c *Conn) Receive() ([]byte, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	default:
	}
	select {
	case m := <-c.inbox:
		return m, nil
	case err := <-c.drop:
		return nil, err
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Open completes the pending Connect successfully.
func (c *Conn) Open() {
	c.open <- nil
}

// Fail completes the pending Connect with err.
func (c *Conn) Fail(err error) {
	c.open <- err
}

// Deliver queues a raw inbound payload.
func (c *Conn) Deliver(raw []byte) {
	c.inbox <- raw
}

// DeliverEvent encodes and queues an {event, data} frame.
func (c *Conn) DeliverEvent(t testing.TB, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatalf("sockettest: encode %q: %v", event, err)
	}
	c.Deliver(raw)
}

// Drop makes the connection fail as if the network went away.
func (c *Conn) Drop() {
	select {
	case c.drop <- ErrDropped:
	default:
	}
}

// HoldSends makes Send block, as on a stalled network, until release is
// called or the Conn is closed.
func (c *Conn) HoldSends() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gate = gate
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.gate = nil
			c.mu.Unlock()
			close(gate)
		})
	}
}

// Writing is the number of Send calls currently held.
func (c *Conn) Writing() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writing
}

// FailSends makes subsequent Send calls return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Sent returns every frame written, in order.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentFrames decodes every written frame.
func (c *Conn) SentFrames(t testing.TB) []socket.Frame {
	t.Helper()
	sent := c.Sent()
	frames := make([]socket.Frame, 0, len(sent))
	for _, raw := range sent {
		f, err := socket.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("sockettest: sent invalid frame %s: %v", raw, err)
		}
		frames = append(frames, f)
	}
	return frames
}
