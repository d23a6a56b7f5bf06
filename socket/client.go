package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kepuz/livesocket/debug"
	"github.com/kepuz/livesocket/socket/transport"
)

const (
	DefaultReconnectAttempts = 10
	DefaultReconnectDelay    = 5 * time.Second
)

// Transport is one physical connection attempt. A Client asks its
// TransportFactory for a fresh Transport on every connect, so a handle is
// never reused after it closed.
type Transport interface {
	// Connect dials and blocks until the connection is open, fails, or ctx
	// is cancelled.
	Connect(ctx context.Context) error
	Send(data []byte) error
	// Receive blocks for the next text frame. It returns an error once the
	// connection is gone.
	Receive() ([]byte, error)
	Close() error
}

type TransportFactory func() Transport

// WebSocket returns a factory dialing url with the gorilla/websocket
// transport.
func WebSocket(url string, opts ...transport.WebSocketOption) TransportFactory {
	return func() Transport {
		return transport.NewWebSocketTransport(url, opts...)
	}
}

// Client is a shared, self-healing connection multiplexing named events.
// All methods are safe for concurrent use.
type Client struct {
	mu sync.Mutex
	id string

	dial        TransportFactory
	clock       Clock
	logger      *slog.Logger
	metrics     *Metrics
	stateHook   func(from, to State)
	lazyConnect bool

	reconnectAttempts int
	reconnectDelay    time.Duration
	queueLimit        int
	queuePolicy       OverflowPolicy

	state      State
	gen        uint64
	conn       Transport
	writer     *connWriter
	cancelConn context.CancelFunc
	statusSeq  uint64

	queue     *outboundQueue
	reconnect *reconnectScheduler
	mux       *multiplexer
	status    *statusChannel
}

type ClientOption func(*Client)

// WithReconnectDelay sets the fixed interval between retries.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithReconnectAttempts bounds automatic retries after an unexpected close.
// Zero disables reconnection.
func WithReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.reconnectAttempts = attempts
	}
}

// WithQueueLimit bounds the outbound queue. A limit of zero leaves it
// unbounded.
func WithQueueLimit(limit int, policy OverflowPolicy) ClientOption {
	return func(c *Client) {
		c.queueLimit = limit
		c.queuePolicy = policy
	}
}

func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithStateHook observes every state transition. The hook runs with the
// client lock held and must not call back into the client.
func WithStateHook(hook func(from, to State)) ClientOption {
	return func(c *Client) {
		c.stateHook = hook
	}
}

// WithLazyConnect makes the first On or Send from the idle state call
// Connect.
func WithLazyConnect() ClientOption {
	return func(c *Client) {
		c.lazyConnect = true
	}
}

func NewClient(dial TransportFactory, opts ...ClientOption) *Client {
	c := &Client{
		id:                generateID(),
		dial:              dial,
		clock:             realClock{},
		logger:            debug.Logger(),
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectDelay:    DefaultReconnectDelay,
		state:             StateIdle,
		status:            newStatusChannel(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("client", c.id)
	c.queue = newOutboundQueue(c.queueLimit, c.queuePolicy)
	c.reconnect = newReconnectScheduler(c.clock, c.reconnectAttempts, c.reconnectDelay)
	c.mux = newMultiplexer(c.logger)

	return c
}

func (c *Client) ID() string {
	return c.id
}

// Connect starts connecting if the client is idle or closed. A manual
// Connect also resets the retry budget. It never blocks on the network.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.reconnect.reset()
	c.openLocked()
	c.unlockAndPublish()
}

// Send serializes a frame and hands it to the open connection's writer, or
// queues it until the next open. It never waits on the network and only
// fails for an empty event, unencodable data, or a full queue under the
// RejectNew policy; connectivity never causes an error.
func (c *Client) Send(event Event, data any) error {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		c.logger.Error("send rejected", "event", event, "error", err)
		return err
	}

	c.mu.Lock()
	if c.state == StateOpen {
		c.writer.enqueue(frame)
		c.mu.Unlock()
		return nil
	}

	dropped, err := c.queue.push(frame)
	if err != nil {
		c.metrics.dropped("queue_full")
		c.mu.Unlock()
		c.logger.Warn("outbound queue full", "event", event, "limit", c.queueLimit)
		return err
	}
	if dropped {
		c.metrics.dropped("queue_overflow")
		c.logger.Warn("outbound queue full, dropped oldest frame", "limit", c.queueLimit)
	}
	c.metrics.queued()
	c.metrics.depth(c.queue.len())
	c.logger.Debug("frame queued", "event", event, "depth", c.queue.len(), "state", c.state)

	if c.lazyConnect && c.state == StateIdle {
		c.openLocked()
	}
	c.unlockAndPublish()
	return nil
}

// On registers fn for every frame named event and returns its disposer.
// Registrations are independent: the same fn registered twice is called
// twice, and disposing one leaves the others in place.
func (c *Client) On(event Event, fn Listener) (dispose func()) {
	if event == "" {
		c.logger.Error("listener rejected", "error", ErrEmptyEvent)
		return func() {}
	}
	if fn == nil {
		c.logger.Error("listener rejected", "event", event, "reason", "nil listener")
		return func() {}
	}
	dispose = c.mux.add(event, fn)

	c.mu.Lock()
	if c.lazyConnect && c.state == StateIdle {
		c.openLocked()
	}
	c.unlockAndPublish()
	return dispose
}

// OnJSON registers fn for event, decoding each frame's data into T. Frames
// whose data does not decode into T are skipped for this listener only.
func OnJSON[T any](c *Client, event Event, fn func(T)) (dispose func()) {
	if fn == nil {
		return c.On(event, nil)
	}
	return c.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			c.metrics.dropped("listener_decode")
			c.logger.Debug("listener payload mismatch", "event", event, "error", err)
			return
		}
		fn(v)
	})
}

// Status calls fn with the current connectivity immediately and then on
// every change. Consecutive calls never repeat a value. fn may call back into
// the client; status changes it causes are delivered after fn returns.
func (c *Client) Status(fn func(connected bool)) (cancel func()) {
	return c.status.subscribe(fn)
}

// StatusChanges delivers the current connectivity followed by every change
// until ctx is done, when the channel is closed.
func (c *Client) StatusChanges(ctx context.Context) <-chan bool {
	return c.status.changes(ctx)
}

// Connected reports the last published connectivity value.
func (c *Client) Connected() bool {
	return c.status.current()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the number of frames waiting for the next open.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// Outstanding returns the frames accepted by Send that have not been
// written yet: queued ones plus those waiting on the open connection.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.queue.len()
	if c.writer != nil {
		n += c.writer.backlog()
	}
	return n
}

// Attempts returns the retries consumed since the last open or manual
// Connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect.attempts()
}

// Disconnect closes the connection without reconnecting, cancels a pending
// retry, and clears the outbound queue and every listener.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.reconnect.cancel()

	if c.state == StateConnecting || c.state == StateOpen {
		c.setStateLocked(StateClosing)
		c.releaseConnLocked()
		c.setStateLocked(StateClosed)
		c.logger.Info("disconnected")
	}

	c.queue.clear()
	c.metrics.depth(0)
	c.mux.clear()
	c.unlockAndPublish()
}

func (c *Client) openLocked() {
	c.gen++
	gen := c.gen
	t := c.dial()
	ctx, cancel := context.WithCancel(context.Background())
	c.conn = t
	c.cancelConn = cancel
	c.setStateLocked(StateConnecting)

	go c.run(ctx, gen, t)
}

// run drives one transport handle: dial, then read until it fails.
func (c *Client) run(ctx context.Context, gen uint64, t Transport) {
	if err := t.Connect(ctx); err != nil {
		c.handleClose(gen, err)
		return
	}

	if !c.handleOpen(gen) {
		c.closeTransport(t)
		return
	}

	for {
		data, err := t.Receive()
		if err != nil {
			c.handleClose(gen, fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *Client) handleOpen(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		return false
	}

	c.reconnect.reset()
	c.writer = newConnWriter(c.conn)
	go c.writer.run(
		func() { c.metrics.sent(1) },
		func(err error, superseded bool) { c.handleWriteFailure(gen, err, superseded) },
	)
	c.setStateLocked(StateOpen)
	c.logger.Info("connected")
	c.flushLocked()
	c.unlockAndPublish()
	return true
}

// flushLocked hands every queued frame to the writer ahead of any later Send.
func (c *Client) flushLocked() {
	frames := c.queue.drain()
	c.metrics.depth(0)
	if len(frames) == 0 {
		return
	}
	c.writer.enqueue(frames...)
	c.logger.Debug("outbound queue flushed", "frames", len(frames))
}

// handleWriteFailure drops the handle whose writer failed. The unsent frames,
// including the one that failed, go back to the head of the queue when the
// handle is released. A frame that failed after its handle was already
// released may or may not have reached the server and is not retried.
func (c *Client) handleWriteFailure(gen uint64, err error, superseded bool) {
	if superseded {
		c.metrics.dropped("in_flight")
		c.logger.Debug("write failed on released connection", "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.logger.Debug("write failed, requeueing", "error", err)
	c.connLostLocked(err)
	c.unlockAndPublish()
}

func (c *Client) handleMessage(gen uint64, data []byte) {
	c.mu.Lock()
	live := gen == c.gen && c.state == StateOpen
	epoch := c.mux.currentEpoch()
	c.mu.Unlock()
	if !live {
		return
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		c.metrics.decodeError()
		c.logger.Debug("dropping inbound payload", "error", err, "size", len(data))
		return
	}

	routed := c.mux.dispatch(frame, epoch) > 0
	c.metrics.received(frame.Event, routed)
	if !routed {
		c.metrics.dropped("unrouted")
	}
}

func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || (c.state != StateConnecting && c.state != StateOpen) {
		c.mu.Unlock()
		return
	}

	if c.state == StateConnecting {
		c.logger.Debug("connect failed", "error", err)
	} else {
		c.logger.Info("connection lost", "error", err)
	}
	c.connLostLocked(err)
	c.unlockAndPublish()
}

// connLostLocked supersedes the current handle, moves to Closed and hands
// off to the reconnect scheduler.
func (c *Client) connLostLocked(err error) {
	c.releaseConnLocked()
	c.setStateLocked(StateClosed)

	armed, exhausted := c.reconnect.schedule(c.retry)
	switch {
	case armed:
		c.metrics.reconnectScheduled()
		c.logger.Debug("reconnect scheduled",
			"attempt", c.reconnect.attempts(),
			"max", c.reconnectAttempts,
			"in", c.reconnectDelay,
			"cause", err)
	case exhausted:
		c.logger.Warn("reconnect attempts exhausted", "max", c.reconnectAttempts)
	}
}

func (c *Client) retry(token uint64) {
	c.mu.Lock()
	if !c.reconnect.claim(token) || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.logger.Debug("reconnecting", "attempt", c.reconnect.attempts())
	c.openLocked()
	c.unlockAndPublish()
}

// releaseConnLocked bumps the generation so late events from the old handle
// are ignored, moves frames the writer had not started back to the head of
// the queue, and closes the handle on its own goroutine.
func (c *Client) releaseConnLocked() {
	c.gen++
	if c.cancelConn != nil {
		c.cancelConn()
		c.cancelConn = nil
	}
	if c.writer != nil {
		if unsent := c.writer.stop(); len(unsent) > 0 {
			c.queue.pushFront(unsent)
			c.metrics.depth(c.queue.len())
		}
		c.writer = nil
	}
	if c.conn != nil {
		go c.closeTransport(c.conn)
		c.conn = nil
	}
}

func (c *Client) closeTransport(t Transport) {
	if err := t.Close(); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
}

func (c *Client) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.statusSeq++
	c.metrics.transition(from, to)
	c.logger.Debug("state", "from", from, "to", to)
	if c.stateHook != nil {
		c.stateHook(from, to)
	}
}

// unlockAndPublish releases the client lock and then publishes the status
// that held when the lock was released.
func (c *Client) unlockAndPublish() {
	seq, open := c.statusSeq, c.state == StateOpen
	c.mu.Unlock()
	c.status.publish(seq, open)
}
