// Package transport provides the gorilla/websocket connection used by the
// socket client.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kepuz/livesocket/debug"
)

var ErrNotConnected = errors.New("not connected")

// WebSocketTransport is a single-use text-frame connection. Once closed it
// stays closed. Close does not wait for a write in progress: it closes the
// socket underneath it, which fails the write.
type WebSocketTransport struct {
	mu               sync.Mutex
	writeMu          sync.Mutex
	conn             *websocket.Conn
	url              string
	dialer           *websocket.Dialer
	headers          http.Header
	connected        bool
	closed           bool
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration
	compression      bool
	logger           *slog.Logger
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

// WithReadTimeout bounds the wait for each inbound frame. Zero disables it,
// which suits push connections that may idle for long periods.
func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.handshakeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.compression = enabled
	}
}

func WithDialer(dialer *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) {
		if dialer != nil {
			t.dialer = dialer
		}
	}
}

func WithLogger(logger *slog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:              url,
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     10 * time.Second,
		logger:           debug.Logger(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.logger = t.logger.With("url", url)

	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.closed {
		t.mu.Unlock()
		return ErrNotConnected
	}
	dialer := *t.dialer
	t.mu.Unlock()

	t.logger.Debug("dialing")

	dialer.HandshakeTimeout = t.handshakeTimeout
	if t.compression {
		dialer.EnableCompression = true
	}

	conn, _, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		t.logger.Debug("dial failed", "error", err)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Close may have won the race with the handshake.
	if t.closed {
		conn.Close()
		return ErrNotConnected
	}

	if t.readTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		})
	}

	t.logger.Debug("connected")
	t.conn = conn
	t.connected = true

	return nil
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	if !t.connected || conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			t.logger.Debug("set write deadline", "error", err)
			return err
		}
	}

	err := conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		t.logger.Debug("write failed", "error", err)
		return err
	}
	t.logger.Debug("frame sent", "size", len(data))
	return nil
}

// Receive returns the next text frame. Binary frames are skipped.
func (t *WebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	if !t.connected || conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	t.mu.Unlock()

	for {
		if t.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
				t.logger.Debug("set read deadline", "error", err)
				return nil, err
			}
		}

		kind, message, err := conn.ReadMessage()
		if err != nil {
			t.logger.Debug("read failed", "error", err)
			return nil, err
		}
		if kind != websocket.TextMessage {
			t.logger.Debug("skipping non-text frame", "type", kind)
			continue
		}

		t.logger.Debug("frame received", "size", len(message))
		return message, nil
	}
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	if !t.connected || conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	t.conn = nil
	t.mu.Unlock()

	t.logger.Debug("closing")

	// WriteControl may run concurrently with a WriteMessage in Send.
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		t.logger.Debug("write close frame", "error", err)
	}

	err = conn.Close()
	if err != nil {
		t.logger.Debug("close", "error", err)
	}

	return err
}
