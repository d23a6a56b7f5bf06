package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepuz/livesocket/debug"
	"github.com/kepuz/livesocket/internal/wstest"
)

func newTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	return NewWebSocketTransport(url, append([]WebSocketOption{WithLogger(debug.Discard())}, opts...)...)
}

func TestWebSocketTransportRoundTrip(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer secret")
	tr := newTransport(srv.URL(), WithHeaders(headers), WithReadTimeout(2*time.Second))

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Connect(context.Background()), "connect on an open transport is a no-op")
	defer tr.Close()

	require.NoError(t, tr.Send([]byte(`{"event":"a","data":1}`)))
	require.True(t, srv.WaitReceived(1, 2*time.Second))
	assert.Equal(t, `{"event":"a","data":1}`, string(srv.Received()[0]))
	assert.Equal(t, "Bearer secret", srv.LastHeaders().Get("Authorization"))

	srv.Push([]byte(`{"event":"duel-tick","data":{}}`))
	msg, err := tr.Receive()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"duel-tick","data":{}}`, string(msg))
}

func TestWebSocketTransportReceiveFailsAfterDrop(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	tr := newTransport(srv.URL())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.Eventually(t, func() bool { return srv.Peers() == 1 }, 2*time.Second, time.Millisecond)
	srv.DropAll()

	_, err := tr.Receive()
	assert.Error(t, err)
}

func TestWebSocketTransportDialFailure(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Reject(true)

	tr := newTransport(srv.URL())
	assert.Error(t, tr.Connect(context.Background()))

	_, err := tr.Receive()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, tr.Send([]byte("x")), ErrNotConnected)
}

func TestWebSocketTransportCancelledDial(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newTransport(srv.URL())
	assert.Error(t, tr.Connect(ctx))
}

func TestWebSocketTransportIsSingleUse(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	tr := newTransport(srv.URL())
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	assert.ErrorIs(t, tr.Connect(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, tr.Send([]byte("x")), ErrNotConnected)
}
