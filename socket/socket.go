// Package socket implements a persistent, self-healing WebSocket client that
// multiplexes named JSON events from one physical connection to any number of
// independent listeners.
//
// A single Client is built once by the application's composition root and
// shared by reference:
//
//	client := socket.NewClient(socket.WebSocket(url), socket.WithReconnectAttempts(10))
//	stop := client.On("duel-tick", func(data json.RawMessage) { ... })
//	defer stop()
//	client.Connect()
//	client.Send("challenge-call", map[string]any{"id": 7})
//
// Send never fails because the connection is down: frames issued while the
// client is not open are queued and flushed in order on the next open.
package socket

import (
	"errors"
)

// Event names a logical channel multiplexed over the connection, for example
// "kepcoin-delete" or "duel-tick".
type Event string

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrEmptyEvent       = errors.New("event name is empty")
	ErrQueueFull        = errors.New("outbound queue full")
)
