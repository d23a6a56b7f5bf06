// Package config loads the client's environment-sourced settings and turns
// them into socket options.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/kepuz/livesocket/socket"
	"github.com/kepuz/livesocket/socket/transport"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config controls where the client connects and how it recovers.
type Config struct {
	URL               string        `env:"LIVESOCKET_URL"`
	ReconnectAttempts int           `env:"LIVESOCKET_RECONNECT_ATTEMPTS" envDefault:"10"`
	ReconnectInterval time.Duration `env:"LIVESOCKET_RECONNECT_INTERVAL" envDefault:"5s"`
	QueueLimit        int           `env:"LIVESOCKET_QUEUE_LIMIT"        envDefault:"1000"`
	QueuePolicy       string        `env:"LIVESOCKET_QUEUE_POLICY"       envDefault:"drop-oldest"`
	HandshakeTimeout  time.Duration `env:"LIVESOCKET_HANDSHAKE_TIMEOUT"  envDefault:"10s"`
	WriteTimeout      time.Duration `env:"LIVESOCKET_WRITE_TIMEOUT"      envDefault:"10s"`
	ReadTimeout       time.Duration `env:"LIVESOCKET_READ_TIMEOUT"       envDefault:"0s"`
	Compression       bool          `env:"LIVESOCKET_COMPRESSION"        envDefault:"false"`
	AuthToken         string        `env:"LIVESOCKET_AUTH_TOKEN"`
	Debug             bool          `env:"LIVESOCKET_DEBUG"              envDefault:"false"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: LIVESOCKET_URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: url scheme %q, want ws or wss", ErrInvalidConfig, u.Scheme)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("%w: reconnect attempts %d", ErrInvalidConfig, c.ReconnectAttempts)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("%w: reconnect interval %s", ErrInvalidConfig, c.ReconnectInterval)
	}
	if c.QueueLimit < 0 {
		return fmt.Errorf("%w: queue limit %d", ErrInvalidConfig, c.QueueLimit)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy maps QueuePolicy onto socket.OverflowPolicy.
func (c Config) Policy() (socket.OverflowPolicy, error) {
	switch c.QueuePolicy {
	case "", socket.DropOldest.String():
		return socket.DropOldest, nil
	case socket.RejectNew.String():
		return socket.RejectNew, nil
	default:
		return 0, fmt.Errorf("%w: queue policy %q", ErrInvalidConfig, c.QueuePolicy)
	}
}

// TransportFactory builds the gorilla/websocket factory for c.URL.
func (c Config) TransportFactory(logger *slog.Logger) socket.TransportFactory {
	opts := []transport.WebSocketOption{
		transport.WithHandshakeTimeout(c.HandshakeTimeout),
		transport.WithWriteTimeout(c.WriteTimeout),
		transport.WithReadTimeout(c.ReadTimeout),
		transport.WithCompression(c.Compression),
		transport.WithLogger(logger),
	}
	if c.AuthToken != "" {
		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+c.AuthToken)
		opts = append(opts, transport.WithHeaders(headers))
	}
	return socket.WebSocket(c.URL, opts...)
}

// ClientOptions translates the reconnect and queue settings.
func (c Config) ClientOptions() []socket.ClientOption {
	policy, _ := c.Policy()
	return []socket.ClientOption{
		socket.WithReconnectAttempts(c.ReconnectAttempts),
		socket.WithReconnectDelay(c.ReconnectInterval),
		socket.WithQueueLimit(c.QueueLimit, policy),
	}
}
