package socket

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Client. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	state             prometheus.Gauge
	connected         prometheus.Gauge
	transitions       *prometheus.CounterVec
	framesSent        prometheus.Counter
	framesQueued      prometheus.Counter
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	reconnectAttempts prometheus.Counter
	queueDepth        prometheus.Gauge
}

// NewMetrics creates the client collectors and registers them with reg. A
// collector that is already registered is reused, so several clients built
// against the same registry share series.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livesocket",
			Subsystem: "client",
			Name:      "state",
			Help:      "Connection state (0=idle, 1=connecting, 2=open, 3=closing, 4=closed)",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livesocket",
			Subsystem: "client",
			Name:      "connected",
			Help:      "1 while the connection is open",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "client",
			Name:      "transitions_total",
			Help:      "State transitions by source and target state",
		}, []string{"from", "to"}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Frames written to the transport",
		}),
		framesQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "frames",
			Name:      "queued_total",
			Help:      "Frames buffered while the connection was not open",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Decoded inbound frames by event; frames no listener wanted count as \"unrouted\"",
		}, []string{"event"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "frames",
			Name:      "dropped_total",
			Help:      "Frames dropped by reason",
		}, []string{"reason"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "frames",
			Name:      "decode_errors_total",
			Help:      "Inbound payloads that were not valid frames",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesocket",
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livesocket",
			Subsystem: "client",
			Name:      "queue_depth",
			Help:      "Frames waiting in the outbound queue",
		}),
	}

	var err error
	if m.state, err = register(reg, m.state); err != nil {
		return nil, err
	}
	if m.connected, err = register(reg, m.connected); err != nil {
		return nil, err
	}
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.framesSent, err = register(reg, m.framesSent); err != nil {
		return nil, err
	}
	if m.framesQueued, err = register(reg, m.framesQueued); err != nil {
		return nil, err
	}
	if m.framesReceived, err = register(reg, m.framesReceived); err != nil {
		return nil, err
	}
	if m.framesDropped, err = register(reg, m.framesDropped); err != nil {
		return nil, err
	}
	if m.decodeErrors, err = register(reg, m.decodeErrors); err != nil {
		return nil, err
	}
	if m.reconnectAttempts, err = register(reg, m.reconnectAttempts); err != nil {
		return nil, err
	}
	if m.queueDepth, err = register(reg, m.queueDepth); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register socket metrics: %w", err)
	}
	return c, nil
}

func (m *Metrics) transition(from, to State) {
	if m == nil {
		return
	}
	m.state.Set(float64(to))
	if to == StateOpen {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) sent(n int) {
	if m == nil || n == 0 {
		return
	}
	m.framesSent.Add(float64(n))
}

func (m *Metrics) queued() {
	if m == nil {
		return
	}
	m.framesQueued.Inc()
}

const unroutedLabel = "unrouted"

// received counts a decoded frame. Only routed frames carry their event name
// as a label so a server cannot grow the series set.
func (m *Metrics) received(event Event, routed bool) {
	if m == nil {
		return
	}
	label := unroutedLabel
	if routed {
		label = string(event)
	}
	m.framesReceived.WithLabelValues(label).Inc()
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) reconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
