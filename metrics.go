package websocket

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Server.
// A nil *Metrics records nothing.
type Metrics struct {
	handshakes     *prometheus.CounterVec
	activeConns    prometheus.Gauge
	connDuration   prometheus.Histogram
	framesRead     *prometheus.CounterVec
	framesWritten  *prometheus.CounterVec
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	messagesRead   *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns = "websocket"
	m := &Metrics{
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "handshakes_total",
				Help:      "Opening handshake requests by result",
			},
			[]string{"result"},
		),
		activeConns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "connections_active",
				Help:      "Connections currently open or closing",
			},
		),
		connDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "connection_duration_seconds",
				Help:      "Time from handshake completion to teardown",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
			},
		),
		framesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "frames_read_total",
				Help:      "Frames read from clients by opcode",
			},
			[]string{"opcode"},
		),
		framesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "frames_written_total",
				Help:      "Frames written to clients by opcode",
			},
			[]string{"opcode"},
		),
		bytesRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "payload_bytes_read_total",
				Help:      "Payload bytes read from clients",
			},
		),
		bytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "payload_bytes_written_total",
				Help:      "Payload bytes written to clients",
			},
		),
		messagesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "messages_read_total",
				Help:      "Complete data messages delivered to the handler by type",
			},
			[]string{"type"},
		),
		protocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "protocol_errors_total",
				Help:      "Connections failed for violating the protocol by close code",
			},
			[]string{"code"},
		),
	}

	reg.MustRegister(
		m.handshakes,
		m.activeConns,
		m.connDuration,
		m.framesRead,
		m.framesWritten,
		m.bytesRead,
		m.bytesWritten,
		m.messagesRead,
		m.protocolErrors,
	)
	return m
}

func (m *Metrics) handshake(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
}

func (m *Metrics) connClosed(opened time.Time) {
	if m == nil {
		return
	}
	m.activeConns.Dec()
	m.connDuration.Observe(time.Since(opened).Seconds())
}

func (m *Metrics) frameRead(op opcode, n int) {
	if m == nil {
		return
	}
	m.framesRead.WithLabelValues(op.String()).Inc()
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) frameWritten(op opcode, n int) {
	if m == nil {
		return
	}
	m.framesWritten.WithLabelValues(op.String()).Inc()
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) messageRead(typ MessageType) {
	if m == nil {
		return
	}
	m.messagesRead.WithLabelValues(typ.String()).Inc()
}

func (m *Metrics) protocolError(code StatusCode) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()
}
