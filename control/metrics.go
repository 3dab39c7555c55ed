// File: control/metrics.go
// Package control provides the operational surface of the engine:
// configuration loading and Prometheus instrumentation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/momentics/zerows/api"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	FramesTotal       *prometheus.CounterVec
	BytesTotal        *prometheus.CounterVec
	ConnErrorsTotal   *prometheus.CounterVec
	HandshakeDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg under the given namespace
// (empty means "zerows").
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "zerows"
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of currently open connections",
		}),
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of WebSocket frames",
		}, []string{"frame_type", "direction"}),
		BytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Total socket bytes",
		}, []string{"direction"}),
		ConnErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Total number of connection errors by class",
		}, []string{"class"}),
		HandshakeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Opening handshake duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"status"}),
	}
}

// frameLabel maps an opcode to its metric label.
func frameLabel(op api.Opcode) string {
	switch op {
	case api.OpcodeContinuation:
		return "continuation"
	case api.OpcodeText:
		return "text"
	case api.OpcodeBinary:
		return "binary"
	case api.OpcodeClose:
		return "close"
	case api.OpcodePing:
		return "ping"
	case api.OpcodePong:
		return "pong"
	}
	return "reserved"
}

// Frame counts one frame in the given direction ("in" or "out").
func (m *Metrics) Frame(op api.Opcode, direction string) {
	m.FramesTotal.WithLabelValues(frameLabel(op), direction).Inc()
}

// Bytes counts raw socket bytes.
func (m *Metrics) Bytes(direction string, n int) {
	m.BytesTotal.WithLabelValues(direction).Add(float64(n))
}

// ConnError counts one connection error by taxonomy label.
func (m *Metrics) ConnError(class string) {
	m.ConnErrorsTotal.WithLabelValues(class).Inc()
}

// ConnOpened / ConnClosed track the active-connection gauge.
func (m *Metrics) ConnOpened() { m.ActiveConnections.Inc() }
func (m *Metrics) ConnClosed() { m.ActiveConnections.Dec() }

// HandshakeDone records one handshake attempt.
func (m *Metrics) HandshakeDone(d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.HandshakeDuration.WithLabelValues(status).Observe(d.Seconds())
}
