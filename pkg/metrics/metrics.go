// Package metrics exposes Prometheus collectors for the courier server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error kinds recorded by RequestFailed
const (
	ErrorKindProtocol = "protocol"
	ErrorKindHandler  = "handler"
	ErrorKindStorage  = "storage"
	ErrorKindIO       = "io"
)

// Metrics holds the server's Prometheus collectors. All record methods
// are safe to call on a nil receiver, so wiring metrics stays optional.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	openConnections   prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
	responsesTotal    *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	requestDuration   prometheus.Histogram
	messagesStored    prometheus.Counter
	messagesDelivered prometheus.Counter
}

// New registers the courier collectors with reg and returns them.
// Pass prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of accepted TCP connections",
		}),

		openConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "open_connections",
			Help:      "Number of currently open connections",
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Total number of dispatched requests by code",
		}, []string{"code"}),

		responsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "responses_total",
			Help:      "Total number of responses written by code",
		}, []string{"code"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "errors_total",
			Help:      "Total number of failed exchanges by error kind",
		}, []string{"kind"}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Request handling duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		messagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "messages_stored_total",
			Help:      "Total number of messages accepted into the mailbox",
		}),

		messagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "server",
			Name:      "messages_delivered_total",
			Help:      "Total number of messages delivered and removed from the mailbox",
		}),
	}
}

// ConnectionOpened records an accepted connection
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.openConnections.Inc()
}

// ConnectionClosed records a finished connection
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}

// RequestReceived records a dispatched request code
func (m *Metrics) RequestReceived(code uint16) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// ResponseSent records a written response code
func (m *Metrics) ResponseSent(code uint16) {
	if m == nil {
		return
	}
	m.responsesTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// RequestFailed records a failed exchange
func (m *Metrics) RequestFailed(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRequestDuration records how long one dispatch took
func (m *Metrics) ObserveRequestDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.Observe(d.Seconds())
}

// MessageStored records a message accepted into the mailbox
func (m *Metrics) MessageStored() {
	if m == nil {
		return
	}
	m.messagesStored.Inc()
}

// MessagesDelivered records n messages delivered and deleted
func (m *Metrics) MessagesDelivered(n int) {
	if m == nil {
		return
	}
	m.messagesDelivered.Add(float64(n))
}
