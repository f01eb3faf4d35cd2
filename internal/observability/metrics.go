// Package observability exposes the process's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logwatch"

// Drop reasons used as the records_dropped_total label.
const (
	ReasonMalformed        = "malformed"
	ReasonInvalidTimestamp = "invalid_timestamp"
)

// Metrics holds every collector the monitor and its sinks report to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	recordsIngested  prometheus.Counter
	recordsDropped   *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	summaries        prometheus.Counter
	elevated         prometheus.Gauge
	requestRate      prometheus.Gauge
	series           prometheus.Gauge
	dataTime         prometheus.Gauge
	eventsDropped    prometheus.Counter
	sinkFailures     *prometheus.CounterVec
	websocketClients prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recordsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Access-log records added to the counter store.",
		}),
		recordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Access-log rows skipped because they could not be parsed.",
		}, []string{"reason"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Traffic alert state changes by kind.",
		}, []string{"kind"}),
		summaries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Traffic summaries emitted.",
		}),
		elevated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "traffic_elevated",
			Help:      "1 while traffic is elevated, else 0.",
		}),
		requestRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "request_rate",
			Help:      "Average requests per second over the alert window.",
		}),
		series: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series",
			Help:      "Counter series in the store.",
		}),
		dataTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_time_seconds",
			Help:      "Latest record timestamp seen, as Unix seconds.",
		}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_events_dropped_total",
			Help:      "Alert events discarded because the event bus was full.",
		}),
		sinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed deliveries to alert sinks.",
		}, []string{"sink"}),
		websocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected alert stream clients.",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIngested counts one stored record.
func (m *Metrics) RecordIngested() {
	if m == nil {
		return
	}
	m.recordsIngested.Inc()
}

// RecordDropped counts one skipped row.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.recordsDropped.WithLabelValues(reason).Inc()
}

// AlertTransition counts a state change and updates the elevated gauge.
func (m *Metrics) AlertTransition(kind string, elevated bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
	if elevated {
		m.elevated.Set(1)
	} else {
		m.elevated.Set(0)
	}
}

// SummaryEmitted counts one summary.
func (m *Metrics) SummaryEmitted() {
	if m == nil {
		return
	}
	m.summaries.Inc()
}

// ObserveState records the gauges derived from the store after a clock tick.
func (m *Metrics) ObserveState(rate float64, series int, dataTimeUnix int64) {
	if m == nil {
		return
	}
	m.requestRate.Set(rate)
	m.series.Set(float64(series))
	m.dataTime.Set(float64(dataTimeUnix))
}

// EventDropped counts an alert event the bus refused.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// SinkFailed counts a failed sink delivery.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// WebsocketClients sets the number of connected stream clients.
func (m *Metrics) WebsocketClients(n int) {
	if m == nil {
		return
	}
	m.websocketClients.Set(float64(n))
}
