// Package metrics exposes prometheus collectors for the bridge. All methods are
// safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry          *prometheus.Registry
	telemetryMessages *prometheus.CounterVec
	intents           *prometheus.CounterVec
	storeOps          *prometheus.CounterVec
	storeDuration     *prometheus.HistogramVec
	publishes         *prometheus.CounterVec
	speechOps         *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	mqttConnected     prometheus.Gauge
}

// New builds the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		telemetryMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_telemetry_messages_total",
			Help: "Telemetry messages received by slot and outcome.",
		}, []string{"slot", "outcome"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_intents_total",
			Help: "Interpreted commands by intent.",
		}, []string{"intent"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_store_operations_total",
			Help: "State store operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_store_duration_seconds",
			Help:    "State store call latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_device_publishes_total",
			Help: "Device command publishes by kind and outcome.",
		}, []string{"kind", "outcome"}),
		speechOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_speech_operations_total",
			Help: "Speech adapter calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_mqtt_connected",
			Help: "1 while the broker session is up.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.telemetryMessages,
		m.intents,
		m.storeOps,
		m.storeDuration,
		m.publishes,
		m.speechOps,
		m.httpRequests,
		m.mqttConnected,
	)
	return m
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TelemetryMessage(slot string, ok bool) {
	if m == nil {
		return
	}
	m.telemetryMessages.WithLabelValues(slot, outcome(ok)).Inc()
}

func (m *Metrics) Intent(intent string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent).Inc()
}

func (m *Metrics) StoreOp(op string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, outcome(ok)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) Publish(kind string, ok bool) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(kind, outcome(ok)).Inc()
}

func (m *Metrics) SpeechOp(op string, ok bool) {
	if m == nil {
		return
	}
	m.speechOps.WithLabelValues(op, outcome(ok)).Inc()
}

func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) MQTTConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.mqttConnected.Set(1)
		return
	}
	m.mqttConnected.Set(0)
}
