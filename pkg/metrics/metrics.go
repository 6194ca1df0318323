// Package metrics, chat çekirdeğinin Prometheus metriklerini tanımlar.
//
// Metrikler global default registry yerine kendi Registry'sine kaydedilir;
// her test kendi Metrics örneğini oluşturabilir, duplicate registration olmaz.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opti"

// Command sonuç etiketleri.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultLimited  = "rate_limited"
	ResultProtocol = "protocol_error"
)

// Metrics, uygulamanın tüm collector'larını taşır.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	Commands         *prometheus.CounterVec // action, result
	MessagesSent     prometheus.Counter
	BusPublishErrors prometheus.Counter

	ReceiptsFlushed prometheus.Counter
	FlushErrors     prometheus.Counter
	FlushDuration   prometheus.Histogram
}

// New, collector'ları oluşturur ve yeni bir registry'ye kaydeder.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "active_sessions",
			Help:      "Number of open chat websocket sessions.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "commands_total",
			Help:      "Inbound chat commands by action and result.",
		}, []string{"action", "result"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_sent_total",
			Help:      "Messages committed to the store.",
		}),
		BusPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "publish_errors_total",
			Help:      "Failed publishes to the broadcast bus.",
		}),
		ReceiptsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receipts",
			Name:      "flushed_total",
			Help:      "Message ids marked viewed by the reconciler.",
		}),
		FlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receipts",
			Name:      "flush_errors_total",
			Help:      "Reconciler flushes that failed and dropped their batch.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "receipts",
			Name:      "flush_duration_seconds",
			Help:      "Duration of non-empty reconciler flushes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveSessions,
		m.Commands,
		m.MessagesSent,
		m.BusPublishErrors,
		m.ReceiptsFlushed,
		m.FlushErrors,
		m.FlushDuration,
	)

	return m
}

// Handler, /metrics endpoint'i için HTTP handler döner.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveCommand, bir komutun sonucunu sayar.
func (m *Metrics) ObserveCommand(action, result string) {
	m.Commands.WithLabelValues(action, result).Inc()
}
