package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics exposes counters/histograms for the ingest and delivery flows.
type RelayMetrics struct {
	inboundTotal    *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	statusTotal     *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsrelay",
			Subsystem: "ingest",
			Name:      "inbound_total",
			Help:      "Inbound SMS seen by the relay, by source, provider and filter result",
		}, []string{"source", "provider", "matched"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsrelay",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Webhook delivery attempts by outcome",
		}, []string{"outcome"}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsrelay",
			Subsystem: "delivery",
			Name:      "status_total",
			Help:      "Webhook responses by HTTP status class",
		}, []string{"code_class"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smsrelay",
			Subsystem: "delivery",
			Name:      "latency_seconds",
			Help:      "Latency of webhook POSTs that received a response",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.attemptsTotal, m.statusTotal, m.deliveryLatency)
	return m
}

func (m *RelayMetrics) ObserveInbound(source, provider string, matched bool) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, provider, strconv.FormatBool(matched)).Inc()
}

func (m *RelayMetrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveResponse(statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.statusTotal.WithLabelValues(codeClass(statusCode)).Inc()
	m.deliveryLatency.Observe(seconds)
}

func codeClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
