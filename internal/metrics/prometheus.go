package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"redact/internal/phitype"
)

// Metrics implements prometheus.Collector directly over its own Snapshot,
// rather than duplicating every counter as a promauto-registered metric:
// the atomic fields above remain the single source of truth, and Collect
// just projects a Snapshot into the Prometheus exposition format on demand.
// Callers register one Metrics instance with their own prometheus.Registry
// (never the global DefaultRegisterer, so multiple engines — or repeated
// construction in tests — never collide on metric names).
var (
	requestsDesc = prometheus.NewDesc(
		"redact_requests_total", "Total redact requests handled, by surface.",
		[]string{"surface"}, nil,
	)
	errorsDesc = prometheus.NewDesc(
		"redact_errors_total", "Total errors encountered, by stage.",
		[]string{"stage"}, nil,
	)
	spansDesc = prometheus.NewDesc(
		"redact_spans_total", "Total spans reconciled, by outcome.",
		[]string{"outcome"}, nil,
	)
	spansByTypeDesc = prometheus.NewDesc(
		"redact_spans_applied_by_type_total", "Applied spans, by PHI type.",
		[]string{"phi_type"}, nil,
	)
	spansByReasonDesc = prometheus.NewDesc(
		"redact_spans_dropped_by_reason_total", "Dropped spans, by drop reason.",
		[]string{"reason"}, nil,
	)
	feedbackDesc = prometheus.NewDesc(
		"redact_feedback_lookups_total", "FeedbackStore lookups, by outcome.",
		[]string{"outcome"}, nil,
	)
	latencyDesc = prometheus.NewDesc(
		"redact_latency_milliseconds", "Latency summary statistics, by stage and stat.",
		[]string{"stage", "stat"}, nil,
	)
	uptimeDesc = prometheus.NewDesc(
		"redact_uptime_seconds", "Seconds since this engine instance started.",
		nil, nil,
	)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- errorsDesc
	ch <- spansDesc
	ch <- spansByTypeDesc
	ch <- spansByReasonDesc
	ch <- feedbackDesc
	ch <- latencyDesc
	ch <- uptimeDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()

	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(s.Requests.Batch), "batch")
	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(s.Requests.Streaming), "streaming")

	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.Errors.Detector), "detector")
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.Errors.Engine), "engine")

	ch <- prometheus.MustNewConstMetric(spansDesc, prometheus.CounterValue, float64(s.Redactions.Applied), "applied")
	ch <- prometheus.MustNewConstMetric(spansDesc, prometheus.CounterValue, float64(s.Redactions.Dropped), "dropped")

	for _, t := range phitype.All {
		if v, ok := s.Redactions.ByType[t]; ok {
			ch <- prometheus.MustNewConstMetric(spansByTypeDesc, prometheus.CounterValue, float64(v), string(t))
		}
	}
	for _, r := range dropReasons {
		if v, ok := s.Redactions.ByReason[r]; ok {
			ch <- prometheus.MustNewConstMetric(spansByReasonDesc, prometheus.CounterValue, float64(v), string(r))
		}
	}

	ch <- prometheus.MustNewConstMetric(feedbackDesc, prometheus.CounterValue, float64(s.Feedback.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(feedbackDesc, prometheus.CounterValue, float64(s.Feedback.Misses), "miss")

	emitLatency(ch, "redact", s.Latency.RedactMs)
	emitLatency(ch, "detect", s.Latency.DetectMs)

	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, s.UptimeSecs)
}

func emitLatency(ch chan<- prometheus.Metric, stage string, l LatencySnapshot) {
	if l.Count == 0 {
		return
	}
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, l.MinMs, stage, "min")
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, l.MeanMs, stage, "mean")
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, l.MaxMs, stage, "max")
}
