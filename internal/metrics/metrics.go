// Package metrics provides lightweight, lock-minimal performance counters
// for a running redaction engine.
//
// Counters use sync/atomic so hot paths (detection, reconciliation,
// replacement) incur no mutex contention. Latency statistics use one mutex
// per dimension; they are updated at most once per request.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"redact/internal/phitype"
)

// Metrics holds all runtime counters for a running redaction engine
// instance. The zero value is valid and ready to use; prefer New() for
// clarity and an accurate start time.
type Metrics struct {
	// Request counters
	RequestsTotal     atomic.Int64
	RequestsBatch     atomic.Int64
	RequestsStreaming atomic.Int64

	// Error counters
	ErrorsDetector atomic.Int64 // a detector returned an error during DetectAll
	ErrorsEngine   atomic.Int64 // Redact itself failed (normalization/apply invariant violation)

	// Redaction volume
	SpansRedacted atomic.Int64
	SpansDropped  atomic.Int64

	// Feedback store (internal/cache.FeedbackStore) lookups made while
	// computing adaptive thresholds.
	FeedbackHits   atomic.Int64
	FeedbackMisses atomic.Int64

	byType   [len(phitype.All)]atomic.Int64
	byReason map[phitype.DropReason]*atomic.Int64

	// Latency statistics (mutex-guarded because they accumulate floats)
	redactMu   sync.Mutex
	redactStat latencyStats

	detectMu   sync.Mutex
	detectStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	m := &Metrics{startTime: time.Now()}
	m.byReason = make(map[phitype.DropReason]*atomic.Int64, len(dropReasons))
	for _, r := range dropReasons {
		m.byReason[r] = new(atomic.Int64)
	}
	return m
}

var dropReasons = []phitype.DropReason{
	phitype.ReasonDisabledType,
	phitype.ReasonBelowThreshold,
	phitype.ReasonWhitelisted,
	phitype.ReasonSubsumed,
	phitype.ReasonLostOverlap,
	phitype.ReasonMergedIntoSibling,
	phitype.ReasonCandidateCeiling,
}

func typeIndex(t phitype.Type) int {
	for i, v := range phitype.All {
		if v == t {
			return i
		}
	}
	return -1
}

// RecordRedaction increments the counter for a successfully applied PHI
// type. Unknown types (outside the closed enumeration) are ignored rather
// than panicking, since policy files may introduce additional types that
// this fixed-size counter table doesn't track.
func (m *Metrics) RecordRedaction(t phitype.Type) {
	if i := typeIndex(t); i >= 0 {
		m.byType[i].Add(1)
	}
	m.SpansRedacted.Add(1)
}

// RecordDrop increments the dropped-span counter for the given reason. A
// reason outside the closed enumeration is counted in SpansDropped only.
func (m *Metrics) RecordDrop(reason phitype.DropReason) {
	if m.byReason == nil {
		m.byReason = make(map[phitype.DropReason]*atomic.Int64, len(dropReasons))
		for _, r := range dropReasons {
			m.byReason[r] = new(atomic.Int64)
		}
	}
	if c, ok := m.byReason[reason]; ok {
		c.Add(1)
	}
	m.SpansDropped.Add(1)
}

// RecordRedactLatency records the duration of one full Redact call.
func (m *Metrics) RecordRedactLatency(d time.Duration) {
	m.redactMu.Lock()
	m.redactStat.record(float64(d.Microseconds()) / 1000.0)
	m.redactMu.Unlock()
}

// RecordDetectLatency records the duration of one Registry.DetectAll fan-out.
func (m *Metrics) RecordDetectLatency(d time.Duration) {
	m.detectMu.Lock()
	m.detectStat.record(float64(d.Microseconds()) / 1000.0)
	m.detectMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.redactMu.Lock()
	redact := m.redactStat.snapshot()
	m.redactMu.Unlock()

	m.detectMu.Lock()
	detect := m.detectStat.snapshot()
	m.detectMu.Unlock()

	byType := make(map[phitype.Type]int64)
	for i, t := range phitype.All {
		if v := m.byType[i].Load(); v > 0 {
			byType[t] = v
		}
	}
	byReason := make(map[phitype.DropReason]int64)
	for r, c := range m.byReason {
		if v := c.Load(); v > 0 {
			byReason[r] = v
		}
	}

	return Snapshot{
		Requests: RequestSnapshot{
			Total:     m.RequestsTotal.Load(),
			Batch:     m.RequestsBatch.Load(),
			Streaming: m.RequestsStreaming.Load(),
		},
		Errors: ErrorSnapshot{
			Detector: m.ErrorsDetector.Load(),
			Engine:   m.ErrorsEngine.Load(),
		},
		Redactions: RedactionSnapshot{
			Applied:  m.SpansRedacted.Load(),
			Dropped:  m.SpansDropped.Load(),
			ByType:   byType,
			ByReason: byReason,
		},
		Feedback: FeedbackSnapshot{
			Hits:   m.FeedbackHits.Load(),
			Misses: m.FeedbackMisses.Load(),
		},
		Latency: LatencyGroup{
			RedactMs: redact,
			DetectMs: detect,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests   RequestSnapshot   `json:"requests"`
	Errors     ErrorSnapshot     `json:"errors"`
	Redactions RedactionSnapshot `json:"redactions"`
	Feedback   FeedbackSnapshot  `json:"feedback"`
	Latency    LatencyGroup      `json:"latency"`
	UptimeSecs float64           `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total     int64 `json:"total"`
	Batch     int64 `json:"batch"`
	Streaming int64 `json:"streaming"`
}

// ErrorSnapshot holds error counters.
type ErrorSnapshot struct {
	Detector int64 `json:"detector"`
	Engine   int64 `json:"engine"`
}

// RedactionSnapshot holds redaction-volume counters, broken down by PHI type
// and by drop reason. Zero-count entries are omitted from both maps.
type RedactionSnapshot struct {
	Applied  int64                        `json:"applied"`
	Dropped  int64                        `json:"dropped"`
	ByType   map[phitype.Type]int64       `json:"byType"`
	ByReason map[phitype.DropReason]int64 `json:"byReason"`
}

// FeedbackSnapshot holds internal/cache.FeedbackStore lookup counters.
type FeedbackSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	RedactMs LatencySnapshot `json:"redactMs"`
	DetectMs LatencySnapshot `json:"detectMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
