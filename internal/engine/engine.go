// Package engine wires the pipeline stages together into the runtime entry
// points spec.md §2 calls redact and redactStreaming: normalize, detect
// (fanned out by the registry), the context analyzer, the adaptive
// threshold engine, the whitelist bank, the reconciler, and finally the
// replacement applier. Every other package in this module knows only its
// own stage; this is the one place that knows the whole chain.
package engine

import (
	"sort"
	"sync"
	"time"

	"redact/internal/apply"
	"redact/internal/context"
	"redact/internal/detect"
	"redact/internal/normalize"
	"redact/internal/phitype"
	"redact/internal/reconcile"
	"redact/internal/threshold"
	"redact/internal/whitelist"
)

// Logger is the narrow slice of internal/logger.Logger the engine and the
// packages it wires together need, kept as an interface so this package
// never imports the concrete logger.
type Logger interface {
	Warnf(action, format string, args ...any)
}

// Runtime holds every built component the pipeline needs. Callers assemble
// one from internal/policy's loaders at startup; a Runtime is safe for
// concurrent Redact calls once built (spec.md §5: detectors and the
// reconciler are stateless per call, and internal/threshold.Engine's and
// internal/whitelist.Bank's own state is read-only after construction).
type Runtime struct {
	Registry        *detect.Registry
	Whitelist       *whitelist.Bank
	Threshold       *threshold.Engine
	ReconcilePolicy map[phitype.Type]reconcile.TypePolicy
	Merge           reconcile.SoftMergeRule
	ApplyPolicy     apply.Policy
	Debug           bool
	Logger          Logger
	PostFilter      PostFilterEvaluator // nil = no post-filter override rules configured

	// policyMu guards ReconcilePolicy against concurrent SetTypeEnabled
	// calls from internal/management's runtime type-toggle endpoints.
	// Callers that only ever set ReconcilePolicy once before the first
	// Redact call (e.g. in tests) don't need it; the zero mutex is ready.
	policyMu sync.RWMutex
}

// SetTypeEnabled toggles one PHI type's reconciliation policy at runtime,
// safe for concurrent use with in-flight Redact calls. It replaces the
// whole policy map with a copy rather than mutating in place, so readers
// that captured the old map under policySnapshot never see a partial
// update.
func (rt *Runtime) SetTypeEnabled(t phitype.Type, enabled bool) {
	rt.policyMu.Lock()
	defer rt.policyMu.Unlock()
	next := make(map[phitype.Type]reconcile.TypePolicy, len(rt.ReconcilePolicy))
	for k, v := range rt.ReconcilePolicy {
		next[k] = v
	}
	pol := next[t]
	pol.Enabled = enabled
	next[t] = pol
	rt.ReconcilePolicy = next
}

// policySnapshot returns the current reconciliation policy map. It does not
// copy: callers must treat the result as immutable, which holds because
// SetTypeEnabled always installs a fresh map rather than mutating one in
// place.
func (rt *Runtime) policySnapshot() map[phitype.Type]reconcile.TypePolicy {
	rt.policyMu.RLock()
	defer rt.policyMu.RUnlock()
	return rt.ReconcilePolicy
}

// RedactOptions parameterizes one Redact call.
type RedactOptions struct {
	PurposeOfUse  string // e.g. "clinical", "research", "billing"; "" = no adjustment
	IncludeReport bool   // populate RedactResult.Report with the full audit trail
}

// Report is the optional audit trail spec.md §6 calls out as available on
// request: every candidate the reconciler dropped and why, every detector
// that errored, and the applier's per-span trace.
type Report struct {
	Dropped        []reconcile.DropRecord
	DetectorErrors []detect.DetectorError
	AppliedTrace   []apply.AppliedRecord

	// FieldsRemoved and FieldsMasked summarize AppliedTrace by PHI type,
	// one more piece of provenance than the bare per-type Breakdown counts:
	// a type lands in FieldsRemoved when every occurrence was replaced with
	// empty text (StyleEmpty or an empty custom replacement), in
	// FieldsMasked when every occurrence got a non-empty structured
	// replacement. A type with any unreplaced (verbatim) occurrence, or a
	// mix of removed and masked occurrences, appears in neither.
	FieldsRemoved []string
	FieldsMasked  []string
}

// classifyFields buckets AppliedTrace into the removed/masked type-name
// lists a Report exposes.
func classifyFields(trace []apply.AppliedRecord) (removed, masked []string) {
	type state struct {
		sawEmpty, sawNonEmpty, sawUnreplaced bool
	}
	byType := make(map[phitype.Type]*state)
	for _, rec := range trace {
		st, ok := byType[rec.Span.PHIType]
		if !ok {
			st = &state{}
			byType[rec.Span.PHIType] = st
		}
		switch {
		case rec.Unreplaced:
			st.sawUnreplaced = true
		case rec.Output == "":
			st.sawEmpty = true
		default:
			st.sawNonEmpty = true
		}
	}

	for t, st := range byType {
		switch {
		case st.sawUnreplaced || (st.sawEmpty && st.sawNonEmpty):
			continue
		case st.sawEmpty:
			removed = append(removed, string(t))
		case st.sawNonEmpty:
			masked = append(masked, string(t))
		}
	}
	sort.Strings(removed)
	sort.Strings(masked)
	return removed, masked
}

// RedactResult is the redact entry point's full output (spec.md §2/§6).
type RedactResult struct {
	Text            string
	RedactionCount  int
	Breakdown       map[phitype.Type]int
	ExecutionMillis float64
	Mapping         []apply.OffsetMapping // raw-input -> output offsets; always populated, needed by internal/stream
	Report          *Report
}

// Redact runs the full pipeline over one document: normalize, analyze
// context, detect, reconcile, and apply. Span and mapping offsets in the
// result are relative to rawText exactly as given — normalization's
// canonical form is an internal detail detectors see, never callers.
func (rt *Runtime) Redact(rawText string, opts RedactOptions) (RedactResult, error) {
	start := time.Now()

	norm := normalize.Normalize(rawText)
	sig := context.Analyze(norm.Canonical)

	rawRunes := []rune(rawText)
	dctx := detect.NewContext(norm.Canonical, rawRunes)
	dctx.SetSignals(sig)

	candidates, detErrs := rt.Registry.DetectAll(dctx)
	for i := range candidates {
		candidates[i].Window = context.Window(norm.Canonical, candidates[i].Start, candidates[i].End)
	}

	rOpts := reconcile.Options{
		Policy:      rt.policySnapshot(),
		Whitelist:   whitelistAdapter{bank: rt.Whitelist, postFilter: rt.PostFilter},
		ContextMult: contextMultiplierAdapter{sig: sig},
		Merge:       rt.Merge,
		Debug:       rt.Debug,
	}
	if rt.Threshold != nil {
		rOpts.Threshold = thresholdAdapter{engine: rt.Threshold, sig: sig, purpose: opts.PurposeOfUse}
	}

	recResult := reconcile.Reconcile(candidates, rOpts)
	rawSpans := remapSpansToRaw(recResult.Applied, norm, rawRunes)

	applyResult, err := apply.Apply(rawRunes, rawSpans, rt.ApplyPolicy, rt.Debug, rt.Logger)
	if err != nil {
		return RedactResult{}, err
	}

	breakdown := make(map[phitype.Type]int, len(applyResult.Trace))
	for _, rec := range applyResult.Trace {
		breakdown[rec.Span.PHIType]++
	}

	result := RedactResult{
		Text:            applyResult.Text,
		RedactionCount:  len(applyResult.Trace),
		Breakdown:       breakdown,
		ExecutionMillis: float64(time.Since(start).Microseconds()) / 1000.0,
		Mapping:         applyResult.Mapping,
	}
	if opts.IncludeReport {
		removed, masked := classifyFields(applyResult.Trace)
		result.Report = &Report{
			Dropped:        remapDroppedToRaw(recResult.Dropped, norm, rawRunes),
			DetectorErrors: detErrs,
			AppliedTrace:   applyResult.Trace,
			FieldsRemoved:  removed,
			FieldsMasked:   masked,
		}
	}
	return result, nil
}

// remapSpansToRaw converts the reconciler's canonical-offset spans back into
// raw-document offsets and text using the normalizer's reversible map
// (spec.md §4.1), so the applier writes into the original document rather
// than its canonical working copy.
func remapSpansToRaw(spans []phitype.Span, norm normalize.Result, rawRunes []rune) []phitype.Span {
	out := make([]phitype.Span, len(spans))
	for i, s := range spans {
		s.Start = norm.MapToRaw(s.Start)
		s.End = norm.MapToRaw(s.End)
		if s.End < s.Start {
			s.End = s.Start
		}
		if s.End > len(rawRunes) {
			s.End = len(rawRunes)
		}
		s.Text = string(rawRunes[s.Start:s.End])
		out[i] = s
	}
	return out
}

func remapDroppedToRaw(dropped []reconcile.DropRecord, norm normalize.Result, rawRunes []rune) []reconcile.DropRecord {
	out := make([]reconcile.DropRecord, len(dropped))
	for i, d := range dropped {
		c := d.Candidate
		c.Start = norm.MapToRaw(c.Start)
		c.End = norm.MapToRaw(c.End)
		if c.End < c.Start {
			c.End = c.Start
		}
		if c.End > len(rawRunes) {
			c.End = len(rawRunes)
		}
		c.Text = string(rawRunes[c.Start:c.End])
		out[i] = reconcile.DropRecord{Candidate: c, Reason: d.Reason}
	}
	return out
}
