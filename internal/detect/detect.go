// Package detect defines the Detector contract and the registry that fans
// requests out to every registered detector (spec.md §4.2).
package detect

import (
	"sync"

	"redact/internal/phitype"
)

// Detector is implemented by every pattern, dictionary, phonetic, and
// learned detector. Detect must be a pure function of (text, ctx.Canonical,
// dictionaries) with no side effects on the input, and safe to call
// concurrently with itself and with every other registered Detector.
type Detector interface {
	Name() string
	PHITypes() []phitype.Type
	Priority() int
	Detect(ctx *Context) ([]phitype.CandidateSpan, error)
}

// Context is the RedactionContext (spec.md §3): a document-scoped scratchpad
// carrying both text views plus whatever memoized signals upstream stages
// attach. It is monotone within one call and discarded after.
//
// Context deliberately holds an any-typed Signals slot instead of importing
// internal/context.Signals directly, so this package does not depend on the
// document analyzer. The engine package, which imports both, performs the
// type assertion.
type Context struct {
	Canonical []rune
	Raw       []rune

	mu      sync.Mutex
	signals any
	memo    map[string]any
}

// NewContext builds a Context over canonical/raw rune views.
func NewContext(canonical, raw []rune) *Context {
	return &Context{Canonical: canonical, Raw: raw, memo: make(map[string]any)}
}

// SetSignals attaches the document analyzer's output. Called once by the
// engine before running detectors.
func (c *Context) SetSignals(s any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = s
}

// Signals returns whatever was attached via SetSignals, or nil.
func (c *Context) Signals() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signals
}

// Memo caches the result of a heavy computation keyed by name, computing it
// at most once per Context (spec.md §4.3: "recomputation is forbidden").
func (c *Context) Memo(key string, compute func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.memo[key]; ok {
		return v
	}
	v := compute()
	c.memo[key] = v
	return v
}

// Registry holds the process-wide, effectively-immutable set of detectors.
// Safe for concurrent read-only use once built (spec.md §5).
type Registry struct {
	detectors []Detector
}

// NewRegistry builds a Registry from the given detectors. Detectors whose
// required resources failed to load should simply be omitted by the caller
// (spec.md: a DetectorUnavailable detector downgrades to empty output, it
// does not abort construction).
func NewRegistry(detectors ...Detector) *Registry {
	return &Registry{detectors: append([]Detector(nil), detectors...)}
}

// Detectors returns the registered detector list, in registration order.
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// DetectAll runs every registered detector and concatenates their output.
// Detectors are independent and side-effect-free per spec.md §4.2, so this
// fans out across goroutines; a single detector's error does not abort the
// others — it is recorded and the detector contributes no spans, matching
// each family's "never throws, returns empty" failure mode.
func (r *Registry) DetectAll(ctx *Context) ([]phitype.CandidateSpan, []DetectorError) {
	type result struct {
		spans []phitype.CandidateSpan
		err   error
		name  string
	}
	results := make([]result, len(r.detectors))
	var wg sync.WaitGroup
	for i, d := range r.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			spans, err := d.Detect(ctx)
			results[i] = result{spans: spans, err: err, name: d.Name()}
		}(i, d)
	}
	wg.Wait()

	var all []phitype.CandidateSpan
	var errs []DetectorError
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, DetectorError{Detector: r.name, Err: r.err})
			continue
		}
		all = append(all, r.spans...)
	}
	return all, errs
}

// DetectorError records a single detector's failure without aborting the run.
type DetectorError struct {
	Detector string
	Err      error
}
