// Package threshold implements AdaptiveThresholds (spec.md §4.4): a
// multiplicative modifier chain over a base threshold vector, optionally
// corrected by a persistent feedback store.
package threshold

import (
	"math"

	"redact/internal/phitype"
)

const (
	minThreshold = 0.3
	maxThreshold = 0.99
)

// BaseVector maps each PHI type to its starting threshold before any
// modifiers are applied. Callers (internal/policy) populate this from
// config; Default provides the conservative starting point spec.md implies
// by listing thresholds as per-type policy data.
func DefaultBaseVector() map[phitype.Type]float64 {
	v := make(map[phitype.Type]float64, len(phitype.All))
	for _, t := range phitype.All {
		v[t] = 0.7
	}
	return v
}

// Inputs bundles every signal the modifier chain reads, mirroring spec.md
// §4.4's composition order: documentType × contextStrength × specialty ×
// purposeOfUse × phiType × ocr.
type Inputs struct {
	DocumentType    phitype.DocumentType
	ContextStrength phitype.ContextStrength
	Specialty       phitype.Specialty
	PurposeOfUse    string // e.g. "clinical", "research", "billing"; "" = no adjustment
	PHIType         phitype.Type
	ChaosScore      float64 // drives the OCR modifier
}

// ModifierTrace records one step of the multiplicative chain for the audit
// log, so "each modifier records its source" (spec.md §4.4) is satisfiable.
type ModifierTrace struct {
	Source string
	Value  float64
}

// Result is the final clamped per-type threshold plus its full trace.
type Result struct {
	Threshold float64
	Trace     []ModifierTrace
}

// FeedbackStore is an optional persistent learned-correction source (spec.md
// §4.4's feedback-learning paragraph). internal/cache's bbolt-backed store
// satisfies this by recording (contextSignature, phiType, outcome) tuples.
type FeedbackStore interface {
	// Correction returns a multiplicative adjustment and true if at least
	// minSamples feedback records exist for (contextSignature, phiType).
	Correction(contextSignature string, t phitype.Type, minSamples int) (float64, bool)
}

// Engine computes final per-type thresholds from a base vector, document
// context, and an optional feedback store.
type Engine struct {
	Base       map[phitype.Type]float64
	Feedback   FeedbackStore
	MinSamples int // feedback sample floor; 0 disables feedback entirely

	// DocumentMods, StrengthMods, SpecialtyMods and PurposeMods are exported
	// so internal/policy can overlay a calibration file onto the built-in
	// defaults without this package needing to know that file's shape.
	DocumentMods  map[phitype.DocumentType]float64
	StrengthMods  map[phitype.ContextStrength]float64
	SpecialtyMods map[phitype.Specialty]float64
	PurposeMods   map[string]float64
}

// NewEngine builds an Engine with spec-reasonable default modifier tables:
// stronger context lowers the required confidence (easier to redact near an
// explicit "Patient:" label); noisier OCR widens the permissible band.
func NewEngine(base map[phitype.Type]float64, feedback FeedbackStore, minSamples int) *Engine {
	if base == nil {
		base = DefaultBaseVector()
	}
	return &Engine{
		Base:       base,
		Feedback:   feedback,
		MinSamples: minSamples,
		DocumentMods: map[phitype.DocumentType]float64{
			phitype.DocRegistration: 0.9,  // registration forms are PHI-dense; lower bar
			phitype.DocLabReport:    1.05, // lab reports are identifier-sparse; raise bar slightly
			phitype.DocUnknown:      1.0,
		},
		StrengthMods: map[phitype.ContextStrength]float64{
			phitype.StrengthStrong:   0.8,
			phitype.StrengthModerate: 0.92,
			phitype.StrengthWeak:     1.0,
			phitype.StrengthNone:     1.05,
		},
		SpecialtyMods: map[phitype.Specialty]float64{
			phitype.SpecUnknown: 1.0,
		},
		PurposeMods: map[string]float64{
			"research": 1.1, // research exports tolerate stricter (higher) bars
			"clinical": 0.95,
			"billing":  1.0,
		},
	}
}

// Threshold computes the final clamped threshold for one candidate's PHI
// type given the context inputs, recording each modifier's contribution.
func (e *Engine) Threshold(in Inputs, contextSignature string) Result {
	base, ok := e.Base[in.PHIType]
	if !ok {
		base = 0.7
	}
	trace := []ModifierTrace{{Source: "base:" + string(in.PHIType), Value: base}}
	value := base

	if m, ok := e.DocumentMods[in.DocumentType]; ok {
		value *= m
		trace = append(trace, ModifierTrace{"documentType:" + string(in.DocumentType), m})
	}
	if m, ok := e.StrengthMods[in.ContextStrength]; ok {
		value *= m
		trace = append(trace, ModifierTrace{"contextStrength:" + string(in.ContextStrength), m})
	}
	if m, ok := e.SpecialtyMods[in.Specialty]; ok {
		value *= m
		trace = append(trace, ModifierTrace{"specialty:" + string(in.Specialty), m})
	}
	if in.PurposeOfUse != "" {
		if m, ok := e.PurposeMods[in.PurposeOfUse]; ok {
			value *= m
			trace = append(trace, ModifierTrace{"purposeOfUse:" + in.PurposeOfUse, m})
		}
	}

	ocrMod := 1.0 - 0.3*in.ChaosScore // noisier text relaxes the threshold, never below 0.7x
	value *= ocrMod
	trace = append(trace, ModifierTrace{"ocr", ocrMod})

	if e.Feedback != nil && e.MinSamples > 0 {
		if corr, enough := e.Feedback.Correction(contextSignature, in.PHIType, e.MinSamples); enough {
			value *= corr
			trace = append(trace, ModifierTrace{"feedback", corr})
		}
	}

	clamped := math.Max(minThreshold, math.Min(maxThreshold, value))
	if clamped != value {
		trace = append(trace, ModifierTrace{"clamp", clamped / value})
	}

	return Result{Threshold: clamped, Trace: trace}
}
