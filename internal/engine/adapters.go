package engine

import (
	"fmt"

	"redact/internal/context"
	"redact/internal/phitype"
	"redact/internal/threshold"
	"redact/internal/whitelist"
)

// thresholdAdapter bridges internal/threshold.Engine's Inputs-based API to
// internal/reconcile.Thresholder's narrower ThresholdFor(type, offset)
// contract, folding in the document signals the reconciler itself never
// sees.
type thresholdAdapter struct {
	engine  *threshold.Engine
	sig     context.Signals
	purpose string
}

func (a thresholdAdapter) ThresholdFor(t phitype.Type, start int) float64 {
	in := threshold.Inputs{
		DocumentType:    a.sig.DocumentType,
		ContextStrength: a.sig.ContextStrength(start),
		Specialty:       a.sig.Specialty,
		PurposeOfUse:    a.purpose,
		PHIType:         t,
		ChaosScore:      a.sig.ChaosScore,
	}
	return a.engine.Threshold(in, contextSignature(a.sig, start)).Threshold
}

// contextSignature derives the correlation key internal/cache.FeedbackStore
// groups corrections by: documents of the same type, specialty and local
// context strength are assumed to behave alike for feedback purposes.
func contextSignature(sig context.Signals, offset int) string {
	return fmt.Sprintf("%s|%s|%s", sig.DocumentType, sig.Specialty, sig.ContextStrength(offset))
}

// PostFilterEvaluator is the operator override layer consulted ahead of the
// whitelist bank: a matched rule can veto a candidate outright, force it past
// the whitelist regardless of what the bank would say, or downrank it. It
// returns a plain action string (not internal/policy.PostFilterAction) so
// this package never needs to import internal/policy — cmd/redact supplies
// the adapter that converts one into the other.
type PostFilterEvaluator interface {
	Evaluate(text string) (action string, matched bool)
}

// whitelistAdapter bridges internal/whitelist.Bank's Verdict-returning Check
// to internal/reconcile.Whitelister's tuple-returning contract, with an
// optional post-filter override consulted first.
type whitelistAdapter struct {
	bank       *whitelist.Bank
	postFilter PostFilterEvaluator // nil = no post-filter rules configured
}

func (a whitelistAdapter) Check(text string, t phitype.Type, window []string) (bool, float64, phitype.DropReason) {
	if a.postFilter != nil {
		if action, matched := a.postFilter.Evaluate(text); matched {
			switch action {
			case "suppress":
				return true, 0, phitype.ReasonWhitelisted
			case "force":
				return false, 0, ""
			case "downrank":
				// Check's signature has no access to the candidate's raw
				// confidence, so a literal "halve confidence" isn't
				// expressible here; a flat penalty approximates it.
				return false, 0.3, ""
			}
		}
	}
	v := a.bank.Check(text, t, window)
	return v.Whitelisted, v.Penalty, v.Reason
}

// contextMultiplierAdapter implements internal/reconcile.ContextMultiplier:
// the reconciler's step-2 calibration nudges a candidate's confidence by how
// clearly its region is labeled, independent of (and in addition to) the
// threshold engine's own contextStrength modifier, which instead adjusts the
// bar a candidate must clear rather than the candidate's own score.
type contextMultiplierAdapter struct {
	sig context.Signals
}

func (a contextMultiplierAdapter) Multiplier(t phitype.Type, offset int) float64 {
	switch a.sig.ContextStrength(offset) {
	case phitype.StrengthStrong:
		return 1.15
	case phitype.StrengthModerate:
		return 1.05
	case phitype.StrengthWeak:
		return 1.0
	default:
		return 0.9
	}
}
