// Package reconcile implements the Reconciler (spec.md §4.6): the
// algorithmic heart of the system. It takes the unsorted union of
// CandidateSpans from every detector and produces an ordered,
// non-overlapping sequence of final Spans.
package reconcile

import (
	"fmt"
	"sort"

	"redact/internal/phitype"
)

// TypePolicy is the per-type slice of Policy the reconciler consults
// (spec.md §3's Policy type, scoped down to what step 1/2/5 need).
type TypePolicy struct {
	Enabled       bool
	MinConfidence float64 // policy-level floor, independent of the adaptive threshold
}

// Thresholder supplies the per-candidate adaptive threshold (internal/threshold.Engine).
type Thresholder interface {
	ThresholdFor(t phitype.Type, start int) float64
}

// Whitelister supplies the whitelist verdict for a candidate
// (internal/whitelist.Bank).
type Whitelister interface {
	Check(text string, t phitype.Type, window []string) (whitelisted bool, penalty float64, reason phitype.DropReason)
}

// ContextMultiplier supplies the calibration-step context multiplier
// (internal/context.Signals derived, or the engine's own composition).
type ContextMultiplier interface {
	Multiplier(t phitype.Type, offset int) float64
}

// SoftMergeRule reports whether two same-type candidates from allowed
// families may be merged into one span when they touch or overlap by fewer
// than K units (spec.md §4.6 step 4's "soft merge" clause).
type SoftMergeRule struct {
	AllowedFamilies map[string]bool // detector name -> allowed
	MaxGap          int             // K units
	Epsilon         float64         // tie window for partial-overlap scoring
}

// Options bundles everything the reconciler needs beyond the candidate list.
type Options struct {
	Policy      map[phitype.Type]TypePolicy
	Threshold   Thresholder
	Whitelist   Whitelister
	ContextMult ContextMultiplier
	Merge       SoftMergeRule
	Debug       bool // enable invariant checks (spec.md §4.6 "checked under a debug mode")
}

// DropRecord pairs a dropped candidate with why it did not survive, for the
// audit report's dropped-candidate list.
type DropRecord struct {
	Candidate phitype.CandidateSpan
	Reason    phitype.DropReason
}

// Result is the reconciler's full output.
type Result struct {
	Applied []phitype.Span
	Dropped []DropRecord
}

// candidateState tracks one candidate's mutable state through the step 4
// sweep: its (possibly merged) span, calibrated score, and whether it has
// been knocked out of contention.
type candidateState struct {
	span    phitype.CandidateSpan
	score   float64
	ignored bool
	reason  phitype.DropReason
}

// Reconcile runs the six-step algorithm from spec.md §4.6 over the unsorted
// union of candidates from every detector.
func Reconcile(candidates []phitype.CandidateSpan, opts Options) Result {
	var dropped []DropRecord

	// Step 1: Filter.
	filtered := make([]phitype.CandidateSpan, 0, len(candidates))
	for _, c := range candidates {
		pol, known := opts.Policy[c.PHIType]
		if known && !pol.Enabled {
			dropped = append(dropped, DropRecord{c, phitype.ReasonDisabledType})
			continue
		}

		threshold := pol.MinConfidence
		if opts.Threshold != nil {
			adaptive := opts.Threshold.ThresholdFor(c.PHIType, c.Start)
			if adaptive > threshold {
				threshold = adaptive
			}
		}
		if c.Confidence < threshold {
			dropped = append(dropped, DropRecord{c, phitype.ReasonBelowThreshold})
			continue
		}

		if opts.Whitelist != nil {
			whitelisted, _, reason := opts.Whitelist.Check(c.Text, c.PHIType, c.Window)
			if whitelisted && !phitype.PatternBypass[c.PHIType] {
				dropped = append(dropped, DropRecord{c, reason})
				continue
			}
		}

		filtered = append(filtered, c)
	}

	// Step 2: Calibrate.
	type calibrated struct {
		span  phitype.CandidateSpan
		score float64
	}
	calibratedList := make([]calibrated, 0, len(filtered))
	for _, c := range filtered {
		mult := 1.0
		if opts.ContextMult != nil {
			mult = opts.ContextMult.Multiplier(c.PHIType, c.Start)
		}
		penalty := 0.0
		if opts.Whitelist != nil {
			_, p, _ := opts.Whitelist.Check(c.Text, c.PHIType, c.Window)
			penalty = p
		}
		score := c.Confidence*mult - penalty
		calibratedList = append(calibratedList, calibrated{c, score})
	}

	// Step 3: Sort by (start asc, -end, -priority, -disambiguationScore, detectorName asc).
	sort.SliceStable(calibratedList, func(i, j int) bool {
		a, b := calibratedList[i], calibratedList[j]
		if a.span.Start != b.span.Start {
			return a.span.Start < b.span.Start
		}
		if a.span.End != b.span.End {
			return a.span.End > b.span.End
		}
		if a.span.Priority != b.span.Priority {
			return a.span.Priority > b.span.Priority
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.span.DetectorName < b.span.DetectorName
	})

	// Step 4: Sweep overlaps, maintaining an active frontier of mutually
	// non-overlapping survivors. Each incoming candidate is resolved against
	// every frontier entry it overlaps, one pairwise decision at a time;
	// once a candidate is marked ignored it is dead and stops participating.
	var frontier []*candidateState
	var survivors []*candidateState

	for _, c := range calibratedList {
		cur := &candidateState{span: c.span, score: c.score}

		var stillActive []*candidateState
		for _, a := range frontier {
			gap := cur.span.Start - a.span.End // negative means the spans overlap
			if gap > opts.Merge.MaxGap {
				continue // truly expired: too far away to ever overlap or merge
			}
			overlapping := a.span.End > cur.span.Start

			mergeEligible := opts.Merge.AllowedFamilies[a.span.DetectorName] && opts.Merge.AllowedFamilies[cur.span.DetectorName] &&
				a.span.PHIType == cur.span.PHIType && gap <= opts.Merge.MaxGap

			if !overlapping {
				// Within merge-gap tolerance but not actually overlapping:
				// only a soft merge can connect them, otherwise both survive
				// untouched and a stays on the frontier for the next candidate.
				if !cur.ignored && mergeEligible {
					winner, _ := resolveOverlap(a, cur, opts.Merge.Epsilon)
					a.span = mergeSpans(a.span, cur.span, winner.score)
					a.score = winner.score
					cur.ignored = true
					cur.reason = phitype.ReasonMergedIntoSibling
				}
				stillActive = append(stillActive, a)
				continue
			}

			if cur.ignored {
				stillActive = append(stillActive, a)
				continue
			}

			aContainsCur := a.span.Start <= cur.span.Start && a.span.End >= cur.span.End
			curContainsA := cur.span.Start <= a.span.Start && cur.span.End >= a.span.End

			switch {
			case aContainsCur || curContainsA:
				winner, loser := resolveOverlap(a, cur, opts.Merge.Epsilon)
				loser.ignored = true
				loser.reason = phitype.ReasonSubsumed
				if winner == a {
					stillActive = append(stillActive, a)
				}
				// if winner == cur, a is dropped entirely (not kept in frontier)

			case mergeEligible:
				winner, _ := resolveOverlap(a, cur, opts.Merge.Epsilon)
				a.span = mergeSpans(a.span, cur.span, winner.score)
				a.score = winner.score
				cur.ignored = true
				cur.reason = phitype.ReasonMergedIntoSibling
				stillActive = append(stillActive, a)

			default:
				winner, loser := resolveOverlap(a, cur, opts.Merge.Epsilon)
				loser.ignored = true
				loser.reason = phitype.ReasonLostOverlap
				if winner == a {
					stillActive = append(stillActive, a)
				}
			}
		}
		frontier = stillActive
		if !cur.ignored {
			frontier = append(frontier, cur)
		}
		survivors = append(survivors, cur)
	}

	// Step 5: Finalize — collect surviving spans as applied, sort by start.
	var applied []phitype.Span
	seen := make(map[*candidateState]bool)
	for _, s := range survivors {
		if seen[s] {
			continue
		}
		seen[s] = true
		if s.ignored {
			dropped = append(dropped, DropRecord{s.span, s.reason})
			continue
		}
		span := phitype.Span{
			CandidateSpan:       s.span,
			Applied:             true,
			DisambiguationScore: s.score,
		}
		applied = append(applied, span)
	}
	sort.SliceStable(applied, func(i, j int) bool { return applied[i].Start < applied[j].Start })

	if opts.Debug {
		if err := checkInvariants(applied, dropped); err != nil {
			panic(err) // debug mode: invariant violations are fatal, per spec.md §4.6
		}
	}

	// Step 6: Emit.
	return Result{Applied: applied, Dropped: dropped}
}

// resolveOverlap returns (winner, loser) between two active candidates per
// spec.md §4.6's tie-break chain: higher disambiguationScore; within
// epsilon, longer span; on tie, higher priority.
func resolveOverlap(a, b *candidateState, epsilon float64) (winner, loser *candidateState) {
	diff := a.score - b.score
	if diff > epsilon {
		return a, b
	}
	if diff < -epsilon {
		return b, a
	}
	lenA := a.span.End - a.span.Start
	lenB := b.span.End - b.span.Start
	if lenA != lenB {
		if lenA > lenB {
			return a, b
		}
		return b, a
	}
	if a.span.Priority != b.span.Priority {
		if a.span.Priority > b.span.Priority {
			return a, b
		}
		return b, a
	}
	return a, b
}

func mergeSpans(a, b phitype.CandidateSpan, score float64) phitype.CandidateSpan {
	start, end := a.Start, a.End
	if b.Start < start {
		start = b.Start
	}
	if b.End > end {
		end = b.End
	}
	conf := a.Confidence
	if b.Confidence > conf {
		conf = b.Confidence
	}
	merged := a
	merged.Start, merged.End = start, end
	merged.Confidence = conf
	return merged
}

// checkInvariants enforces spec.md §4.6's debug-mode invariants: applied
// spans pairwise non-overlapping, start < end, and every dropped candidate
// carries a nonempty reason.
func checkInvariants(applied []phitype.Span, dropped []DropRecord) error {
	for i, s := range applied {
		if s.Start >= s.End {
			return fmt.Errorf("invariant violation: span %d has start >= end (%d,%d)", i, s.Start, s.End)
		}
		if i > 0 && applied[i-1].End > s.Start {
			return fmt.Errorf("invariant violation: applied spans %d and %d overlap", i-1, i)
		}
	}
	for i, d := range dropped {
		if d.Reason == "" {
			return fmt.Errorf("invariant violation: dropped candidate %d has no reason", i)
		}
	}
	return nil
}
