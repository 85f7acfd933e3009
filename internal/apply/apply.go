// Package apply implements the ReplacementApplier (spec.md §4.7): the final
// pipeline stage that rewrites a document given the reconciler's ordered,
// non-overlapping span set.
package apply

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"redact/internal/phitype"
)

// ReplacementStyle is the global fallback style spec.md §3 attaches to
// Policy, used whenever a type has no explicit template.
type ReplacementStyle string

const (
	StyleBrackets  ReplacementStyle = "brackets"
	StyleAsterisks ReplacementStyle = "asterisks"
	StyleEmpty     ReplacementStyle = "empty"
	StyleToken     ReplacementStyle = "token"
)

// TypeConfig is one PHI type's entry in Policy: an explicit replacement
// template, if the type has been configured at all.
type TypeConfig struct {
	Template   string
	Configured bool
}

// Policy is the replacement half of spec.md §3's Policy type: per-type
// templates, a global style fallback, and literal custom replacements.
type Policy struct {
	Style              ReplacementStyle
	Types              map[phitype.Type]TypeConfig
	CustomReplacements map[phitype.Type]string

	// DateShiftDays, when nonzero, replaces a date span with the same date
	// shifted by a pseudo-random offset in [-DateShiftDays, DateShiftDays]
	// days instead of the ordinary style/template replacement, so relative
	// date relationships within one document survive redaction. The offset
	// is derived deterministically from the document's own content, so the
	// same document always shifts the same way but different documents
	// don't share a guessable offset. 0 disables shifting.
	DateShiftDays int

	// AgeThreshold collapses an age span whose parsed numeric value exceeds
	// it into a single sentinel replacement, per the HIPAA Safe Harbor rule
	// for ages over 89. 0 means the HIPAA-standard default of 89, not
	// "disabled" — Safe Harbor age collapsing is always on.
	AgeThreshold int
}

// Warner is the narrow slice of internal/logger.Logger this package needs,
// kept as an interface so apply never imports logger directly.
type Warner interface {
	Warnf(action, format string, args ...any)
}

// OffsetMapping records where one applied span's replacement landed in the
// output, for side-by-side diff rendering (spec.md §4.7).
type OffsetMapping struct {
	OriginalStart, OriginalEnd int
	OutputStart, OutputEnd     int
}

// AppliedRecord is one span's audit trace entry: what was written in its
// place, and whether it was emitted verbatim for lack of a configured
// replacement (spec.md §4.7's "unreplaced" marker).
type AppliedRecord struct {
	Span       phitype.Span
	Output     string
	Unreplaced bool
}

// Result is the applier's full output.
type Result struct {
	Text    string
	Mapping []OffsetMapping
	Trace   []AppliedRecord
}

// Apply runs the single left-to-right pass described in spec.md §4.7:
// copying unchanged rune slices and writing each span's replacement in
// place. spans must already be sorted ascending by Start and mutually
// non-overlapping (the reconciler's contract); a violation is fatal when
// debug is true and otherwise coalesced (offending spans dropped) with a
// warning through warn, which may be nil.
func Apply(canonical []rune, spans []phitype.Span, policy Policy, debug bool, warn Warner) (Result, error) {
	clean, violated := dropOverlapping(spans)
	if violated {
		err := phitype.NewError(phitype.KindInvariantViolation, "apply.Apply",
			"applied spans are not sorted or overlap", nil)
		if debug {
			panic(err)
		}
		if warn != nil {
			warn.Warnf("invariant", "%v: coalescing by dropping the offending span(s)", err)
		}
	}

	var out []rune
	var mapping []OffsetMapping
	var trace []AppliedRecord

	pos := 0    // cursor into canonical, in code points
	outPos := 0 // cursor into out, in code points
	shiftDays := dateShiftOffset(canonical, policy.DateShiftDays)

	for _, s := range clean {
		out = append(out, canonical[pos:s.Start]...)
		outPos += s.Start - pos

		text, tokenID, unreplaced := policy.replacementFor(s, shiftDays)
		replRunes := []rune(text)
		out = append(out, replRunes...)

		mapping = append(mapping, OffsetMapping{
			OriginalStart: s.Start, OriginalEnd: s.End,
			OutputStart: outPos, OutputEnd: outPos + len(replRunes),
		})
		outPos += len(replRunes)

		s.Replacement = text
		s.TokenID = tokenID
		s.IgnoreReason = ""
		trace = append(trace, AppliedRecord{Span: s, Output: text, Unreplaced: unreplaced})

		pos = s.End
	}
	out = append(out, canonical[pos:]...)

	return Result{Text: string(out), Mapping: mapping, Trace: trace}, nil
}

// replacementFor resolves one span's final replacement text per spec.md
// §4.7: a literal custom replacement wins outright, then an explicit
// per-type template, then the Safe-Harbor age/date-shift handling for those
// two types specifically, then the global style, and finally — when the
// type has no configuration at all — the span is emitted verbatim and
// marked unreplaced.
func (p Policy) replacementFor(s phitype.Span, shiftDays int) (text, tokenID string, unreplaced bool) {
	if custom, ok := p.CustomReplacements[s.PHIType]; ok {
		return substitute(custom, s), "", false
	}
	cfg, known := p.Types[s.PHIType]
	if known && cfg.Template != "" {
		return substitute(cfg.Template, s), "", false
	}

	if s.PHIType == phitype.Age {
		if text, ok := p.safeHarborAge(s.Text); ok {
			return text, "", false
		}
	}
	if s.PHIType == phitype.Date && p.DateShiftDays != 0 {
		if text, ok := shiftedDate(s.Text, shiftDays); ok {
			return text, "", false
		}
	}

	switch p.Style {
	case StyleEmpty:
		return "", "", false
	case StyleAsterisks:
		return strings.Repeat("*", utf8.RuneCountInString(s.Text)), "", false
	case StyleToken:
		id := uuid.NewString()
		return fmt.Sprintf("[%s:%s]", s.PHIType, id), id, false
	case StyleBrackets:
		return fmt.Sprintf("[%s]", s.PHIType), "", false
	default:
		if !known {
			return s.Text, "", true
		}
		return fmt.Sprintf("[%s]", s.PHIType), "", false
	}
}

// safeHarborAge collapses an age above the policy's threshold (89 if unset)
// to a sentinel, per 45 CFR 164.514(b)(2)(i)(A). ok is false when text isn't
// a bare integer, leaving the caller to fall back to the ordinary
// style/template replacement.
func (p Policy) safeHarborAge(text string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return "", false
	}
	threshold := p.AgeThreshold
	if threshold == 0 {
		threshold = 89
	}
	if n <= threshold {
		return "", false
	}
	return fmt.Sprintf("%d+", threshold+1), true
}

// dateLayouts are the date formats shiftedDate round-trips through; the
// first one that parses s.Text is also used to re-render the shifted date,
// so the replacement keeps the original's apparent format.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// shiftedDate re-renders text as the same calendar date shifted by
// shiftDays, preserving whichever layout it parsed under. ok is false when
// text doesn't match any recognized layout.
func shiftedDate(text string, shiftDays int) (string, bool) {
	trimmed := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		return t.AddDate(0, 0, shiftDays).Format(layout), true
	}
	return "", false
}

// dateShiftOffset derives a deterministic per-document offset in
// [-maxDays, maxDays] from the document's own canonical text, so every date
// span within one Apply call shifts by the same amount. maxDays == 0
// disables shifting (returns 0, which is also a no-op shift).
func dateShiftOffset(canonical []rune, maxDays int) int {
	if maxDays == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(canonical)))
	span := int64(2*maxDays + 1)
	return int(int64(h.Sum64()%uint64(span)) - int64(maxDays))
}

func substitute(template string, s phitype.Span) string {
	out := strings.ReplaceAll(template, "{type}", string(s.PHIType))
	out = strings.ReplaceAll(out, "{phiType}", string(s.PHIType))
	return out
}

// dropOverlapping makes one greedy pass over spans in input order, keeping
// each span whose Start is at or after the previous survivor's End and
// dropping the rest; the result is not necessarily the largest
// non-overlapping subsequence. Returns true if it had to drop anything.
func dropOverlapping(spans []phitype.Span) ([]phitype.Span, bool) {
	clean := make([]phitype.Span, 0, len(spans))
	violated := false
	lastEnd := -1
	for _, s := range spans {
		if s.Start < lastEnd {
			violated = true
			continue
		}
		clean = append(clean, s)
		lastEnd = s.End
	}
	return clean, violated
}
