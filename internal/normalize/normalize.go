// Package normalize implements the NormalizationLayer (spec.md §4.1): it
// turns raw input text into a canonical form pattern detectors can rely on,
// while preserving a reversible offset map back to the raw document.
//
// Document units (spec.md §3, §9 Open Questions) are fixed at build time to
// Unicode code points, not UTF-16 units or bytes: every offset produced or
// consumed anywhere in this module — and by every package downstream of it —
// counts runes. This also satisfies the ReplacementApplier's "never split a
// code point" invariant for free, since a rune index can never land inside a
// multi-byte encoding.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Signals summarizes what normalization had to do to the document. It is
// returned on Result only: the ContextAnalyzer's chaos score does not read
// it, and the engine's audit report does not record it.
type Signals struct {
	HomoglyphSubstitutions int
	InvisiblesStripped     int
	SentinelReplacements   int // malformed input replaced with U+FFFD
	MixedScript            bool
	SuspiciousDensity      float64 // (homoglyphs+invisibles+sentinels) / len(raw runes)
}

// Result is the output of Normalize.
type Result struct {
	Canonical []rune
	Signals   Signals

	// rawOf[i] is the raw-document rune index that canonical rune i maps to.
	// Monotone non-decreasing, order-preserving, total.
	rawOf []int
	rawLen int
}

// MapToRaw maps a canonical rune offset back to a raw rune offset. i may be
// equal to len(Canonical) (the document's end position); all other values
// must be in [0, len(Canonical)].
func (r Result) MapToRaw(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(r.rawOf) {
		return r.rawLen
	}
	return r.rawOf[i]
}

// homoglyphTable maps lookalike Cyrillic/Greek code points to the Latin
// letter they visually impersonate. This is a fixed data table: no library
// in the reference corpus ships a homoglyph table, so it is maintained here
// by hand (see DESIGN.md).
var homoglyphTable = map[rune]rune{
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O',
	'Р': 'P', 'С': 'C', 'Т': 'T', 'У': 'Y', 'Х': 'X', 'а': 'a', 'е': 'e',
	'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x', 'ѕ': 's', 'і': 'i',
	'ј': 'j', 'ԁ': 'd', 'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H',
	'Ι': 'I', 'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T',
	'Υ': 'Y', 'Χ': 'X', 'α': 'a', 'ο': 'o',
}

// invisibleChars are zero-width/formatting code points stripped from the
// canonical text entirely (they contribute no visible content and hide
// detection boundaries if left in place).
var invisibleChars = map[rune]bool{
	'​': true, // zero-width space
	'‌': true, // zero-width non-joiner
	'‍': true, // zero-width joiner
	'﻿': true, // BOM / zero-width no-break space
	'­': true, // soft hyphen
	'‎': true, // left-to-right mark
	'‏': true, // right-to-left mark
	'⁠': true, // word joiner
	'؜': true, // Arabic letter mark
}

const sentinelRune = '�'

// Normalize runs the four-step pipeline from spec.md §4.1 (compatibility
// composition, homoglyph folding, invisible stripping; OCR substitution is
// NOT applied here — it is opt-in per pattern family via ApplyOCR, since
// spec.md §9 resolves the "whole-document vs per-family" open question in
// favor of per-family).
func Normalize(raw string) Result {
	rawRunes := []rune(strings.Map(sentinelizeInvalid, raw))
	sentinelCount := 0
	for _, rn := range rawRunes {
		if rn == sentinelRune {
			sentinelCount++
		}
	}

	// Step 1: Unicode compatibility composition (NFKC), one cluster (a base
	// rune plus any combining marks that attach to it) at a time, so the
	// offset map can record each cluster's own raw-index delta instead of a
	// document-wide ratio. A cluster is the unit NFKC actually rewrites in
	// place — composing "e" + combining-acute into "é" only ever touches
	// that one cluster — so composing cluster-by-cluster and stamping every
	// composed rune it yields with the cluster's own start index keeps any
	// rune-count change local to the cluster that caused it, instead of
	// skewing every offset after it.
	composed, rawOf := composeWithOffsets(rawRunes)

	canonical := make([]rune, 0, len(composed))
	finalRawOf := make([]int, 0, len(composed))
	homoglyphCount := 0
	invisibleCount := 0
	hasLatin, hasCyrillicOrGreek := false, false

	for i, rn := range composed {
		if invisibleChars[rn] {
			invisibleCount++
			continue // dropped: no canonical output, no offset entry
		}
		out := rn
		if mapped, ok := homoglyphTable[rn]; ok {
			out = mapped
			homoglyphCount++
			hasCyrillicOrGreek = true
		} else if isLatinLetter(rn) {
			hasLatin = true
		} else if isCyrillicOrGreek(rn) {
			hasCyrillicOrGreek = true
		}
		canonical = append(canonical, out)
		finalRawOf = append(finalRawOf, rawOf[i])
	}

	total := len(rawRunes)
	density := 0.0
	if total > 0 {
		density = float64(homoglyphCount+invisibleCount+sentinelCount) / float64(total)
	}

	return Result{
		Canonical: canonical,
		rawOf:     finalRawOf,
		rawLen:    len(rawRunes),
		Signals: Signals{
			HomoglyphSubstitutions: homoglyphCount,
			InvisiblesStripped:     invisibleCount,
			SentinelReplacements:   sentinelCount,
			MixedScript:            hasLatin && hasCyrillicOrGreek,
			SuspiciousDensity:      density,
		},
	}
}

// composeWithOffsets runs NFKC composition one grapheme cluster at a time —
// a base rune followed by every combining mark that attaches to it — and
// returns the composed rune sequence alongside a parallel rawOf array where
// rawOf[i] is the raw rune index of the cluster that produced composed[i].
// Every composed rune a cluster yields maps to that cluster's own start
// index: the map is monotone and total by construction, and a composition
// that changes rune count (merging or expanding within one cluster) only
// ever perturbs that cluster's own entries, never the ones before or after
// it.
func composeWithOffsets(raw []rune) (composed []rune, rawOf []int) {
	composed = make([]rune, 0, len(raw))
	rawOf = make([]int, 0, len(raw))

	i := 0
	for i < len(raw) {
		start := i
		i++
		for i < len(raw) && isCombiningMark(raw[i]) {
			i++
		}
		cluster := norm.NFKC.String(string(raw[start:i]))
		for _, rn := range cluster {
			composed = append(composed, rn)
			rawOf = append(rawOf, start)
		}
	}
	return composed, rawOf
}

// isCombiningMark reports whether r attaches to the preceding base rune
// rather than starting a new cluster of its own (Unicode general category
// M: nonspacing, spacing-combining, or enclosing marks).
func isCombiningMark(r rune) bool {
	return unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Me, r)
}

func sentinelizeInvalid(r rune) rune {
	if r == 0xFFFD {
		return r
	}
	if r == -1 { // not reached: strings.Map already passes invalid bytes as U+FFFD
		return sentinelRune
	}
	return r
}

func isLatinLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isCyrillicOrGreek(r rune) bool {
	return (r >= 0x0400 && r <= 0x04FF) || (r >= 0x0370 && r <= 0x03FF)
}

// --- Per-family OCR substitution (opt-in, spec.md §4.1 step 4) ---

// Family selects which OCR confusion table ApplyOCR applies.
type Family string

const (
	FamilyNumeric Family = "numeric" // letters that look like digits -> digits
	FamilyAlpha   Family = "alpha"   // digits that look like letters -> letters
)

var numericConfusions = map[rune]rune{
	'O': '0', 'o': '0', 'I': '1', 'l': '1', 'S': '5', 's': '5',
	'B': '8', 'Z': '2', 'z': '2', 'G': '6',
}

var alphaConfusions = map[rune]rune{
	'0': 'O', '1': 'I', '5': 'S', '8': 'B', '2': 'Z', '6': 'G',
}

// ApplyOCR returns a copy of runes with the given family's confusion table
// applied. Normalize never applies it to the document, and no detector in
// this module calls it.
func ApplyOCR(runes []rune, family Family) []rune {
	table := numericConfusions
	if family == FamilyAlpha {
		table = alphaConfusions
	}
	out := make([]rune, len(runes))
	for i, r := range runes {
		if mapped, ok := table[r]; ok {
			out[i] = mapped
		} else {
			out[i] = r
		}
	}
	return out
}

// sortedKeys returns m's keys in ascending order. Nothing in the package,
// tests included, calls it.
func sortedKeys(m map[rune]rune) []rune {
	out := make([]rune, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
