// Package whitelist implements the Whitelist / Post-Filter (spec.md §4.5):
// a categorized term bank that vetoes or downranks candidates matching known
// non-PHI clinical vocabulary.
package whitelist

import (
	"regexp"
	"strings"

	"redact/internal/phitype"
)

// Bank holds the categorized term sets. Fields are loaded from YAML by
// internal/policy; a zero-value Bank rejects nothing (every Check call
// returns Verdict{Whitelisted: false}), matching the "optional, absent means
// permissive" posture the rest of the policy layer uses.
type Bank struct {
	Eponyms      map[string]bool
	Conditions   map[string]bool
	Medications  map[string]bool
	Procedures   map[string]bool
	Anatomical   map[string]bool
	Acronyms     map[string]bool
	Structure    map[string]bool
	FieldLabels  map[string]bool
	Insurers     map[string]bool
	Hospitals    map[string]bool
	Geographic   map[string]bool
	Titles       []string
	Suffixes     []string
	NeverName    map[string]bool
	DiseaseWords []string
}

// Data is the parsed YAML shape internal/policy loads and converts into a
// Bank via NewBank.
type Data struct {
	Eponyms      []string `yaml:"eponyms"`
	Conditions   []string `yaml:"conditions"`
	Medications  []string `yaml:"medications"`
	Procedures   []string `yaml:"procedures"`
	Anatomical   []string `yaml:"anatomical"`
	Acronyms     []string `yaml:"acronyms"`
	Structure    []string `yaml:"structure"`
	FieldLabels  []string `yaml:"field_labels"`
	Insurers     []string `yaml:"insurers"`
	Hospitals    []string `yaml:"hospitals"`
	Geographic   []string `yaml:"geographic"`
	Titles       []string `yaml:"titles"`
	Suffixes     []string `yaml:"suffixes"`
	NeverName    []string `yaml:"never_name"`
	DiseaseWords []string `yaml:"disease_words"`
}

// NewBank builds a Bank from parsed YAML data.
func NewBank(d Data) *Bank {
	return &Bank{
		Eponyms:      toSet(d.Eponyms),
		Conditions:   toSet(d.Conditions),
		Medications:  toSet(d.Medications),
		Procedures:   toSet(d.Procedures),
		Anatomical:   toSet(d.Anatomical),
		Acronyms:     toSet(d.Acronyms),
		Structure:    toSet(d.Structure),
		FieldLabels:  toSet(d.FieldLabels),
		Insurers:     toSet(d.Insurers),
		Hospitals:    toSet(d.Hospitals),
		Geographic:   toSet(d.Geographic),
		Titles:       d.Titles,
		Suffixes:     d.Suffixes,
		NeverName:    toSet(d.NeverName),
		DiseaseWords: d.DiseaseWords,
	}
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}

// Verdict is the result of checking one candidate against the bank.
type Verdict struct {
	Whitelisted bool
	Reason      phitype.DropReason
	Penalty     float64 // [0,1], applied to confidence even when not whitelisted
}

var streetSuffixRe = regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z\s]+(Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`)

var possessiveRe = regexp.MustCompile(`'s\b`)

// Check applies spec.md §4.5's rule chain for one candidate: pattern-bypass
// first, then person-indicator override, then street-address veto, then
// whitelist-set membership, finally a softer confidence penalty for
// borderline categories like geographic terms.
func (b *Bank) Check(text string, t phitype.Type, window []string) Verdict {
	if b == nil {
		return Verdict{}
	}

	// Pattern-matched PHI types bypass structural-word whitelist entirely.
	if phitype.PatternBypass[t] {
		return Verdict{}
	}

	lower := strings.ToLower(strings.TrimSpace(text))

	if b.hasPersonIndicator(window) {
		// Title/honorific/suffix present: whitelist is overridden, but a
		// disease-eponym with a possessive form still wins (e.g. neither
		// "Dr." nor a possessive should both appear in practice, but the
		// eponym check takes precedence when it does).
		if b.isEponymDisease(lower, window, text) {
			return Verdict{Whitelisted: true, Reason: phitype.ReasonWhitelisted}
		}
		return Verdict{}
	}

	if t == phitype.Address && streetSuffixRe.MatchString(text) {
		return Verdict{} // street-address heuristic vetoes whitelist rejection
	}

	if b.isEponymDisease(lower, window, text) {
		return Verdict{Whitelisted: true, Reason: phitype.ReasonWhitelisted}
	}

	if b.NeverName[lower] || b.Conditions[lower] || b.Medications[lower] ||
		b.Procedures[lower] || b.Anatomical[lower] || b.Acronyms[lower] ||
		b.Structure[lower] || b.FieldLabels[lower] {
		return Verdict{Whitelisted: true, Reason: phitype.ReasonWhitelisted}
	}

	penalty := 0.0
	if b.Geographic[lower] {
		penalty = 0.35
	}
	if b.Insurers[lower] || b.Hospitals[lower] {
		penalty = 0.2
	}
	return Verdict{Penalty: penalty}
}

// isEponymDisease implements the "Wilson alone is ambiguous; Wilson's
// disease is whitelisted" rule: an eponym term whitelists only with either a
// nearby disease-indicator word or a possessive form attached to it.
func (b *Bank) isEponymDisease(lower string, window []string, rawText string) bool {
	base := strings.TrimSuffix(lower, "'s")
	if !b.Eponyms[lower] && !b.Eponyms[base] {
		return false
	}
	for _, w := range window {
		if possessiveRe.MatchString(w) && strings.EqualFold(strings.TrimSuffix(w, "'s"), rawText) {
			return true
		}
		wl := strings.ToLower(w)
		for _, d := range b.DiseaseWords {
			if wl == strings.ToLower(d) {
				return true
			}
		}
	}
	return possessiveRe.MatchString(rawText)
}

// hasPersonIndicator reports whether the candidate's neighboring window
// carries a title, honorific, or suffix that marks this as a person
// reference rather than the whitelisted common sense of the word.
func (b *Bank) hasPersonIndicator(window []string) bool {
	for _, w := range window {
		wl := strings.ToLower(strings.TrimRight(w, ".,"))
		for _, title := range b.Titles {
			if wl == strings.ToLower(strings.TrimRight(title, ".")) {
				return true
			}
		}
		for _, suffix := range b.Suffixes {
			if wl == strings.ToLower(strings.TrimRight(suffix, ".")) {
				return true
			}
		}
	}
	return false
}
