// Package context implements the ContextAnalyzer (spec.md §4.3): a
// once-per-document scan producing document-wide signals that
// internal/threshold and internal/whitelist consume.
//
// Named "context" rather than "analyzer" to mirror spec.md's own component
// name; callers alias the stdlib context package to avoid collision where
// both are imported.
package context

import (
	"regexp"
	"strings"

	"redact/internal/phitype"
)

// Signals is the ContextAnalyzer's output, attached to a detect.Context via
// SetSignals so every detector can read it, and stored under
// phitype.CandidateSpan.Window-adjacent data for audit purposes.
type Signals struct {
	DocumentType phitype.DocumentType
	Specialty    phitype.Specialty
	ChaosScore   float64

	fieldLabelRanges []offsetRange
	sectionHeaders   []offsetRange
	structureWords   map[string]bool
}

type offsetRange struct{ start, end int }

func (s Signals) ContextStrength(offset int) phitype.ContextStrength {
	for _, r := range s.fieldLabelRanges {
		if offset >= r.start-40 && offset <= r.end+5 {
			return phitype.StrengthStrong
		}
	}
	for _, r := range s.sectionHeaders {
		if offset >= r.start && offset < r.end+200 {
			return phitype.StrengthModerate
		}
	}
	return phitype.StrengthNone
}

func (s Signals) IsFieldLabel(offset int) bool {
	for _, r := range s.fieldLabelRanges {
		if offset >= r.start && offset < r.end {
			return true
		}
	}
	return false
}

func (s Signals) IsStructureWord(word string) bool {
	return s.structureWords[strings.ToLower(word)]
}

var fieldLabelRe = regexp.MustCompile(`(?i)\b(Patient|Name|DOB|Date of Birth|MRN|SSN|Address|Phone|Email|Insurance|Guarantor|Next of Kin|Provider|Physician)\s*:`)

var sectionHeaderRe = regexp.MustCompile(`(?im)^\s*(HISTORY OF PRESENT ILLNESS|CHIEF COMPLAINT|ASSESSMENT|PLAN|MEDICATIONS|ALLERGIES|VITALS|LABS|IMPRESSION|FINDINGS|DISCHARGE (?:INSTRUCTIONS|DIAGNOSIS)|REVIEW OF SYSTEMS)\s*:?\s*$`)

var docTypeKeywords = map[phitype.DocumentType][]string{
	phitype.DocAdmissionNote:     {"admission note", "admitted", "admission date"},
	phitype.DocDischargeSummary:  {"discharge summary", "discharge diagnosis", "discharged home"},
	phitype.DocLabReport:         {"lab report", "laboratory results", "reference range", "specimen"},
	phitype.DocRadiologyReport:   {"radiology report", "impression:", "findings:", "imaging study"},
	phitype.DocProgressNote:      {"progress note", "subjective", "objective", "assessment and plan"},
	phitype.DocPrescription:      {"prescription", "rx:", "sig:", "dispense as written"},
	phitype.DocOperativeReport:   {"operative report", "procedure performed", "postoperative diagnosis"},
	phitype.DocConsultationNote:  {"consultation note", "reason for consultation", "consulted for"},
	phitype.DocEmergencyNote:     {"emergency department", "triage", "ed course"},
	phitype.DocNursingAssessment: {"nursing assessment", "nursing note", "care plan"},
	phitype.DocRegistration:      {"registration form", "intake form", "guarantor information"},
}

var specialtyKeywords = map[phitype.Specialty][]string{
	phitype.SpecCardiology: {"cardiac", "ejection fraction", "myocardial", "coronary", "ecg", "echocardiogram"},
	phitype.SpecOncology:   {"oncology", "chemotherapy", "tumor", "metastatic", "carcinoma", "biopsy"},
	phitype.SpecRadiology:  {"radiograph", "ct scan", "mri", "ultrasound", "contrast"},
	phitype.SpecPsychiatry: {"psychiatric", "depression", "anxiety disorder", "mental status exam"},
	phitype.SpecEmergency:  {"trauma", "triage", "emergency department", "ed course"},
	phitype.SpecPediatrics: {"pediatric", "well-child", "immunization", "growth chart"},
	phitype.SpecObstetrics: {"obstetric", "gestational", "prenatal", "fundal height", "gravida"},
}

var structureWords = map[string]bool{
	"the": true, "and": true, "with": true, "for": true, "was": true, "were": true,
	"history": true, "present": true, "illness": true, "plan": true, "assessment": true,
	"section": true, "patient": true, "noted": true, "denies": true, "reports": true,
}

// Analyze runs the document-wide scan once per redact call.
func Analyze(canonical []rune) Signals {
	text := string(canonical)
	lower := strings.ToLower(text)

	sig := Signals{structureWords: structureWords}

	sig.DocumentType = classify(lower, docTypeKeywords, phitype.DocUnknown)
	sig.Specialty = classifySpecialty(lower)
	sig.ChaosScore = chaosScore(canonical)

	for _, loc := range fieldLabelRe.FindAllStringIndex(text, -1) {
		sig.fieldLabelRanges = append(sig.fieldLabelRanges, byteLocToRuneRange(canonical, loc))
	}
	for _, loc := range sectionHeaderRe.FindAllStringIndex(text, -1) {
		sig.sectionHeaders = append(sig.sectionHeaders, byteLocToRuneRange(canonical, loc))
	}

	return sig
}

func classify(lower string, table map[phitype.DocumentType][]string, fallback phitype.DocumentType) phitype.DocumentType {
	best := fallback
	bestScore := 0
	for dt, keywords := range table {
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			bestScore = score
			best = dt
		}
	}
	return best
}

// classifySpecialty requires a minimum keyword-hit confidence before
// committing to a specialty, per spec.md §4.3 ("requires a minimum
// confidence or yields unknown").
func classifySpecialty(lower string) phitype.Specialty {
	const minHits = 2
	best := phitype.SpecUnknown
	bestScore := 0
	for sp, keywords := range specialtyKeywords {
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			bestScore = score
			best = sp
		}
	}
	if bestScore < minHits {
		return phitype.SpecUnknown
	}
	return best
}

// chaosScore combines case irregularity, spacing anomalies and runs of
// unusual characters into [0,1], at document granularity. Digit-for-letter
// substitutions (the OCR confusions internal/normalize tabulates) are not
// counted.
func chaosScore(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	var caseFlips, spacingAnomalies, oddRuns int
	prevWasUpper := false
	prevWasSpace := true
	runLen := 0
	for _, r := range runes {
		isUpper := r >= 'A' && r <= 'Z'
		isLower := r >= 'a' && r <= 'z'
		isSpace := r == ' ' || r == '\t' || r == '\n'

		if (isUpper || isLower) && prevWasUpper != isUpper && prevWasUpper {
			caseFlips++
		}
		prevWasUpper = isUpper

		if isSpace && prevWasSpace {
			spacingAnomalies++
		}
		prevWasSpace = isSpace

		if !isUpper && !isLower && !isSpace && !(r >= '0' && r <= '9') && r != '.' && r != ',' && r != '-' {
			runLen++
			if runLen > 3 {
				oddRuns++
			}
		} else {
			runLen = 0
		}
	}
	total := float64(len(runes))
	score := (float64(caseFlips)*0.5 + float64(spacingAnomalies) + float64(oddRuns)*2) / total
	if score > 1 {
		score = 1
	}
	return score
}

var wordRe = regexp.MustCompile(`\S+`)

// windowRadius is how many whitespace-delimited tokens on each side of a
// candidate span internal/whitelist's person-indicator and eponym/disease
// rules get to look at (spec.md §4.5).
const windowRadius = 2

// Window returns the word tokens surrounding a candidate span [start,end) in
// canonical — every token the span itself overlaps, plus up to windowRadius
// tokens immediately before and after — in document order. This is the
// surrounding-context internal/whitelist.Bank.Check's window parameter
// expects: a title or suffix ("Dr.", "Jr.") in the window marks a person
// reference even when the candidate text alone is an ambiguous eponym, and a
// disease word or possessive in the window whitelists one.
func Window(canonical []rune, start, end int) []string {
	if len(canonical) == 0 {
		return nil
	}
	text := string(canonical)
	byteLocs := wordRe.FindAllStringIndex(text, -1)
	if len(byteLocs) == 0 {
		return nil
	}

	type tokSpan struct{ start, end int }
	tokens := make([]tokSpan, len(byteLocs))
	for i, loc := range byteLocs {
		r := byteLocToRuneRange(canonical, loc)
		tokens[i] = tokSpan{r.start, r.end}
	}

	firstOverlap, lastOverlap := -1, -1
	for i, tk := range tokens {
		if tk.end > start && tk.start < end {
			if firstOverlap == -1 {
				firstOverlap = i
			}
			lastOverlap = i
		}
	}
	if firstOverlap == -1 {
		return nil
	}

	lo := firstOverlap - windowRadius
	if lo < 0 {
		lo = 0
	}
	hi := lastOverlap + windowRadius
	if hi >= len(tokens) {
		hi = len(tokens) - 1
	}

	out := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, string(canonical[tokens[i].start:tokens[i].end]))
	}
	return out
}

func byteLocToRuneRange(runes []rune, loc []int) offsetRange {
	startRune, endRune := 0, 0
	b := 0
	for i, r := range runes {
		if b == loc[0] {
			startRune = i
		}
		if b == loc[1] {
			endRune = i
		}
		b += runeByteLen(r)
	}
	if loc[1] >= b {
		endRune = len(runes)
	}
	return offsetRange{startRune, endRune}
}

func runeByteLen(r rune) int {
	switch {
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	default:
		return 4
	}
}
