package detect

import (
	"regexp"

	"redact/internal/phitype"
)

// patternSpec is the teacher's pattern{re, piiType, confidence} struct,
// generalized from a fixed PIIType enum to the full phitype.Type closed
// enumeration and extended with a name for provenance in the audit log.
type patternSpec struct {
	name       string
	expr       string
	phiType    phitype.Type
	confidence float64
}

// PatternDetector runs a fixed table of compiled regexes over the canonical
// text, the way the teacher's Anonymizer.compilePatterns/AnonymizeText did,
// generalized to emit CandidateSpan instead of tokenizing inline.
type PatternDetector struct {
	compiled []compiledPattern
}

type compiledPattern struct {
	name       string
	re         *regexp.Regexp
	phiType    phitype.Type
	confidence float64
}

// defaultPatternSpecs mirrors the teacher's confidence conventions (Presidio
// / CHPDA bands: 0.90+ highly specific, 0.70-0.89 moderately specific, below
// 0.70 broad with real false-positive risk) extended across the closed PHI
// enumeration spec.md §3 requires pattern coverage for.
var defaultPatternSpecs = []patternSpec{
	{"email", `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, phitype.Email, 0.95},
	{"ssn", `\b(?:\d{3}-\d{2}-\d{4}|\d{9})\b`, phitype.SSN, 0.85},
	{"credit_card", `\b(?:\d{4}[\-\s]?){3}\d{4}\b`, phitype.CreditCard, 0.85},
	{"npi", `\b[12]\d{9}\b`, phitype.NPI, 0.55},
	{"mrn", `(?i)\bMRN[\s:#-]*([A-Z0-9]{5,12})\b`, phitype.MRN, 0.80},
	{"address", `(?i)\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`, phitype.Address, 0.75},
	{"ipv6", `(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}` +
		`|(?:[0-9a-fA-F]{1,4}:){1,7}:` +
		`|(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}` +
		`|(?:[0-9a-fA-F]{1,4}:){1,5}(?::[0-9a-fA-F]{1,4}){1,2}` +
		`|(?:[0-9a-fA-F]{1,4}:){1,4}(?::[0-9a-fA-F]{1,4}){1,3}` +
		`|(?:[0-9a-fA-F]{1,4}:){1,3}(?::[0-9a-fA-F]{1,4}){1,4}` +
		`|(?:[0-9a-fA-F]{1,4}:){1,2}(?::[0-9a-fA-F]{1,4}){1,5}` +
		`|[0-9a-fA-F]{1,4}:(?::[0-9a-fA-F]{1,4}){1,6}` +
		`|:(?::[0-9a-fA-F]{1,4}){1,7}` +
		`|::`, phitype.IP, 0.85},
	{"ipv4", `\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`, phitype.IP, 0.70},
	{"url", `(?i)\bhttps?://[^\s]+`, phitype.URL, 0.90},
	{"phone", `(\+?1?[\-.\s]?)?\(?([0-9]{3})\)?[\-.\s]?([0-9]{3})[\-.\s]?([0-9]{4})`, phitype.Phone, 0.65},
	{"fax", `(?i)fax[\s:]*(\+?1?[\-.\s]?)?\(?([0-9]{3})\)?[\-.\s]?([0-9]{3})[\-.\s]?([0-9]{4})`, phitype.Fax, 0.80},
	{"zip", `\b\d{5}(?:-\d{4})?\b`, phitype.ZIP, 0.40},
	{"date", `\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2})\b`, phitype.Date, 0.75},
	{"health_plan", `(?i)\b(?:member|plan)\s*(?:id|#)?[\s:]*([A-Z0-9]{6,15})\b`, phitype.HealthPlan, 0.55},
	{"vehicle_plate", `\b[A-Z]{1,3}[\s-]?\d{3,5}\b`, phitype.Vehicle, 0.30},
	{"device_udi", `(?i)\bUDI[\s:#-]*([A-Z0-9()\-]{8,40})\b`, phitype.Device, 0.60},
}

// NewPatternDetector compiles the default pattern table (or specs, if
// provided, to let policy override/extend it) into a Detector.
func NewPatternDetector(specs []patternSpec) *PatternDetector {
	if specs == nil {
		specs = defaultPatternSpecs
	}
	d := &PatternDetector{}
	for _, s := range specs {
		re, err := regexp.Compile(s.expr)
		if err != nil {
			continue // spec.md §4.2: pattern family never throws on refusal
		}
		d.compiled = append(d.compiled, compiledPattern{s.name, re, s.phiType, s.confidence})
	}
	return d
}

func (d *PatternDetector) Name() string     { return "pattern" }
func (d *PatternDetector) Priority() int     { return phitype.BasePriority(phitype.FamilyPattern) }
func (d *PatternDetector) PHITypes() []phitype.Type {
	seen := map[phitype.Type]bool{}
	var out []phitype.Type
	for _, c := range d.compiled {
		if !seen[c.phiType] {
			seen[c.phiType] = true
			out = append(out, c.phiType)
		}
	}
	return out
}

func (d *PatternDetector) Detect(ctx *Context) ([]phitype.CandidateSpan, error) {
	text := string(ctx.Canonical)
	byteToRune := buildByteToRuneIndex(ctx.Canonical)

	var spans []phitype.CandidateSpan
	for _, c := range d.compiled {
		locs := c.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			start, end := byteToRune[loc[0]], byteToRune[loc[1]]
			spans = append(spans, phitype.CandidateSpan{
				Text:         string(ctx.Canonical[start:end]),
				Start:        start,
				End:          end,
				PHIType:      c.phiType,
				Confidence:   c.confidence,
				Priority:     d.Priority(),
				Pattern:      c.name,
				DetectorName: d.Name(),
			})
		}
	}
	return spans, nil
}

// buildByteToRuneIndex maps every byte offset that can appear as a regexp
// match boundary (i.e. every rune's starting byte, plus one past the end) to
// its rune index, since regexp operates on the UTF-8 byte encoding of text
// but every CandidateSpan offset in this system counts runes.
func buildByteToRuneIndex(runes []rune) map[int]int {
	idx := make(map[int]int, len(runes)+1)
	b := 0
	for i, r := range runes {
		idx[b] = i
		b += runeLen(r)
	}
	idx[b] = len(runes)
	return idx
}

func runeLen(r rune) int {
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
