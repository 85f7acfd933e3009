package detect

import (
	"strings"

	"redact/internal/phitype"
)

// PhoneticDetector matches name variants that survive OCR corruption by
// comparing Soundex codes against the dictionary's name list, rather than
// exact string match — spec.md §4.2 treats the phonetic family as an opaque
// index lookup that "returns empty if index not initialized"; here the index
// is a precomputed code->canonical-name map built once at construction.
type PhoneticDetector struct {
	index map[string][]string // soundex code -> canonical names sharing it
}

// NewPhoneticDetector builds the Soundex index from a name list. An empty
// list yields a detector whose Detect always returns empty results.
func NewPhoneticDetector(names []string) *PhoneticDetector {
	idx := make(map[string][]string)
	for _, n := range names {
		code := soundex(n)
		if code == "" {
			continue
		}
		idx[code] = append(idx[code], n)
	}
	return &PhoneticDetector{index: idx}
}

func (d *PhoneticDetector) Name() string            { return "phonetic" }
func (d *PhoneticDetector) Priority() int            { return phitype.BasePriority(phitype.FamilyPhonetic) }
func (d *PhoneticDetector) PHITypes() []phitype.Type { return []phitype.Type{phitype.Name} }

func (d *PhoneticDetector) Detect(ctx *Context) ([]phitype.CandidateSpan, error) {
	if len(d.index) == 0 {
		return nil, nil
	}
	var spans []phitype.CandidateSpan
	for _, w := range splitWords(ctx.Canonical) {
		if len(w.text) < 3 {
			continue
		}
		code := soundex(w.text)
		matches, ok := d.index[code]
		if !ok {
			continue
		}
		exact := false
		for _, m := range matches {
			if strings.EqualFold(m, w.text) {
				exact = true
				break
			}
		}
		if exact {
			continue // exact match belongs to the dictionary family, not phonetic
		}
		spans = append(spans, phitype.CandidateSpan{
			Text: w.text, Start: w.start, End: w.end, PHIType: phitype.Name,
			Confidence: 0.45, Priority: d.Priority(), Pattern: "soundex:" + code, DetectorName: d.Name(),
		})
	}
	return spans, nil
}

// soundex computes a 4-character Soundex code (first letter kept,
// subsequent consonant groups coded, padded/truncated to length 4). H and W
// separate codes the way vowels do, so "Ashcraft" codes A226 rather than
// American Soundex's A261.
func soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	codes := map[byte]byte{
		'B': '1', 'F': '1', 'P': '1', 'V': '1',
		'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
		'D': '3', 'T': '3',
		'L': '4',
		'M': '5', 'N': '5',
		'R': '6',
	}
	var out strings.Builder
	first := s[0]
	if first < 'A' || first > 'Z' {
		return ""
	}
	out.WriteByte(first)
	lastCode := codes[first]
	for i := 1; i < len(s) && out.Len() < 4; i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			continue
		}
		code, ok := codes[c]
		if !ok {
			lastCode = 0
			continue
		}
		if code != lastCode {
			out.WriteByte(code)
		}
		lastCode = code
	}
	result := out.String()
	for len(result) < 4 {
		result += "0"
	}
	return result
}
