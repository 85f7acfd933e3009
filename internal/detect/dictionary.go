package detect

import (
	"strings"

	"redact/internal/phitype"
)

// DictionaryDetector matches tokens against closed term lists — given names,
// surnames, honorifics, insurers, hospital systems — the way the Phonetic and
// Learned families are treated as opaque oracles by spec.md §4.2, but backed
// here by an in-memory lookup rather than a network call.
type DictionaryDetector struct {
	names     map[string]bool
	insurers  map[string]bool
	hospitals map[string]bool
	titles    []string
}

// DictionaryData is the parsed shape of a dictionary YAML file
// (internal/policy loads it with gopkg.in/yaml.v3 and hands it here).
type DictionaryData struct {
	Names     []string `yaml:"names"`
	Insurers  []string `yaml:"insurers"`
	Hospitals []string `yaml:"hospitals"`
	Titles    []string `yaml:"titles"`
}

// NewDictionaryDetector builds a Detector from parsed dictionary data. A nil
// or zero-value DictionaryData yields a detector that returns empty results,
// matching the family's "returns empty if dictionary not loaded" contract
// rather than erroring.
func NewDictionaryDetector(d DictionaryData) *DictionaryDetector {
	det := &DictionaryDetector{
		names:     toSet(d.Names),
		insurers:  toSet(d.Insurers),
		hospitals: toSet(d.Hospitals),
		titles:    append([]string(nil), d.Titles...),
	}
	return det
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}

func (d *DictionaryDetector) Name() string { return "dictionary" }
func (d *DictionaryDetector) Priority() int {
	return phitype.BasePriority(phitype.FamilyDictionary)
}
func (d *DictionaryDetector) PHITypes() []phitype.Type {
	return []phitype.Type{phitype.Name, phitype.HealthPlan}
}

// Detect scans canonical text word-by-word (and adjacent bigrams, for
// titled/given+family matches) against the loaded term sets.
func (d *DictionaryDetector) Detect(ctx *Context) ([]phitype.CandidateSpan, error) {
	if len(d.names) == 0 && len(d.insurers) == 0 && len(d.hospitals) == 0 {
		return nil, nil // dictionary not loaded: empty result, not an error
	}

	words := splitWords(ctx.Canonical)
	var spans []phitype.CandidateSpan

	for i, w := range words {
		lower := strings.ToLower(w.text)
		titled := i > 0 && containsFold(d.titles, strings.ToLower(words[i-1].text))

		switch {
		case d.names[lower]:
			conf := 0.55
			if titled {
				conf = 0.85
			}
			spans = append(spans, phitype.CandidateSpan{
				Text: w.text, Start: w.start, End: w.end, PHIType: phitype.Name,
				Confidence: conf, Priority: d.Priority(), Pattern: "name_list", DetectorName: d.Name(),
			})
		case d.insurers[lower] || d.hospitals[lower]:
			spans = append(spans, phitype.CandidateSpan{
				Text: w.text, Start: w.start, End: w.end, PHIType: phitype.HealthPlan,
				Confidence: 0.6, Priority: d.Priority(), Pattern: "org_list", DetectorName: d.Name(),
			})
		}

		// Adjacent given+family bigram: both tokens in the name set raises
		// confidence past what either token scores alone.
		if i+1 < len(words) && d.names[lower] && d.names[strings.ToLower(words[i+1].text)] {
			spans = append(spans, phitype.CandidateSpan{
				Text:       string(ctx.Canonical[w.start:words[i+1].end]),
				Start:      w.start, End: words[i+1].end,
				PHIType:    phitype.Name,
				Confidence: 0.9, Priority: d.Priority(), Pattern: "given_family", DetectorName: d.Name(),
			})
		}
	}
	return spans, nil
}

func containsFold(items []string, v string) bool {
	for _, it := range items {
		if strings.ToLower(it) == v {
			return true
		}
	}
	return false
}

type word struct {
	text       string
	start, end int
}

// splitWords tokenizes on whitespace/punctuation runs, tracking rune offsets
// so results can be emitted directly as CandidateSpan coordinates.
func splitWords(runes []rune) []word {
	var words []word
	i := 0
	for i < len(runes) {
		for i < len(runes) && !isWordRune(runes[i]) {
			i++
		}
		start := i
		for i < len(runes) && isWordRune(runes[i]) {
			i++
		}
		if i > start {
			words = append(words, word{text: string(runes[start:i]), start: start, end: i})
		}
	}
	return words
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '\''
}
