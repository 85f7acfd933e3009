package detect

import (
	"testing"

	"redact/internal/phitype"
)

func TestPatternDetectorFindsEmailAndSSN(t *testing.T) {
	d := NewPatternDetector(nil)
	text := []rune("Contact jane.doe@example.com, SSN 123-45-6789.")
	ctx := NewContext(text, text)

	spans, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawEmail, sawSSN bool
	for _, s := range spans {
		if s.PHIType == phitype.Email && string(text[s.Start:s.End]) == "jane.doe@example.com" {
			sawEmail = true
		}
		if s.PHIType == phitype.SSN {
			sawSSN = true
		}
	}
	if !sawEmail {
		t.Error("expected an email candidate span")
	}
	if !sawSSN {
		t.Error("expected an SSN candidate span")
	}
}

func TestPatternDetectorOffsetsAreRuneIndices(t *testing.T) {
	d := NewPatternDetector(nil)
	text := []rune("😀 email: a@b.co")
	ctx := NewContext(text, text)
	spans, _ := d.Detect(ctx)
	if len(spans) == 0 {
		t.Fatal("expected a match")
	}
	s := spans[0]
	if string(text[s.Start:s.End]) != s.Text {
		t.Errorf("rune offsets [%d:%d] do not reproduce matched text %q", s.Start, s.End, s.Text)
	}
}

func TestDictionaryDetectorEmptyWhenUnloaded(t *testing.T) {
	d := NewDictionaryDetector(DictionaryData{})
	text := []rune("John Smith visited")
	ctx := NewContext(text, text)
	spans, err := d.Detect(ctx)
	if err != nil || spans != nil {
		t.Errorf("expected empty, nil result for unloaded dictionary, got %v, %v", spans, err)
	}
}

func TestDictionaryDetectorGivenFamilyBigram(t *testing.T) {
	d := NewDictionaryDetector(DictionaryData{Names: []string{"John", "Smith"}})
	text := []rune("John Smith was admitted")
	ctx := NewContext(text, text)
	spans, _ := d.Detect(ctx)
	foundBigram := false
	for _, s := range spans {
		if s.Pattern == "given_family" {
			foundBigram = true
			if string(text[s.Start:s.End]) != "John Smith" {
				t.Errorf("bigram span text mismatch: %q", string(text[s.Start:s.End]))
			}
		}
	}
	if !foundBigram {
		t.Error("expected a given_family bigram candidate")
	}
}

func TestSoundexBasic(t *testing.T) {
	cases := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A226",
	}
	for name, want := range cases {
		if got := soundex(name); got != want {
			t.Errorf("soundex(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestPhoneticDetectorSkipsExactMatch(t *testing.T) {
	d := NewPhoneticDetector([]string{"Robert"})
	text := []rune("Robert arrived")
	ctx := NewContext(text, text)
	spans, _ := d.Detect(ctx)
	for _, s := range spans {
		if s.Text == "Robert" {
			t.Error("exact match should not be re-flagged by the phonetic family")
		}
	}
}

func TestPhoneticDetectorFindsVariant(t *testing.T) {
	d := NewPhoneticDetector([]string{"Robert"})
	text := []rune("Patient Rupert signed the form")
	ctx := NewContext(text, text)
	spans, _ := d.Detect(ctx)
	if len(spans) == 0 {
		t.Fatal("expected a phonetic variant match for Rupert~Robert")
	}
}

func TestLearnedDetectorEmptyWithoutEndpoint(t *testing.T) {
	d := NewLearnedDetector("", 0)
	text := []rune("anything")
	ctx := NewContext(text, text)
	spans, err := d.Detect(ctx)
	if err != nil || spans != nil {
		t.Errorf("expected empty nil result with no endpoint, got %v, %v", spans, err)
	}
}

func TestRegistryDetectAllAggregatesAndIsolatesFailures(t *testing.T) {
	reg := NewRegistry(NewPatternDetector(nil), NewLearnedDetector("http://127.0.0.1:1/does-not-exist", 1))
	text := []rune("email a@b.com")
	ctx := NewContext(text, text)
	spans, errs := reg.DetectAll(ctx)
	if len(spans) == 0 {
		t.Error("expected the pattern detector's spans despite the learned detector failing")
	}
	if len(errs) == 0 {
		t.Error("expected the unreachable learned endpoint to surface a DetectorError")
	}
}

func TestContextMemoComputesOnce(t *testing.T) {
	ctx := NewContext([]rune("x"), []rune("x"))
	calls := 0
	compute := func() any { calls++; return 42 }
	ctx.Memo("k", compute)
	ctx.Memo("k", compute)
	if calls != 1 {
		t.Errorf("expected compute to run once, ran %d times", calls)
	}
}
