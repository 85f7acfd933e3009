package context

import (
	"testing"

	"redact/internal/phitype"
)

func TestAnalyzeDetectsDocumentType(t *testing.T) {
	text := []rune("DISCHARGE SUMMARY\n\nDischarge diagnosis: pneumonia. Patient discharged home in stable condition.")
	sig := Analyze(text)
	if sig.DocumentType != phitype.DocDischargeSummary {
		t.Errorf("expected discharge_summary, got %s", sig.DocumentType)
	}
}

func TestAnalyzeSpecialtyRequiresMinimumConfidence(t *testing.T) {
	text := []rune("Patient seen for routine follow-up. No acute complaints.")
	sig := Analyze(text)
	if sig.Specialty != phitype.SpecUnknown {
		t.Errorf("expected unknown specialty for generic text, got %s", sig.Specialty)
	}

	cardiac := []rune("Patient with reduced ejection fraction, coronary artery disease, referred for echocardiogram.")
	sig2 := Analyze(cardiac)
	if sig2.Specialty != phitype.SpecCardiology {
		t.Errorf("expected cardiology, got %s", sig2.Specialty)
	}
}

func TestContextStrengthNearFieldLabel(t *testing.T) {
	text := []rune("Patient: John Smith\nDOB: 01/02/1970")
	sig := Analyze(text)
	// offset of "John" is right after "Patient: "
	strength := sig.ContextStrength(9)
	if strength != phitype.StrengthStrong {
		t.Errorf("expected STRONG near a field label, got %s", strength)
	}
}

func TestContextStrengthFarFromAnyLabel(t *testing.T) {
	text := []rune("Patient: John Smith\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\nUnrelated trailing text far away")
	sig := Analyze(text)
	strength := sig.ContextStrength(len(text) - 1)
	if strength == phitype.StrengthStrong {
		t.Error("expected weaker context strength far from any field label")
	}
}

func TestChaosScoreHigherForNoisyText(t *testing.T) {
	clean := []rune("The patient reports mild discomfort in the left shoulder.")
	noisy := []rune("Th3 p4t!3nt r3p0rt$ m!ld d!$c0mf0rt ... ### @@@ !!!")
	sigClean := Analyze(clean)
	sigNoisy := Analyze(noisy)
	if sigNoisy.ChaosScore <= sigClean.ChaosScore {
		t.Errorf("expected noisy text to score higher chaos: clean=%.3f noisy=%.3f", sigClean.ChaosScore, sigNoisy.ChaosScore)
	}
}

func TestIsStructureWord(t *testing.T) {
	sig := Analyze([]rune("anything"))
	if !sig.IsStructureWord("Patient") {
		t.Error("expected 'Patient' to be a recognized structure word (case-insensitive)")
	}
	if sig.IsStructureWord("myocardial") {
		t.Error("did not expect 'myocardial' to be a structure word")
	}
}

func TestWindowIncludesSurroundingTokens(t *testing.T) {
	text := []rune("diagnosed with Wilson's disease today")
	start := len([]rune("diagnosed with "))
	end := start + len([]rune("Wilson's"))
	if string(text[start:end]) != "Wilson's" {
		t.Fatalf("test fixture offsets wrong: got %q", string(text[start:end]))
	}

	window := Window(text, start, end)
	want := []string{"diagnosed", "with", "Wilson's", "disease", "today"}
	if len(window) != len(want) {
		t.Fatalf("expected window %v, got %v", want, window)
	}
	for i := range want {
		if window[i] != want[i] {
			t.Errorf("expected window %v, got %v", want, window)
			break
		}
	}
}

func TestWindowIncludesPersonIndicatorTitle(t *testing.T) {
	text := []rune("Dr. Wilson examined the patient")
	start := len([]rune("Dr. "))
	end := start + len([]rune("Wilson"))

	window := Window(text, start, end)
	want := []string{"Dr.", "Wilson", "examined", "the"}
	if len(window) != len(want) {
		t.Fatalf("expected window %v, got %v", want, window)
	}
	for i := range want {
		if window[i] != want[i] {
			t.Errorf("expected window %v, got %v", want, window)
			break
		}
	}
}

func TestWindowClampsAtDocumentBoundaries(t *testing.T) {
	text := []rune("Wilson")
	window := Window(text, 0, len(text))
	if len(window) != 1 || window[0] != "Wilson" {
		t.Errorf("expected a single-token window at document start/end, got %v", window)
	}
}
