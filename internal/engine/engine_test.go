package engine

import (
	"strings"
	"testing"

	"redact/internal/apply"
	"redact/internal/detect"
	"redact/internal/phitype"
	"redact/internal/reconcile"
	"redact/internal/stream"
	"redact/internal/threshold"
	"redact/internal/whitelist"
)

func newTestRuntime() *Runtime {
	registry := detect.NewRegistry(detect.NewPatternDetector(nil))
	return NewRuntime(
		registry,
		whitelist.NewBank(whitelist.Data{}),
		threshold.NewEngine(nil, nil, 0),
		DefaultReconcilePolicy(),
		DefaultMergeRule(),
		apply.Policy{Style: apply.StyleBrackets},
		false,
		nil,
	)
}

func TestRedactReplacesSSNAndEmail(t *testing.T) {
	rt := newTestRuntime()

	res, err := rt.Redact("Patient SSN: 123-45-6789, email jane@example.com.", RedactOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(res.Text, "123-45-6789") {
		t.Errorf("expected SSN to be redacted, got %q", res.Text)
	}
	if strings.Contains(res.Text, "jane@example.com") {
		t.Errorf("expected email to be redacted, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "[ssn]") {
		t.Errorf("expected a bracketed ssn placeholder, got %q", res.Text)
	}
	if res.RedactionCount < 2 {
		t.Errorf("expected at least 2 redactions, got %d", res.RedactionCount)
	}
	if res.Breakdown[phitype.SSN] != 1 {
		t.Errorf("expected exactly 1 ssn in the breakdown, got %d", res.Breakdown[phitype.SSN])
	}
}

func TestRedactLeavesPlainTextUntouched(t *testing.T) {
	rt := newTestRuntime()

	text := "The patient reports mild discomfort and was advised to rest."
	res, err := rt.Redact(text, RedactOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != text {
		t.Errorf("expected no redactions to leave the text untouched, got %q", res.Text)
	}
	if res.RedactionCount != 0 {
		t.Errorf("expected zero redactions, got %d", res.RedactionCount)
	}
}

func TestRedactWithReportIncludesTrace(t *testing.T) {
	rt := newTestRuntime()

	res, err := rt.Redact("Contact: jane@example.com", RedactOptions{IncludeReport: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Report == nil {
		t.Fatal("expected a report when IncludeReport is set")
	}
	if len(res.Report.AppliedTrace) != 1 {
		t.Fatalf("expected exactly one applied span in the trace, got %d", len(res.Report.AppliedTrace))
	}
	if res.Report.AppliedTrace[0].Span.PHIType != phitype.Email {
		t.Errorf("expected the trace entry to be an email span, got %v", res.Report.AppliedTrace[0].Span.PHIType)
	}
}

func TestRedactReportClassifiesMaskedFields(t *testing.T) {
	rt := newTestRuntime()
	res, err := rt.Redact("Contact: jane@example.com", RedactOptions{IncludeReport: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Report.FieldsMasked) != 1 || res.Report.FieldsMasked[0] != string(phitype.Email) {
		t.Errorf("expected email in FieldsMasked, got %v", res.Report.FieldsMasked)
	}
	if len(res.Report.FieldsRemoved) != 0 {
		t.Errorf("expected no removed fields under bracket style, got %v", res.Report.FieldsRemoved)
	}
}

func TestRedactReportClassifiesRemovedFields(t *testing.T) {
	registry := detect.NewRegistry(detect.NewPatternDetector(nil))
	rt := NewRuntime(
		registry,
		whitelist.NewBank(whitelist.Data{}),
		threshold.NewEngine(nil, nil, 0),
		DefaultReconcilePolicy(),
		DefaultMergeRule(),
		apply.Policy{Style: apply.StyleEmpty},
		false,
		nil,
	)
	res, err := rt.Redact("Contact: jane@example.com", RedactOptions{IncludeReport: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Report.FieldsRemoved) != 1 || res.Report.FieldsRemoved[0] != string(phitype.Email) {
		t.Errorf("expected email in FieldsRemoved, got %v", res.Report.FieldsRemoved)
	}
	if len(res.Report.FieldsMasked) != 0 {
		t.Errorf("expected no masked fields under empty style, got %v", res.Report.FieldsMasked)
	}
}

func TestRedactWithoutReportLeavesItNil(t *testing.T) {
	rt := newTestRuntime()

	res, err := rt.Redact("jane@example.com", RedactOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Report != nil {
		t.Error("expected a nil report when IncludeReport is unset")
	}
}

func TestRedactWhitelistsNonPossessiveEponymDiseaseViaDetectedWindow(t *testing.T) {
	registry := detect.NewRegistry(detect.NewDictionaryDetector(detect.DictionaryData{
		Names: []string{"Parkinson"},
	}))
	bank := whitelist.NewBank(whitelist.Data{
		Eponyms:      []string{"Parkinson"},
		DiseaseWords: []string{"disease"},
	})
	rt := NewRuntime(
		registry,
		bank,
		threshold.NewEngine(map[phitype.Type]float64{phitype.Name: 0.3}, nil, 0),
		DefaultReconcilePolicy(),
		DefaultMergeRule(),
		apply.Policy{Style: apply.StyleBrackets},
		false,
		nil,
	)

	res, err := rt.Redact("Patient has Parkinson disease and is stable.", RedactOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Patient has Parkinson disease and is stable." {
		t.Errorf("expected the non-possessive eponym+disease-word mention to be whitelisted end to end, got %q", res.Text)
	}
}

func TestRedactKeepsPersonIndicatedEponymAsPHI(t *testing.T) {
	registry := detect.NewRegistry(detect.NewDictionaryDetector(detect.DictionaryData{
		Names: []string{"Parkinson"},
	}))
	bank := whitelist.NewBank(whitelist.Data{
		Eponyms:      []string{"Parkinson"},
		DiseaseWords: []string{"disease"},
		Titles:       []string{"Dr."},
	})
	rt := NewRuntime(
		registry,
		bank,
		threshold.NewEngine(map[phitype.Type]float64{phitype.Name: 0.3}, nil, 0),
		DefaultReconcilePolicy(),
		DefaultMergeRule(),
		apply.Policy{Style: apply.StyleBrackets},
		false,
		nil,
	)

	res, err := rt.Redact("Dr. Parkinson examined the patient.", RedactOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(res.Text, "Parkinson") {
		t.Errorf("expected Dr. Parkinson to stay redacted despite the eponym whitelist entry, got %q", res.Text)
	}
}

func TestMergeDisabledTypeDropsCandidate(t *testing.T) {
	rt := newTestRuntime()
	policy := DefaultReconcilePolicy()
	policy[phitype.Email] = reconcile.TypePolicy{Enabled: false}
	rt.ReconcilePolicy = policy

	res, err := rt.Redact("Contact: jane@example.com", RedactOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RedactionCount != 0 {
		t.Errorf("expected the disabled email type to produce no redactions, got %d", res.RedactionCount)
	}
}

func TestNewStreamingSessionRedactsAcrossChunks(t *testing.T) {
	rt := newTestRuntime()
	ctrl := rt.NewStreamingSession(stream.Options{BufferSize: 40, Overlap: 5, Mode: stream.ModeImmediate}, RedactOptions{})

	var out strings.Builder
	segs, err := ctrl.Push("Patient email is jane@example.com and she is doing well today, thank you.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range segs {
		out.WriteString(s.Text)
	}
	final, err := ctrl.Flush()
	if err != nil {
		t.Fatalf("unexpected error flushing: %v", err)
	}
	out.WriteString(final.Text)

	if strings.Contains(out.String(), "jane@example.com") {
		t.Errorf("expected the email to be redacted somewhere across the stream, got %q", out.String())
	}
}
