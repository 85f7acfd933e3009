package stream

import (
	"strings"
	"testing"

	"redact/internal/apply"
	"redact/internal/phitype"
)

// fakePipeline redacts every occurrence of the literal "SECRET" using the
// real apply package, so these tests exercise genuine offset-mapping
// behavior rather than a hand-stubbed one.
type fakePipeline struct{}

func findOccurrences(hay []rune, needle string) []int {
	n := []rune(needle)
	var out []int
	for i := 0; i+len(n) <= len(hay); i++ {
		match := true
		for j := range n {
			if hay[i+j] != n[j] {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out
}

func (fakePipeline) Redact(text string) (PipelineResult, error) {
	runes := []rune(text)
	occ := findOccurrences(runes, "SECRET")
	spans := make([]phitype.Span, 0, len(occ))
	for _, start := range occ {
		spans = append(spans, phitype.Span{
			CandidateSpan: phitype.CandidateSpan{Text: "SECRET", Start: start, End: start + 6, PHIType: phitype.Name},
			Applied:       true,
		})
	}
	res, err := apply.Apply(runes, spans, apply.Policy{Style: apply.StyleBrackets}, false, nil)
	if err != nil {
		return PipelineResult{}, err
	}
	return PipelineResult{Text: res.Text, Spans: spans, Mapping: res.Mapping}, nil
}

func TestImmediateModeCommitsAtBufferSize(t *testing.T) {
	c := NewController(fakePipeline{}, Options{BufferSize: 10, Overlap: 2, Mode: ModeImmediate})
	segments, err := c.Push(strings.Repeat("x", 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected exactly one committed segment, got %d", len(segments))
	}
	if segments[0].Text != strings.Repeat("x", 8) {
		t.Errorf("expected an 8-rune segment (bufferSize 10 - overlap 2), got %q", segments[0].Text)
	}
	if segments[0].Position != 8 {
		t.Errorf("expected position 8, got %d", segments[0].Position)
	}
}

func TestSentenceModeCutsAtTerminator(t *testing.T) {
	c := NewController(fakePipeline{}, Options{BufferSize: 20, Overlap: 0, Mode: ModeSentence})
	text := strings.Repeat("a", 5) + "." + strings.Repeat("b", 30)
	segments, err := c.Push(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected two committed segments, got %d", len(segments))
	}
	if segments[0].Text != strings.Repeat("a", 5)+"." {
		t.Errorf("expected the first segment to end at the sentence terminator, got %q", segments[0].Text)
	}
	if segments[1].Text != strings.Repeat("b", 20) {
		t.Errorf("expected the second segment to fall back to bufferSize, got %q", segments[1].Text)
	}
}

func TestStraddlingSpanIsDelayedToFollowingSegment(t *testing.T) {
	c := NewController(fakePipeline{}, Options{BufferSize: 10, Overlap: 3, Mode: ModeImmediate})
	text := "abcdSECRET" + strings.Repeat("x", 10)
	segments, err := c.Push(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected two committed segments, got %d: %+v", len(segments), segments)
	}
	if segments[0].Text != "abcd" || segments[0].RedactionCount != 0 {
		t.Errorf("expected the first segment to stop before the straddling entity, got %+v", segments[0])
	}
	if segments[1].Text != "[name]x" || segments[1].RedactionCount != 1 {
		t.Errorf("expected the second segment to emit the completed redaction, got %+v", segments[1])
	}
}

func TestFlushEmitsRemainderOfBuffer(t *testing.T) {
	c := NewController(fakePipeline{}, Options{BufferSize: 10, Overlap: 2, Mode: ModeImmediate})
	if _, err := c.Push(strings.Repeat("x", 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seg, err := c.Flush()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.Text != strings.Repeat("x", 12) {
		t.Errorf("expected flush to emit all 12 remaining runes, got %q", seg.Text)
	}
}

func TestResetClearsBufferAndCounters(t *testing.T) {
	c := NewController(fakePipeline{}, Options{BufferSize: 10, Overlap: 2, Mode: ModeImmediate})
	if _, err := c.Push(strings.Repeat("x", 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Reset()
	segments, err := c.Push(strings.Repeat("y", 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if segments[0].Position != 8 {
		t.Errorf("expected position counter reset to start fresh at 8, got %d", segments[0].Position)
	}
	seg, _ := c.Flush()
	if seg.Text != strings.Repeat("y", 12) {
		t.Errorf("expected reset to drop the prior session's buffer entirely, got %q", seg.Text)
	}
}

type erroringPipeline struct{}

func (erroringPipeline) Redact(text string) (PipelineResult, error) {
	return PipelineResult{}, phitype.NewError(phitype.KindDetectorUnavailable, "test", "boom", nil)
}

func TestPipelineErrorWrappedAsStreamingBoundary(t *testing.T) {
	c := NewController(erroringPipeline{}, Options{BufferSize: 5, Overlap: 0, Mode: ModeImmediate})
	_, err := c.Push(strings.Repeat("z", 10))
	if err == nil {
		t.Fatal("expected an error from a failing pipeline")
	}
	if !phitype.IsKind(err, phitype.KindStreamingBoundary) {
		t.Errorf("expected a streaming_boundary error, got %v", err)
	}
}
