// Package stream implements the StreamingController (spec.md §4.8): a
// single-threaded sliding-window state machine that wraps the batch pipeline
// to redact unbounded input with bounded additional latency.
package stream

import (
	"fmt"
	"unicode/utf8"

	"redact/internal/apply"
	"redact/internal/phitype"
)

// Mode selects the safe-prefix rule (spec.md §4.8).
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeSentence  Mode = "sentence"
)

// Options configures one Controller.
type Options struct {
	BufferSize int
	Overlap    int
	Mode       Mode
}

// PipelineResult is what the full redaction pipeline returns for one window
// of text: the redacted text, the applied spans (offsets relative to the
// window passed in), and the applier's offset mapping, which the controller
// needs to translate an input cut point into the matching output cut point.
type PipelineResult struct {
	Text    string
	Spans   []phitype.Span
	Mapping []apply.OffsetMapping
}

// Pipeline is the full normalize->detect->reconcile->apply chain, injected
// so this package never imports internal/engine (which depends on stream).
type Pipeline interface {
	Redact(text string) (PipelineResult, error)
}

// Segment is one emitted unit of the streaming wire contract (spec.md §6).
type Segment struct {
	Text               string
	RedactionCount     int
	ContainsRedactions bool
	Position           int // cumulative OUTPUT units emitted so far
}

// Controller is a single streaming session's sliding-window state machine.
// It is not safe for concurrent use — spec.md §4.8 specifies a
// single-threaded cooperative state machine.
type Controller struct {
	pipeline    Pipeline
	opts        Options
	buffer      []rune
	streamStart int // absolute input-stream offset of buffer[0]
	position    int // cumulative output units emitted so far
	seen        map[string]bool
}

// NewController creates a Controller backed by the given pipeline.
func NewController(p Pipeline, opts Options) *Controller {
	return &Controller{pipeline: p, opts: opts, seen: make(map[string]bool)}
}

// Push appends chunk to the internal buffer and commits as many safe
// prefixes as the buffer now supports (spec.md §4.8).
func (c *Controller) Push(chunk string) ([]Segment, error) {
	c.buffer = append(c.buffer, []rune(chunk)...)

	var segments []Segment
	for len(c.buffer) > c.opts.BufferSize+c.opts.Overlap {
		L := c.safePrefixLength()
		window := string(c.buffer[:L])

		res, err := c.pipeline.Redact(window)
		if err != nil {
			return segments, phitype.NewError(phitype.KindStreamingBoundary,
				"stream.Push", "pipeline failed on a committed window", err)
		}

		cut := L - c.opts.Overlap
		if cut < 0 {
			cut = 0
		}
		// A span straddling the cut point cannot be emitted correctly this
		// round: defer it, emitting only up to where it starts.
		adjustedCut := cut
		for _, s := range res.Spans {
			if s.Start < cut && s.End > cut && s.Start < adjustedCut {
				adjustedCut = s.Start
			}
		}

		outCut := mapInputToOutput(adjustedCut, res.Mapping)
		outRunes := []rune(res.Text)
		if outCut > len(outRunes) {
			outCut = len(outRunes)
		}
		emitted := string(outRunes[:outCut])

		count := 0
		for _, s := range res.Spans {
			if s.End > adjustedCut {
				continue // straddling or entirely in the retained tail: not emitted yet
			}
			key := fmt.Sprintf("%d:%s", c.streamStart+s.Start, s.Text)
			if c.seen[key] {
				continue // already emitted by a prior window's overlap re-detection
			}
			c.seen[key] = true
			count++
		}

		c.position += utf8.RuneCountInString(emitted)
		segments = append(segments, Segment{
			Text: emitted, RedactionCount: count, ContainsRedactions: count > 0, Position: c.position,
		})

		c.streamStart += adjustedCut
		c.buffer = c.buffer[adjustedCut:]
		if adjustedCut == 0 {
			// Nothing could be committed (a single entity spans the whole
			// window) — stop rather than spin without making progress.
			break
		}
	}
	return segments, nil
}

// Flush processes whatever remains in the buffer as the final segment
// (spec.md §4.8).
func (c *Controller) Flush() (Segment, error) {
	if len(c.buffer) == 0 {
		return Segment{}, nil
	}
	res, err := c.pipeline.Redact(string(c.buffer))
	if err != nil {
		return Segment{}, phitype.NewError(phitype.KindStreamingBoundary,
			"stream.Flush", "pipeline failed on the final window", err)
	}

	count := 0
	for _, s := range res.Spans {
		key := fmt.Sprintf("%d:%s", c.streamStart+s.Start, s.Text)
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		count++
	}

	c.position += utf8.RuneCountInString(res.Text)
	seg := Segment{Text: res.Text, RedactionCount: count, ContainsRedactions: count > 0, Position: c.position}

	c.streamStart += len(c.buffer)
	c.buffer = nil
	return seg, nil
}

// Reset drops the buffer and all per-stream detector state (spec.md §4.8).
// Always safe to call, including mid-stream.
func (c *Controller) Reset() {
	c.buffer = nil
	c.streamStart = 0
	c.position = 0
	c.seen = make(map[string]bool)
}

// safePrefixLength implements spec.md §4.8's safe-prefix rule.
func (c *Controller) safePrefixLength() int {
	limit := c.opts.BufferSize
	if limit > len(c.buffer) {
		limit = len(c.buffer)
	}
	if c.opts.Mode == ModeSentence {
		for i := limit - 1; i >= 0; i-- {
			switch c.buffer[i] {
			case '.', '?', '!', '\n':
				return i + 1
			}
		}
	}
	return limit
}

// mapInputToOutput translates an input-window rune offset into the matching
// output-window rune offset using the applier's offset mapping, assuming pos
// never falls strictly inside a replacement span (callers must choose cut
// points that avoid straddling — see the straddling-span handling in Push).
func mapInputToOutput(pos int, mapping []apply.OffsetMapping) int {
	lastOrigEnd, lastOutEnd := 0, 0
	for _, m := range mapping {
		if pos <= m.OriginalStart {
			return lastOutEnd + (pos - lastOrigEnd)
		}
		if pos < m.OriginalEnd {
			return m.OutputStart
		}
		lastOrigEnd, lastOutEnd = m.OriginalEnd, m.OutputEnd
	}
	return lastOutEnd + (pos - lastOrigEnd)
}
