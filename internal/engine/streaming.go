package engine

import (
	"redact/internal/phitype"
	"redact/internal/stream"
)

// pipelineAdapter implements internal/stream.Pipeline over a Runtime,
// reusing the exact same normalize->detect->reconcile->apply chain Redact
// runs in batch mode. Each streaming window is treated as a complete,
// self-contained "raw document" for normalization's purposes; offsets the
// controller reads back out are therefore already relative to that window,
// which is what the controller's own cut-point arithmetic requires.
type pipelineAdapter struct {
	rt   *Runtime
	opts RedactOptions
}

func (p pipelineAdapter) Redact(text string) (stream.PipelineResult, error) {
	res, err := p.rt.Redact(text, RedactOptions{PurposeOfUse: p.opts.PurposeOfUse, IncludeReport: true})
	if err != nil {
		return stream.PipelineResult{}, err
	}
	spans := make([]phitype.Span, len(res.Report.AppliedTrace))
	for i, rec := range res.Report.AppliedTrace {
		spans[i] = rec.Span
	}
	return stream.PipelineResult{Text: res.Text, Spans: spans, Mapping: res.Mapping}, nil
}

// NewStreamingSession builds a StreamingController backed by this Runtime,
// per spec.md §2's redactStreaming entry point.
func (rt *Runtime) NewStreamingSession(streamOpts stream.Options, redactOpts RedactOptions) *stream.Controller {
	return stream.NewController(pipelineAdapter{rt: rt, opts: redactOpts}, streamOpts)
}
