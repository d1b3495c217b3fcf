package tailsampler

import (
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/tracekit/tailsample-go/trace/tailsampler/extension"
)

// Trace is the per-trace shared state. Every span of the trace holds the
// same *Trace through its TraceContext, so mutations to the trace store
// (the buffer, the sample decision) are visible to all of them. The last
// holder to drop the pointer releases it.
type Trace struct {
	id   trace.TraceID
	exts *extension.Store
}

func newTrace(id trace.TraceID) *Trace {
	return &Trace{
		id:   id,
		exts: extension.NewStore(),
	}
}

func (t *Trace) ID() trace.TraceID {
	return t.id
}

func (t *Trace) Extensions() *extension.Store {
	return t.exts
}

// SampleDecision is the export-or-discard verdict an external policy writes
// into the trace store at any point before the root closes. Absent means
// export.
type SampleDecision struct {
	Record bool
}

// SetSampleDecision records the verdict for the whole trace.
func (t *Trace) SetSampleDecision(record bool) {
	extension.Insert(t.exts, SampleDecision{Record: record})
}

func (t *Trace) sampleDecision() bool {
	d, ok := extension.Get[SampleDecision](t.exts)
	if !ok {
		return true
	}
	return d.Record
}

func (t *Trace) buffer() *traceBuffer {
	return extension.GetOrInsert(t.exts, func() *traceBuffer {
		return &traceBuffer{}
	})
}

// TraceContext ties one span to its trace. It is installed into the span's
// extension store exactly once, at creation, and never replaced.
type TraceContext struct {
	spanID   trace.SpanID
	parentID trace.SpanID // zero for a root
	trace    *Trace
}

func (tc *TraceContext) SpanID() trace.SpanID {
	return tc.spanID
}

func (tc *TraceContext) ParentID() (trace.SpanID, bool) {
	return tc.parentID, tc.parentID.IsValid()
}

func (tc *TraceContext) Trace() *Trace {
	return tc.trace
}

func (tc *TraceContext) IsRoot() bool {
	return !tc.parentID.IsValid()
}

type bufferedSpan struct {
	record *SpanRecord
	parent trace.SpanContext
}

// traceBuffer holds the finalized records of a trace until the root decides
// their fate. It is consumed exactly once; appends racing a completed flush
// report failure instead of corrupting the drained buffer.
type traceBuffer struct {
	mu      sync.Mutex
	spans   []bufferedSpan
	flushed bool
}

func (b *traceBuffer) push(s bufferedSpan) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return false
	}
	b.spans = append(b.spans, s)
	return true
}

// pushAndDrain appends the root's record and takes the whole buffer in one
// step, marking it consumed.
func (b *traceBuffer) pushAndDrain(s bufferedSpan) []bufferedSpan {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return nil
	}
	b.flushed = true
	spans := append(b.spans, s)
	b.spans = nil
	return spans
}
