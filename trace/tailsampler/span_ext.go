package tailsampler

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracekit/tailsample-go/trace/tailsampler/extension"
)

// SetParent overrides the causal parent the exporter will see with a
// remote span context, typically one extracted from an incoming request.
// The span's in-process TraceContext is untouched: buffering and the flush
// decision still follow the local trace.
func (l *Layer) SetParent(key SpanKey, remote trace.SpanContext) {
	ref := l.span(key)
	data, ok := extension.Get[*recordData](ref.Extensions())
	if !ok {
		return
	}
	data.mu.Lock()
	data.parent = remote
	if remote.HasTraceID() {
		data.record.TraceID = remote.TraceID()
	}
	if remote.HasSpanID() {
		data.record.ParentSpanID = remote.SpanID()
	}
	data.mu.Unlock()
}

// AddLink appends a causal link to another span's context. Invalid contexts
// are ignored.
func (l *Layer) AddLink(key SpanKey, sc trace.SpanContext, attrs ...attribute.KeyValue) {
	if !sc.IsValid() {
		return
	}
	ref := l.span(key)
	data, ok := extension.Get[*recordData](ref.Extensions())
	if !ok {
		return
	}
	data.mu.Lock()
	data.record.Links = append(data.record.Links, trace.Link{SpanContext: sc, Attributes: attrs})
	data.mu.Unlock()
}

// SpanContextOf returns the wire context of a live span, for propagation to
// outgoing requests. The zero SpanContext is returned for unknown spans.
func (l *Layer) SpanContextOf(key SpanKey) trace.SpanContext {
	ref, ok := l.registry.Span(key)
	if !ok {
		return trace.SpanContext{}
	}
	data, ok := extension.Get[*recordData](ref.Extensions())
	if !ok {
		return trace.SpanContext{}
	}
	data.mu.Lock()
	defer data.mu.Unlock()
	return data.record.wireContext()
}

// TraceOf exposes the span's trace so an external policy can write its
// sample decision before the root closes.
func (l *Layer) TraceOf(key SpanKey) (*Trace, bool) {
	ref, ok := l.registry.Span(key)
	if !ok {
		return nil, false
	}
	tc, ok := extension.Get[*TraceContext](ref.Extensions())
	if !ok {
		return nil, false
	}
	return tc.trace, true
}
