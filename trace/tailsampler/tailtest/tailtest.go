// Package tailtest provides an in-memory host framework and a collecting
// exporter for exercising the tail-sampling layer in tests and examples.
package tailtest

import (
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/tracekit/tailsample-go/trace/tailsampler"
	"github.com/tracekit/tailsample-go/trace/tailsampler/extension"
)

// Registry is a minimal stand-in for the upstream instrumentation
// framework's span storage.
type Registry struct {
	mu    sync.Mutex
	next  tailsampler.SpanKey
	spans map[tailsampler.SpanKey]*spanRef
}

func NewRegistry() *Registry {
	return &Registry{
		spans: make(map[tailsampler.SpanKey]*spanRef),
	}
}

type spanRef struct {
	exts *extension.Store
}

func (r *spanRef) Extensions() *extension.Store {
	return r.exts
}

// Register allocates a key for a new span, as the host would on creation.
func (r *Registry) Register() tailsampler.SpanKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.spans[r.next] = &spanRef{exts: extension.NewStore()}
	return r.next
}

func (r *Registry) Span(key tailsampler.SpanKey) (tailsampler.SpanRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.spans[key]
	if !ok {
		return nil, false
	}
	return ref, true
}

// Drop removes a span, as the host would after its close callback returned.
func (r *Registry) Drop(key tailsampler.SpanKey) {
	r.mu.Lock()
	delete(r.spans, key)
	r.mu.Unlock()
}

// Exported is one record the Recorder received, with the causal parent
// context it was exported under.
type Exported struct {
	Record *tailsampler.SpanRecord
	Parent trace.SpanContext
}

// Recorder is an Exporter that collects everything it receives.
type Recorder struct {
	mu    sync.Mutex
	spans []Exported
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

var _ tailsampler.Exporter = (*Recorder)(nil)

func (r *Recorder) StartSpan(record *tailsampler.SpanRecord, parent trace.SpanContext) {
	r.mu.Lock()
	r.spans = append(r.spans, Exported{Record: record, Parent: parent})
	r.mu.Unlock()
}

func (r *Recorder) Spans() []Exported {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Exported, len(r.spans))
	copy(out, r.spans)
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.spans = nil
	r.mu.Unlock()
}
