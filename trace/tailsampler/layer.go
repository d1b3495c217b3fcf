package tailsampler

import (
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracekit/tailsample-go/trace/tailsampler/extension"
	"github.com/tracekit/tailsample-go/trace/tailsampler/id_generator"
	"github.com/tracekit/tailsample-go/trace/tailsampler/logger"
)

// Layer buffers every span of a trace until the trace's root closes, then
// makes a single export-or-discard decision for the whole trace. The host
// instrumentation framework drives it through the On* lifecycle callbacks;
// finalized records go out through the Exporter.
type Layer struct {
	registry Registry
	exporter Exporter

	idGenerator *id_generator.IdGenerator
	clock       clockz.Clock
	logger      logger.Logger

	trackInactivity bool
	latePolicy      LateSpanPolicy
}

func NewLayer(registry Registry, exporter Exporter, opts ...LayerOption) *Layer {
	if registry == nil {
		panic("tailsampler: registry must not be nil")
	}
	if exporter == nil {
		panic("tailsampler: exporter must not be nil")
	}
	config := newDefaultLayerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Layer{
		registry: registry,
		exporter: exporter,

		idGenerator: id_generator.New(),
		clock:       config.Clock,
		logger:      config.Logger,

		trackInactivity: config.TrackInactivity,
		latePolicy:      config.LateSpanPolicy,
	}
}

// recordData is a span's in-progress wire record plus the causal parent
// context captured at start. Callbacks for one span may fire from different
// goroutines, so mutation goes through the mutex.
type recordData struct {
	mu     sync.Mutex
	record *SpanRecord
	parent trace.SpanContext
}

type timings struct {
	mu   sync.Mutex
	idle int64
	busy int64
	last time.Time
}

func (l *Layer) span(key SpanKey) SpanRef {
	ref, ok := l.registry.Span(key)
	if !ok {
		panic(fmt.Sprintf("tailsampler: span %d not found in registry, this is a bug in the host framework", key))
	}
	return ref
}

// OnStart must be invoked by the host once per span, before any other
// callback for that span.
func (l *Layer) OnStart(key SpanKey, info StartInfo) {
	ref := l.span(key)
	exts := ref.Extensions()

	if l.trackInactivity {
		if _, ok := extension.Get[*timings](exts); !ok {
			extension.Insert(exts, &timings{last: l.clock.Now()})
		}
	}

	tc, parentCtx := l.deriveContext(info)
	extension.Insert(exts, tc)

	rec := &SpanRecord{
		Name:      info.Name,
		StartTime: l.clock.Now(),
		TraceID:   tc.trace.ID(),
		SpanID:    tc.spanID,
	}
	if parentID, ok := tc.ParentID(); ok {
		rec.ParentSpanID = parentID
	}
	if info.File != "" {
		rec.setAttribute(attribute.String("code.filepath", info.File))
	}
	if info.Namespace != "" {
		rec.setAttribute(attribute.String("code.namespace", info.Namespace))
	}
	if info.Line > 0 {
		rec.setAttribute(attribute.Int("code.lineno", info.Line))
	}
	for _, f := range info.Fields {
		rec.mergeField(f)
	}

	extension.Insert(exts, &recordData{record: rec, parent: parentCtx})
}

// deriveContext resolves the span's parent and produces its TraceContext
// together with the causal parent context the exporter will eventually see.
// An explicit parent wins over the ambient active span; a span with neither
// starts a new trace.
func (l *Layer) deriveContext(info StartInfo) (*TraceContext, trace.SpanContext) {
	parentKey := info.Parent
	if parentKey == nil && info.Contextual {
		parentKey = info.Active
	}
	if parentKey != nil {
		parentRef := l.span(*parentKey)
		parentExts := parentRef.Extensions()
		if ptc, ok := extension.Get[*TraceContext](parentExts); ok {
			tc := &TraceContext{
				spanID:   l.idGenerator.NewSpanID(),
				parentID: ptc.spanID,
				trace:    ptc.trace,
			}
			parentCtx := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    ptc.trace.ID(),
				SpanID:     ptc.spanID,
				TraceFlags: trace.FlagsSampled,
			})
			if data, ok := extension.Get[*recordData](parentExts); ok {
				data.mu.Lock()
				parentCtx = data.record.wireContext()
				data.mu.Unlock()
			}
			return tc, parentCtx
		}
	}
	tc := &TraceContext{
		spanID: l.idGenerator.NewSpanID(),
		trace:  newTrace(l.idGenerator.NewTraceID()),
	}
	return tc, trace.SpanContext{}
}

// OnRecord merges post-creation fields into the span's attributes.
func (l *Layer) OnRecord(key SpanKey, fields ...Field) {
	ref := l.span(key)
	data, ok := extension.Get[*recordData](ref.Extensions())
	if !ok {
		return
	}
	data.mu.Lock()
	for _, f := range fields {
		data.record.mergeField(f)
	}
	data.mu.Unlock()
}

func (l *Layer) OnEnter(key SpanKey) {
	if !l.trackInactivity {
		return
	}
	ref := l.span(key)
	tm, ok := extension.Get[*timings](ref.Extensions())
	if !ok {
		return
	}
	now := l.clock.Now()
	tm.mu.Lock()
	tm.idle += now.Sub(tm.last).Nanoseconds()
	tm.last = now
	tm.mu.Unlock()
}

func (l *Layer) OnExit(key SpanKey) {
	if !l.trackInactivity {
		return
	}
	ref := l.span(key)
	tm, ok := extension.Get[*timings](ref.Extensions())
	if !ok {
		return
	}
	now := l.clock.Now()
	tm.mu.Lock()
	tm.busy += now.Sub(tm.last).Nanoseconds()
	tm.last = now
	tm.mu.Unlock()
}

// OnFollowsFrom records a causal, non-parent link from the span to the
// followed span's context.
func (l *Layer) OnFollowsFrom(key SpanKey, follows SpanKey) {
	ref := l.span(key)
	data, ok := extension.Get[*recordData](ref.Extensions())
	if !ok {
		return
	}
	followsRef := l.span(follows)
	followsData, ok := extension.Get[*recordData](followsRef.Extensions())
	if !ok {
		return
	}
	followsData.mu.Lock()
	followsCtx := followsData.record.wireContext()
	followsData.mu.Unlock()

	data.mu.Lock()
	data.record.Links = append(data.record.Links, trace.Link{SpanContext: followsCtx})
	data.mu.Unlock()
}

// OnEvent appends a timestamped event to the span. An ERROR-level event
// promotes a still-unset span status to Error.
func (l *Layer) OnEvent(key SpanKey, info EventInfo) {
	ref, ok := l.registry.Span(key)
	if !ok {
		// events may race span teardown in the host; drop them
		return
	}
	data, ok := extension.Get[*recordData](ref.Extensions())
	if !ok {
		return
	}

	at := info.Time
	if at.IsZero() {
		at = l.clock.Now()
	}
	ev := Event{
		Time: at,
		Attributes: []attribute.KeyValue{
			attribute.String("level", info.Level.String()),
			attribute.String("target", info.Target),
		},
	}
	for _, f := range info.Fields {
		ev.mergeField(f)
	}

	data.mu.Lock()
	if info.Level == LevelError && data.record.StatusCode == codes.Unset {
		data.record.StatusCode = codes.Error
		data.record.StatusDescription = ""
	}
	data.record.Events = append(data.record.Events, ev)
	data.mu.Unlock()
}

// OnClose finalizes the span's record and runs the tail-sample protocol:
// buffer it into the trace, and on root close flush the whole buffer to the
// exporter or discard it according to the trace's sample decision.
func (l *Layer) OnClose(key SpanKey) {
	ref := l.span(key)
	exts := ref.Extensions()

	data, ok := extension.Remove[*recordData](exts)
	if !ok {
		// close without a start record is a no-op
		return
	}
	rec := data.record
	rec.EndTime = l.clock.Now()

	if l.trackInactivity {
		if tm, ok := extension.Get[*timings](exts); ok {
			tm.mu.Lock()
			rec.setAttribute(attribute.Int64("busy_ns", tm.busy))
			rec.setAttribute(attribute.Int64("idle_ns", tm.idle))
			tm.mu.Unlock()
		}
	}

	tc, ok := extension.Get[*TraceContext](exts)
	if !ok {
		// detached from any trace, export standalone right away
		l.exporter.StartSpan(rec, data.parent)
		return
	}

	buf := tc.trace.buffer()
	entry := bufferedSpan{record: rec, parent: data.parent}

	if !tc.IsRoot() {
		if !buf.push(entry) {
			l.exportLate(entry)
		}
		return
	}

	spans := buf.pushAndDrain(entry)
	if !tc.trace.sampleDecision() {
		l.logger.Debug("trace %s discarded by sample decision, dropping %d spans", tc.trace.ID(), len(spans))
		return
	}
	for _, s := range spans {
		l.exporter.StartSpan(s.record, s.parent)
	}
}

// exportLate handles a descendant that closed after its root had already
// flushed the trace.
func (l *Layer) exportLate(s bufferedSpan) {
	switch l.latePolicy {
	case LateSpanDrop:
		l.logger.Debug("dropping late span %s of flushed trace %s", s.record.SpanID, s.record.TraceID)
	case LateSpanMarkDetached:
		s.record.setAttribute(attribute.Bool("trace.detached", true))
		l.exporter.StartSpan(s.record, s.parent)
	default:
		l.exporter.StartSpan(s.record, s.parent)
	}
}
