package tailsampler

import (
	"time"

	"github.com/zoobzio/clockz"

	"github.com/tracekit/tailsample-go/trace/tailsampler/extension"
	"github.com/tracekit/tailsample-go/trace/tailsampler/logger"
)

// SpanKey identifies a live span inside the host instrumentation framework.
// Keys are assigned by the host and are only meaningful against its Registry;
// they are unrelated to the wire-format span ids the layer generates.
type SpanKey uint64

// SpanRef is the host's view of one live span. The layer keeps all of its
// per-span state in the span's extension store.
type SpanRef interface {
	Extensions() *extension.Store
}

// Registry is the span-lookup capability the host framework hands to the
// layer at construction. The host must keep a span resolvable from its
// start callback until its close callback has returned.
type Registry interface {
	Span(key SpanKey) (SpanRef, bool)
}

// Field is one key/value pair recorded on a span or an event.
//
// The reserved names "otel.name", "otel.kind" and "otel.status" are diverted
// to the record's typed slots instead of becoming attributes; "message"
// renames an event; names with the "log." prefix are normalization metadata
// and are dropped.
type Field struct {
	Key   string
	Value interface{}
}

// Level is the severity of a log-style event.
type Level int8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "INFO"
}

// StartInfo carries everything the host knows about a span at creation.
type StartInfo struct {
	Name string

	// Parent is the explicitly assigned parent span, if any. It takes
	// precedence over the ambient active span.
	Parent *SpanKey

	// Contextual reports whether the span should inherit the ambient active
	// span when no explicit parent is given. A non-contextual span with no
	// explicit parent is a new root.
	Contextual bool

	// Active is the currently active span as observed by the host at
	// creation time. Consulted only for contextual spans.
	Active *SpanKey

	// Source location of the instrumentation site, attached as
	// code.filepath / code.namespace / code.lineno attributes when set.
	File      string
	Namespace string
	Line      int

	Fields []Field
}

// EventInfo carries one log-style event recorded against a live span.
type EventInfo struct {
	Level  Level
	Target string

	// Time of the event; the layer's clock is used when zero.
	Time time.Time

	Fields []Field
}

// LateSpanPolicy selects what happens to a descendant span that closes
// after its root has already flushed the trace buffer.
type LateSpanPolicy int

const (
	// LateSpanExport exports the record standalone, immediately.
	LateSpanExport LateSpanPolicy = iota
	// LateSpanDrop discards the record.
	LateSpanDrop
	// LateSpanMarkDetached exports the record standalone with a
	// trace.detached=true attribute.
	LateSpanMarkDetached
)

type LayerConfig struct {
	Logger logger.Logger
	Clock  clockz.Clock

	TrackInactivity bool
	LateSpanPolicy  LateSpanPolicy
}

type LayerOption func(*LayerConfig)

func newDefaultLayerConfig() LayerConfig {
	return LayerConfig{
		Logger:          &logger.NoopLogger{},
		Clock:           clockz.RealClock,
		TrackInactivity: true,
		LateSpanPolicy:  LateSpanExport,
	}
}

func WithLogger(l logger.Logger) LayerOption {
	return func(config *LayerConfig) {
		config.Logger = l
	}
}

func WithClock(clock clockz.Clock) LayerOption {
	return func(config *LayerConfig) {
		config.Clock = clock
	}
}

// WithTrackedInactivity controls whether spans accumulate busy/idle time
// across enter/exit, attached at close as busy_ns and idle_ns attributes.
func WithTrackedInactivity(enable bool) LayerOption {
	return func(config *LayerConfig) {
		config.TrackInactivity = enable
	}
}

func WithLateSpanPolicy(policy LateSpanPolicy) LayerOption {
	return func(config *LayerConfig) {
		config.LateSpanPolicy = policy
	}
}
