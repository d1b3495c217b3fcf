package tailsampler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	spanNameField   = "otel.name"
	spanKindField   = "otel.kind"
	spanStatusField = "otel.status"
	messageField    = "message"
	logFieldPrefix  = "log."
)

// SpanRecord is the wire-format span representation, built up incrementally
// while the span lives and finalized at close. Field names and semantics
// match what OpenTelemetry-speaking backends expect.
type SpanRecord struct {
	Name string
	Kind trace.SpanKind

	StatusCode        codes.Code
	StatusDescription string

	StartTime time.Time
	EndTime   time.Time

	TraceID      trace.TraceID
	SpanID       trace.SpanID
	ParentSpanID trace.SpanID

	Attributes []attribute.KeyValue
	Events     []Event
	Links      []trace.Link
}

// Event is one timestamped event recorded on a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes []attribute.KeyValue
}

// wireContext is the causal context other spans use to point at this record.
func (r *SpanRecord) wireContext() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    r.TraceID,
		SpanID:     r.SpanID,
		TraceFlags: trace.FlagsSampled,
	})
}

// setAttribute is last-write-wins per key, preserving first-write order.
func (r *SpanRecord) setAttribute(kv attribute.KeyValue) {
	for i := range r.Attributes {
		if r.Attributes[i].Key == kv.Key {
			r.Attributes[i].Value = kv.Value
			return
		}
	}
	r.Attributes = append(r.Attributes, kv)
}

// mergeField folds one recorded field into the record, diverting the
// reserved names to their typed slots.
func (r *SpanRecord) mergeField(f Field) {
	switch f.Key {
	case spanNameField:
		r.Name = stringify(f.Value)
	case spanKindField:
		if kind, ok := parseSpanKind(stringify(f.Value)); ok {
			r.Kind = kind
		}
	case spanStatusField:
		code, description, ok := parseStatus(stringify(f.Value))
		if !ok {
			code, description = codes.Unset, ""
		}
		r.StatusCode = code
		r.StatusDescription = description
	default:
		if strings.HasPrefix(f.Key, logFieldPrefix) {
			return
		}
		if err, ok := f.Value.(error); ok && err != nil {
			r.setAttribute(attribute.String(f.Key, err.Error()))
			r.setAttribute(attribute.StringSlice(f.Key+".chain", causeChain(err)))
			return
		}
		r.setAttribute(attrValue(f.Key, f.Value))
	}
}

func (e *Event) mergeField(f Field) {
	switch f.Key {
	case messageField:
		e.Name = stringify(f.Value)
	default:
		if strings.HasPrefix(f.Key, logFieldPrefix) {
			return
		}
		e.Attributes = append(e.Attributes, attrValue(f.Key, f.Value))
	}
}

func parseSpanKind(s string) (trace.SpanKind, bool) {
	switch {
	case strings.EqualFold(s, "server"):
		return trace.SpanKindServer, true
	case strings.EqualFold(s, "client"):
		return trace.SpanKindClient, true
	case strings.EqualFold(s, "producer"):
		return trace.SpanKindProducer, true
	case strings.EqualFold(s, "consumer"):
		return trace.SpanKindConsumer, true
	case strings.EqualFold(s, "internal"):
		return trace.SpanKindInternal, true
	}
	return trace.SpanKindUnspecified, false
}

// parseStatus accepts "unset", "ok", and anything beginning with "error"
// (case-insensitive); an error status keeps the whole string as description.
func parseStatus(s string) (codes.Code, string, bool) {
	switch {
	case strings.EqualFold(s, "unset"):
		return codes.Unset, "", true
	case strings.EqualFold(s, "ok"):
		return codes.Ok, "", true
	case len(s) >= 5 && strings.EqualFold(s[:5], "error"):
		return codes.Error, s, true
	}
	return codes.Unset, "", false
}

// causeChain collects the wrapped causes of err, outermost first, not
// including err itself.
func causeChain(err error) []string {
	var chain []string
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(next) {
		chain = append(chain, next.Error())
	}
	return chain
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func attrValue(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int8:
		return attribute.Int64(key, int64(v))
	case int16:
		return attribute.Int64(key, int64(v))
	case int32:
		return attribute.Int64(key, int64(v))
	case int64:
		return attribute.Int64(key, v)
	case uint:
		return attribute.Int64(key, int64(v))
	case uint8:
		return attribute.Int64(key, int64(v))
	case uint16:
		return attribute.Int64(key, int64(v))
	case uint32:
		return attribute.Int64(key, int64(v))
	case uint64:
		return attribute.Int64(key, int64(v))
	case float32:
		return attribute.Float64(key, float64(v))
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case []int64:
		return attribute.Int64Slice(key, v)
	case []float64:
		return attribute.Float64Slice(key, v)
	case []bool:
		return attribute.BoolSlice(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Nanoseconds())
	case error:
		return attribute.String(key, v.Error())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%+v", v))
	}
}
