package span_sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracekit/tailsample-go/trace/tailsampler"
)

func newRecord(name string) *tailsampler.SpanRecord {
	return &tailsampler.SpanRecord{
		Name:    name,
		TraceID: trace.TraceID{0x01},
		SpanID:  trace.SpanID{0x02},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSenderFlushesOnBatchSize(t *testing.T) {
	mem := tracetest.NewInMemoryExporter()
	s := NewSender(mem,
		WithBatchSize(2),
		WithFlushInterval(time.Hour),
	)
	s.Start()
	defer s.Stop()

	s.StartSpan(newRecord("a"), trace.SpanContext{})
	s.StartSpan(newRecord("b"), trace.SpanContext{})

	waitFor(t, func() bool { return len(mem.GetSpans()) == 2 })
}

func TestSenderFlushesOnInterval(t *testing.T) {
	mem := tracetest.NewInMemoryExporter()
	s := NewSender(mem,
		WithBatchSize(100),
		WithFlushInterval(20*time.Millisecond),
	)
	s.Start()
	defer s.Stop()

	s.StartSpan(newRecord("a"), trace.SpanContext{})

	waitFor(t, func() bool { return len(mem.GetSpans()) == 1 })
}

func TestSenderStopDrains(t *testing.T) {
	mem := tracetest.NewInMemoryExporter()
	s := NewSender(mem,
		WithBatchSize(100),
		WithFlushInterval(time.Hour),
	)
	s.Start()

	for i := 0; i < 5; i++ {
		s.StartSpan(newRecord("n"), trace.SpanContext{})
	}
	s.Stop()

	assert.Len(t, mem.GetSpans(), 5)

	// after stop everything is dropped, and a second stop is harmless
	s.StartSpan(newRecord("late"), trace.SpanContext{})
	s.Stop()
	assert.Len(t, mem.GetSpans(), 5)
}

func TestSnapshotCarriesRecord(t *testing.T) {
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0xaa},
		SpanID:  trace.SpanID{0xbb},
	})
	start := time.Now()
	end := start.Add(time.Second)
	rec := &tailsampler.SpanRecord{
		Name:              "http_request",
		Kind:              trace.SpanKindServer,
		StatusCode:        codes.Error,
		StatusDescription: "upstream timeout",
		StartTime:         start,
		EndTime:           end,
		TraceID:           trace.TraceID{0x01},
		SpanID:            trace.SpanID{0x02},
		Attributes:        []attribute.KeyValue{attribute.String("http.method", "GET")},
		Events: []tailsampler.Event{{
			Name:       "retry",
			Time:       start.Add(time.Millisecond),
			Attributes: []attribute.KeyValue{attribute.Int("attempt", 2)},
		}},
		Links: []trace.Link{{SpanContext: parent}},
	}

	ro := snapshot(rec, parent)

	assert.Equal(t, "http_request", ro.Name())
	assert.Equal(t, trace.SpanKindServer, ro.SpanKind())
	assert.Equal(t, rec.TraceID, ro.SpanContext().TraceID())
	assert.Equal(t, rec.SpanID, ro.SpanContext().SpanID())
	assert.True(t, ro.SpanContext().IsSampled())
	assert.Equal(t, parent, ro.Parent())
	assert.Equal(t, start, ro.StartTime())
	assert.Equal(t, end, ro.EndTime())
	assert.Equal(t, codes.Error, ro.Status().Code)
	assert.Equal(t, "upstream timeout", ro.Status().Description)
	require.Len(t, ro.Events(), 1)
	assert.Equal(t, "retry", ro.Events()[0].Name)
	require.Len(t, ro.Links(), 1)
	assert.Equal(t, parent.SpanID(), ro.Links()[0].SpanContext.SpanID())
	assert.Equal(t, rec.Attributes, ro.Attributes())
}

func TestNewSenderPanicsOnNilExporter(t *testing.T) {
	assert.Panics(t, func() { NewSender(nil) })
}
