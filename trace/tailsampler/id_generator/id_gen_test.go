package id_generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTraceIDUnique(t *testing.T) {
	g := New()
	seen := make(map[trace.TraceID]struct{})
	for i := 0; i < 1000; i++ {
		id := g.NewTraceID()
		assert.True(t, id.IsValid())
		_, dup := seen[id]
		assert.False(t, dup, "duplicate trace id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewSpanIDUnique(t *testing.T) {
	g := New()
	seen := make(map[trace.SpanID]struct{})
	for i := 0; i < 1000; i++ {
		id := g.NewSpanID()
		assert.True(t, id.IsValid())
		_, dup := seen[id]
		assert.False(t, dup, "duplicate span id %s", id)
		seen[id] = struct{}{}
	}
}
