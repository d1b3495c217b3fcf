package tailsampler

import "go.opentelemetry.io/otel/trace"

// Exporter is the downstream telemetry backend. StartSpan is fire-and-forget:
// the layer never consumes a return value and never retries.
type Exporter interface {
	StartSpan(record *SpanRecord, parent trace.SpanContext)
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(record *SpanRecord, parent trace.SpanContext)

func (f ExporterFunc) StartSpan(record *SpanRecord, parent trace.SpanContext) {
	f(record, parent)
}

// Chain fans every record out to each exporter, in order.
func Chain(exporters ...Exporter) Exporter {
	return chainExporter(exporters)
}

type chainExporter []Exporter

func (c chainExporter) StartSpan(record *SpanRecord, parent trace.SpanContext) {
	for _, e := range c {
		e.StartSpan(record, parent)
	}
}

// Filter gates next behind a predicate, so an exporter can act as a global
// filter for exporters further down the chain.
func Filter(pred func(record *SpanRecord, parent trace.SpanContext) bool, next Exporter) Exporter {
	return ExporterFunc(func(record *SpanRecord, parent trace.SpanContext) {
		if pred(record, parent) {
			next.StartSpan(record, parent)
		}
	})
}
