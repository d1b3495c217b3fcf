package span_sender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracekit/tailsample-go/trace/tailsampler"
	"github.com/tracekit/tailsample-go/trace/tailsampler/logger"
)

const (
	defaultChanSize      = 1024
	defaultBatchSize     = 512
	defaultFlushInterval = 5 * time.Second
)

type item struct {
	record *tailsampler.SpanRecord
	parent trace.SpanContext
}

// Sender is an asynchronous tailsampler.Exporter that converts finalized
// records to SDK span snapshots and hands them to an sdktrace.SpanExporter
// in batches. Enqueueing is non-blocking so span close is never delayed by
// a slow backend; overflow is dropped and logged.
type Sender struct {
	logger logger.Logger

	in      chan item
	wg      sync.WaitGroup
	stopped int64

	batchSize     int
	flushInterval time.Duration

	exporter sdktrace.SpanExporter
}

type SenderConfig struct {
	ChanSize      int
	BatchSize     int
	FlushInterval time.Duration
	Logger        logger.Logger
}

type SenderOption func(*SenderConfig)

func newDefaultSenderConfig() SenderConfig {
	return SenderConfig{
		ChanSize:      defaultChanSize,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
		Logger:        &logger.NoopLogger{},
	}
}

func WithChanSize(n int) SenderOption {
	return func(config *SenderConfig) {
		config.ChanSize = n
	}
}

func WithBatchSize(n int) SenderOption {
	return func(config *SenderConfig) {
		config.BatchSize = n
	}
}

func WithFlushInterval(d time.Duration) SenderOption {
	return func(config *SenderConfig) {
		config.FlushInterval = d
	}
}

func WithLogger(l logger.Logger) SenderOption {
	return func(config *SenderConfig) {
		config.Logger = l
	}
}

func NewSender(exporter sdktrace.SpanExporter, opts ...SenderOption) *Sender {
	if exporter == nil {
		panic("span_sender: exporter must not be nil")
	}
	config := newDefaultSenderConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Sender{
		logger: config.Logger,

		in: make(chan item, config.ChanSize),

		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,

		exporter: exporter,
	}
}

// NewOTLPSender wires the sender to an OTLP gRPC trace exporter.
func NewOTLPSender(ctx context.Context, endpoint string, opts ...SenderOption) (*Sender, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("span_sender: init otlp trace exporter: %w", err)
	}
	return NewSender(exporter, opts...), nil
}

var _ tailsampler.Exporter = (*Sender)(nil)

// StartSpan enqueues one finalized record for export.
func (s *Sender) StartSpan(record *tailsampler.SpanRecord, parent trace.SpanContext) {
	if atomic.LoadInt64(&s.stopped) == 1 {
		return
	}
	select {
	case s.in <- item{record: record, parent: parent}:
	default:
		s.logger.Error("span channel full, dropping span %s", record.SpanID)
	}
}

func (s *Sender) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendLoop()
	}()
}

// Stop flushes what is buffered, shuts the underlying exporter down and
// waits for the worker to exit. Records arriving after Stop are dropped.
func (s *Sender) Stop() {
	if !atomic.CompareAndSwapInt64(&s.stopped, 0, 1) {
		return
	}
	close(s.in)
	s.wg.Wait()
}

func (s *Sender) sendLoop() {
	defer func() {
		if err := s.exporter.Shutdown(context.Background()); err != nil {
			s.logger.Error("exporter shutdown failed: %v", err)
		}
	}()

	batch := make([]sdktrace.ReadOnlySpan, 0, s.batchSize)
	tc := time.NewTicker(s.flushInterval)
	defer tc.Stop()
	for {
		select {
		case <-tc.C:
			batch = s.flush(batch)
		case it, ok := <-s.in:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, snapshot(it.record, it.parent))
			if len(batch) >= s.batchSize {
				batch = s.flush(batch)
			}
		}
	}
}

func (s *Sender) flush(batch []sdktrace.ReadOnlySpan) []sdktrace.ReadOnlySpan {
	if len(batch) == 0 {
		return batch
	}
	if err := s.exporter.ExportSpans(context.Background(), batch); err != nil {
		s.logger.Error("export of %d spans failed: %v", len(batch), err)
	}
	return batch[:0]
}

// snapshot converts one finalized record into the SDK's read-only span form.
func snapshot(record *tailsampler.SpanRecord, parent trace.SpanContext) sdktrace.ReadOnlySpan {
	events := make([]sdktrace.Event, 0, len(record.Events))
	for _, e := range record.Events {
		events = append(events, sdktrace.Event{
			Name:       e.Name,
			Time:       e.Time,
			Attributes: e.Attributes,
		})
	}
	links := make([]sdktrace.Link, 0, len(record.Links))
	for _, l := range record.Links {
		links = append(links, sdktrace.Link{
			SpanContext: l.SpanContext,
			Attributes:  l.Attributes,
		})
	}
	stub := tracetest.SpanStub{
		Name: record.Name,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    record.TraceID,
			SpanID:     record.SpanID,
			TraceFlags: trace.FlagsSampled,
		}),
		Parent:     parent,
		SpanKind:   record.Kind,
		StartTime:  record.StartTime,
		EndTime:    record.EndTime,
		Attributes: record.Attributes,
		Events:     events,
		Links:      links,
		Status: sdktrace.Status{
			Code:        record.StatusCode,
			Description: record.StatusDescription,
		},
	}
	return stub.Snapshot()
}
