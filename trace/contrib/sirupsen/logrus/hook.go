package logrus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tracekit/tailsample-go/trace/tailsampler"
)

// ActiveSpan resolves the span a log entry should attach to, usually from
// a value the host framework put into the entry's context.
type ActiveSpan func(ctx context.Context) (tailsampler.SpanKey, bool)

// NewHook returns a logrus hook that forwards matching entries to the layer
// as span events. Entries with no resolvable active span are ignored.
func NewHook(layer *tailsampler.Layer, active ActiveSpan, levels []logrus.Level) logrus.Hook {
	return &Hook{
		layer:  layer,
		active: active,
		levels: levels,
	}
}

type Hook struct {
	layer  *tailsampler.Layer
	active ActiveSpan
	levels []logrus.Level
}

func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

func (h *Hook) Fire(e *logrus.Entry) error {
	if e == nil {
		return nil
	}
	key, ok := h.active(e.Context)
	if !ok {
		return nil
	}

	fields := make([]tailsampler.Field, 0, len(e.Data)+1)
	fields = append(fields, tailsampler.Field{Key: "message", Value: e.Message})
	for k, v := range e.Data {
		fields = append(fields, tailsampler.Field{Key: k, Value: v})
	}

	h.layer.OnEvent(key, tailsampler.EventInfo{
		Level:  levelOf(e.Level),
		Target: "logrus",
		Time:   e.Time,
		Fields: fields,
	})
	return nil
}

func levelOf(l logrus.Level) tailsampler.Level {
	switch l {
	case logrus.TraceLevel:
		return tailsampler.LevelTrace
	case logrus.DebugLevel:
		return tailsampler.LevelDebug
	case logrus.InfoLevel:
		return tailsampler.LevelInfo
	case logrus.WarnLevel:
		return tailsampler.LevelWarn
	default:
		return tailsampler.LevelError
	}
}
