package logger

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a logrus logger to the Logger interface.
type LogrusLogger struct {
	l *logrus.Logger
}

func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{l: l}
}

func (w *LogrusLogger) Debug(format string, args ...interface{}) {
	w.l.Debugf(format, args...)
}

func (w *LogrusLogger) Info(format string, args ...interface{}) {
	w.l.Infof(format, args...)
}

func (w *LogrusLogger) Error(format string, args ...interface{}) {
	w.l.Errorf(format, args...)
}
