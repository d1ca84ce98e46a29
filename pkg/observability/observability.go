// Package observability provides the structured logger used by every stage of
// the editing pipeline (load, extract, render, edit, export).
package observability

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled, field-based logger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a single key/value pair attached to a log line.
type Field interface {
	Key() string
	Value() interface{}
}

type field struct {
	key string
	val interface{}
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.val }

// Pipeline stages. Every diagnostic carries one of these under the "stage" key.
const (
	StageLoad    = "load"
	StageExtract = "extract"
	StageRender  = "render"
	StageEdit    = "edit"
	StageExport  = "export"
)

func String(key, value string) Field      { return field{key, value} }
func Int(key string, value int) Field     { return field{key, value} }
func Int64(key string, value int64) Field { return field{key, value} }
func Float(key string, value float64) Field {
	return field{key, value}
}
func Bool(key string, value bool) Field { return field{key, value} }
func Error(key string, err error) Field { return field{key, err} }

// Err is shorthand for Error("error", err).
func Err(err error) Field { return field{"error", err} }

// Stage tags a line with the pipeline stage it originated from.
func Stage(name string) Field { return field{"stage", name} }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// ParseLevel maps a textual level ("debug", "info", "warn", ...) to a
// logrus level. Unknown names map to info.
func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// LogrusLogger writes through a logrus entry. Fields become logrus fields.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrus adapts l. A nil l uses the logrus standard logger.
func NewLogrus(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// New returns a logger writing text lines to out at or above level.
func New(out io.Writer, level logrus.Level) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	return NewLogrus(l)
}

func (l *LogrusLogger) Debug(msg string, fields ...Field) { l.with(fields).Debug(msg) }
func (l *LogrusLogger) Info(msg string, fields ...Field)  { l.with(fields).Info(msg) }
func (l *LogrusLogger) Warn(msg string, fields ...Field)  { l.with(fields).Warn(msg) }
func (l *LogrusLogger) Error(msg string, fields ...Field) { l.with(fields).Error(msg) }

// With returns a child logger that carries fields on every line.
func (l *LogrusLogger) With(fields ...Field) Logger {
	return &LogrusLogger{entry: l.with(fields)}
}

func (l *LogrusLogger) with(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key()] = f.Value()
	}
	return l.entry.WithFields(data)
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
