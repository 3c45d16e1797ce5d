// Package logging provides the leveled, structured logger used across the
// module. Entries are rendered as "key=value" text or as one JSON object
// per line.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Level represents a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = [...]string{Debug: "DEBUG", Info: "INFO", Warn: "WARN", Error: "ERROR"}

// levelAliases maps accepted spellings, including the CASA logger's, to levels.
var levelAliases = map[string]Level{
	"":        Info,
	"debug":   Debug,
	"debug1":  Debug,
	"info":    Info,
	"warn":    Warn,
	"warning": Warn,
	"error":   Error,
	"severe":  Error,
}

func (l Level) String() string {
	if l < Debug || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return Info, fmt.Errorf("unsupported log level %q", s)
}

// Format controls how log entries are rendered.
type Format int

const (
	Text Format = iota
	JSON
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case JSON:
		return "json"
	}
	return "unknown"
}

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "plain":
		return Text, nil
	case "json":
		return JSON, nil
	}
	return Text, fmt.Errorf("unsupported log format %q", s)
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger defines leveled structured logging operations.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// Default returns the process-wide logger. It discards output until
// SetDefault is called by the command entry point.
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l == nil {
		return Nop()
	}
	return l
}

// SetDefault replaces the process-wide logger. nil is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Nop returns a logger that drops every entry.
func Nop() Logger { return New(Error+1, Text, io.Discard) }

// OrDefault returns l, or the process-wide logger when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}

// streamLogger writes entries at or above min to out. Loggers derived with
// With share out and carry their fields in front of per-call ones.
type streamLogger struct {
	min    Level
	format Format
	fields []Field
	out    *log.Logger
}

// New constructs a Logger with the given level, format, and output writer.
func New(level Level, format Format, out io.Writer) Logger {
	return &streamLogger{min: level, format: format, out: log.New(out, "", log.LstdFlags)}
}

func (l *streamLogger) With(fields ...Field) Logger {
	child := *l
	child.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return &child
}

func (l *streamLogger) Debug(msg string, fields ...Field) { l.emit(Debug, msg, fields) }
func (l *streamLogger) Info(msg string, fields ...Field)  { l.emit(Info, msg, fields) }
func (l *streamLogger) Warn(msg string, fields ...Field)  { l.emit(Warn, msg, fields) }
func (l *streamLogger) Error(msg string, fields ...Field) { l.emit(Error, msg, fields) }

func (l *streamLogger) emit(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f.Key != "" {
				all = append(all, f)
			}
		}
	}
	if l.format == JSON {
		l.out.Print(renderJSON(level, msg, all))
		return
	}
	l.out.Print(renderText(level, msg, all))
}

func renderText(level Level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(textValue(f.Value))
	}
	return b.String()
}

// textValue groups digits of counts so row and sample totals stay readable.
func textValue(v any) string {
	switch n := v.(type) {
	case int:
		return humanize.Comma(int64(n))
	case int64:
		return humanize.Comma(n)
	case float64:
		return humanize.FtoaWithDigits(n, 6)
	case error:
		return fmt.Sprintf("%q", n.Error())
	}
	return fmt.Sprint(v)
}

func renderJSON(level Level, msg string, fields []Field) string {
	payload := make(map[string]any, len(fields)+3)
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			payload[f.Key] = err.Error()
			continue
		}
		payload[f.Key] = f.Value
	}
	payload["time"] = time.Now().Format(time.RFC3339Nano)
	payload["level"] = level.String()
	payload["msg"] = msg
	data, err := json.MarshalToString(payload)
	if err != nil {
		return fmt.Sprintf("[ERROR] marshal log payload: %v", err)
	}
	return data
}
