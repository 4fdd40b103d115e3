// Package logging is the structured log sink shared by every subsystem.
//
// A Logger writes through log/slog (tint handler by default) and keeps a
// bounded in-memory history of recent entries so diagnostics can show what
// happened just before a failure. Debug output is a runtime toggle.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"

	"github.com/vietddude/menuguard/internal/core/ring"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time
	Level   Level
	Tag     string
	Message string
	Fields  map[string]any
}

// Logger is the logging collaborator consumed by the resilience layer.
type Logger interface {
	// Log writes msg with slog-style key/value args.
	Log(level Level, tag, msg string, args ...any)

	// LogWithContext writes msg with a structured context map.
	LogWithContext(level Level, tag, msg string, fields map[string]any)

	// History returns recent entries, oldest first.
	History() []Entry

	// SetDebug toggles debug output.
	SetDebug(enabled bool)

	// IsDebug reports whether debug output is enabled.
	IsDebug() bool
}

// Config controls how a HistoryLogger is built.
type Config struct {
	Writer      io.Writer // defaults to os.Stderr
	Debug       bool
	HistorySize int // defaults to 200
	NoColor     bool
}

// HistoryLogger is the default Logger: slog output plus a ring of entries.
type HistoryLogger struct {
	base  *slog.Logger
	level *slog.LevelVar
	debug atomic.Bool

	history *ring.Buffer[Entry]
}

// New creates a HistoryLogger writing tint-formatted lines.
func New(cfg Config) *HistoryLogger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	level := new(slog.LevelVar)
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	})
	return newHistoryLogger(slog.New(handler), level, cfg)
}

// NewWithHandler creates a HistoryLogger on top of an existing handler.
// The handler's own level filter still applies.
func NewWithHandler(h slog.Handler, cfg Config) *HistoryLogger {
	return newHistoryLogger(slog.New(h), new(slog.LevelVar), cfg)
}

func newHistoryLogger(base *slog.Logger, level *slog.LevelVar, cfg Config) *HistoryLogger {
	capacity := cfg.HistorySize
	if capacity <= 0 {
		capacity = 200
	}
	l := &HistoryLogger{
		base:    base,
		level:   level,
		history: ring.New[Entry](capacity),
	}
	l.SetDebug(cfg.Debug)
	return l
}

// Discard returns a logger that records history but writes nowhere.
func Discard() *HistoryLogger {
	return New(Config{Writer: io.Discard, NoColor: true})
}

// Log implements Logger.
func (l *HistoryLogger) Log(level Level, tag, msg string, args ...any) {
	if level == LevelDebug && !l.debug.Load() {
		return
	}
	l.record(level, tag, msg, argsToFields(args))
	l.base.Log(context.Background(), level.slog(), msg, append([]any{"tag", tag}, args...)...)
}

// LogWithContext implements Logger.
func (l *HistoryLogger) LogWithContext(level Level, tag, msg string, fields map[string]any) {
	if level == LevelDebug && !l.debug.Load() {
		return
	}
	copied := make(map[string]any, len(fields))
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		copied[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	l.record(level, tag, msg, copied)

	attrs := make([]any, 0, len(keys)+1)
	attrs = append(attrs, slog.String("tag", tag))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, copied[k]))
	}
	l.base.Log(context.Background(), level.slog(), msg, attrs...)
}

// History implements Logger.
func (l *HistoryLogger) History() []Entry {
	return l.history.All()
}

// SetDebug implements Logger.
func (l *HistoryLogger) SetDebug(enabled bool) {
	l.debug.Store(enabled)
	if enabled {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(slog.LevelInfo)
	}
}

// IsDebug implements Logger.
func (l *HistoryLogger) IsDebug() bool {
	return l.debug.Load()
}

func (l *HistoryLogger) record(level Level, tag, msg string, fields map[string]any) {
	l.history.Add(Entry{
		Time:    time.Now(),
		Level:   level,
		Tag:     tag,
		Message: msg,
		Fields:  fields,
	})
}

func argsToFields(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	fields := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case slog.Attr:
			fields[v.Key] = v.Value.Any()
		case string:
			if i+1 < len(args) {
				fields[v] = args[i+1]
				i++
			} else {
				fields["!BADKEY"] = v
			}
		default:
			fields[fmt.Sprintf("!BADKEY%d", i)] = v
		}
	}
	return fields
}
