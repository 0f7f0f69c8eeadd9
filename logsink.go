package avload

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogSource tells where a log entry came from.
type LogSource uint8

const (
	SourceLoader LogSource = iota // emitted by the loading steps
	SourceNative                  // forwarded from av_log
)

func (s LogSource) String() string {
	if s == SourceNative {
		return "native"
	}
	return "loader"
}

// LogEntry is one diagnostic line.
type LogEntry struct {
	Level   zerolog.Level
	Source  LogSource
	Module  string // module name, empty when not module specific
	Message string
}

func (e LogEntry) String() string {
	if e.Module == "" {
		return e.Level.String() + ": " + e.Message
	}
	return e.Level.String() + ": " + e.Module + ": " + e.Message
}

// LogSink is an append-only log safe for concurrent appends from native
// threads. Every entry is mirrored to a zerolog logger.
//
// DefaultSink is process-wide shared state: the native log callback writes
// into whichever sink the last successful load installed, and TryLoad
// resets its sink before every attempt.
type LogSink struct {
	mu      sync.Mutex
	entries []LogEntry
	logger  zerolog.Logger
}

// DefaultSink is the sink used by loaders created without WithSink.
var DefaultSink = NewLogSink(zerolog.Nop())

// NewLogSink creates a sink mirroring entries to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// SetLogger replaces the mirror logger.
func (s *LogSink) SetLogger(logger zerolog.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Append records an entry.
func (s *LogSink) Append(e LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	logger := s.logger
	s.mu.Unlock()

	ev := logger.WithLevel(e.Level).Str("source", e.Source.String())
	if e.Module != "" {
		ev = ev.Str("module", e.Module)
	}
	ev.Msg(e.Message)
}

// Entries returns a snapshot of every entry in append order.
func (s *LogSink) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *LogSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset discards all entries.
func (s *LogSink) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// moduleLog appends loader entries for one module.
type moduleLog struct {
	sink   *LogSink
	module string
}

func (l moduleLog) add(level zerolog.Level, msg string) {
	l.sink.Append(LogEntry{Level: level, Source: SourceLoader, Module: l.module, Message: msg})
}

func (l moduleLog) Debug(msg string) { l.add(zerolog.DebugLevel, msg) }
func (l moduleLog) Info(msg string)  { l.add(zerolog.InfoLevel, msg) }
func (l moduleLog) Warn(msg string)  { l.add(zerolog.WarnLevel, msg) }
func (l moduleLog) Error(msg string) { l.add(zerolog.ErrorLevel, msg) }

// LogConfig configures NewLogger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// DefaultLogConfig returns info-level console logging.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "console"}
}

// NewLogger builds a zerolog logger writing to stderr.
func NewLogger(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	w := out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", "avload").
		Logger()
}
