// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level between Info and Debug, so verbose and debug output
// sit on two levels below zap's own.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

// Logger writes levelled messages through a zap core.  The verbosity
// gate stays ours; zap handles encoding and extra sinks.  Children made
// by With write through the parent's locked output.
type Logger struct {
	level      LogLevel
	sink       zapcore.WriteSyncer
	timestamps bool // if true, prepend timestamps
	fields     []interface{}
	extra      []zapcore.Core

	mu    sync.Mutex
	sugar *zap.SugaredLogger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level:      LogLevel(verbosity),
		sink:       zapcore.Lock(os.Stderr),
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	l.timestamps = on
	l.sugar = nil
	l.mu.Unlock()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.sink = zapcore.Lock(zapcore.AddSync(w))
	l.sugar = nil
	l.mu.Unlock()
}

// AddSink tees every message that passes the verbosity gate into core
// as well, e.g. an event log on Windows.
func (l *Logger) AddSink(core zapcore.Core) {
	l.mu.Lock()
	l.extra = append(l.extra, core)
	l.sugar = nil
	l.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that attaches the given key/value pairs
// to every message.  The child shares the parent's output and sinks.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{
		level:      l.level,
		sink:       l.sink,
		timestamps: l.timestamps,
		fields:     fields,
		extra:      l.extra,
	}
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.InfoLevel, format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.WarnLevel, format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write(zapVerbose, format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write(zapDebug, format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

// Sync flushes any buffered output.
func (l *Logger) Sync() error {
	return l.logger().Sync()
}

func (l *Logger) write(level zapcore.Level, format string, args ...interface{}) {
	l.logger().Logf(level, format, args...)
}

func (l *Logger) logger() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sugar == nil {
		l.sugar = l.build()
	}
	return l.sugar
}

func (l *Logger) build() *zap.SugaredLogger {
	enc := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      encodeLevel,
		ConsoleSeparator: " ",
		EncodeDuration:   zapcore.StringDurationEncoder,
	}
	if l.timestamps {
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	// The verbosity gate already ran; let everything through.
	all := zap.LevelEnablerFunc(func(zapcore.Level) bool { return true })
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(enc), l.sink, all),
	}
	cores = append(cores, l.extra...)

	return zap.New(zapcore.NewTee(cores...)).Sugar().With(l.fields...)
}

func encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + LevelTag(level) + "]")
}

// LevelTag returns the three-letter tag used for a zap level.
func LevelTag(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return "ERR"
	case level == zapcore.WarnLevel:
		return "WRN"
	case level == zapcore.InfoLevel:
		return "INF"
	case level == zapVerbose:
		return "VRB"
	case level <= zapDebug:
		return "DBG"
	}
	return fmt.Sprintf("L%d", level)
}

// Since formats the elapsed time since t for log lines.
func Since(t time.Time) string {
	return time.Since(t).Truncate(time.Millisecond).String()
}
