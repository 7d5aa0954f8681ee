// Package logger provides structured logging functionality for the flow engine.
// It keeps a small field-based API on top of zap so call sites never import zap directly.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general operational information.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
	// LevelFatal is for fatal errors that require program termination.
	LevelFatal
)

// String returns the string representation of the log level.
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Field represents a key-value pair for structured logging.
type Field = zap.Field

// Common field constructors for convenience.
func String(key, value string) Field          { return zap.String(key, value) }
func Int(key string, value int) Field         { return zap.Int(key, value) }
func Int64(key string, value int64) Field     { return zap.Int64(key, value) }
func Float64(key string, value float64) Field { return zap.Float64(key, value) }
func Bool(key string, value bool) Field       { return zap.Bool(key, value) }
func Strings(key string, v []string) Field    { return zap.Strings(key, v) }

// Err creates an error field.
func Err(err error) Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return zap.Time(key, value)
}

// Logger is the main logger struct.
type Logger struct {
	z *zap.Logger
}

// Options configures the logger.
type Options struct {
	Output     io.Writer
	Level      Level
	AddCaller  bool
	CallerSkip int
	// Development switches to the human-readable console encoder.
	Development bool
}

// New creates a new Logger with the given options.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if opts.Development {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(opts.Output), opts.Level.zapLevel())

	zopts := []zap.Option{zap.AddCallerSkip(1 + opts.CallerSkip)}
	if opts.AddCaller {
		zopts = append(zopts, zap.AddCaller())
	}

	return &Logger{z: zap.New(core, zopts...)}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// With returns a new Logger with the given fields added.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Field) {
	l.z.Debug(msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Field) {
	l.z.Info(msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Field) {
	l.z.Warn(msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Field) {
	l.z.Error(msg, fields...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Flow-engine logging helpers.
func UserID(id string) Field         { return String("user_id", id) }
func FlowID(id string) Field         { return String("flow_id", id) }
func SnapshotID(id string) Field     { return String("snapshot_id", id) }
func AssignmentID(id string) Field   { return String("assignment_id", id) }
func ComponentID(id string) Field    { return String("component_id", id) }
func ComponentType(t string) Field   { return String("component_type", t) }
func Action(name string) Field       { return String("action", name) }
func StepOrder(order int) Field      { return Int("step_order", order) }
func Component(name string) Field    { return String("component", name) }
func Operation(name string) Field    { return String("operation", name) }
func Latency(d time.Duration) Field  { return Duration("latency", d) }
func Status(status string) Field     { return String("status", status) }
func Percentage(p float64) Field     { return Float64("percentage", p) }
