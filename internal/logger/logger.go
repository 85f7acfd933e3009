// Package logger provides structured, level-gated logging for the redaction
// engine and its surrounding services, built on go.uber.org/zap.
//
// Every call site still goes through the same narrow facade the rest of the
// module depends on (Debug/Info/Warn/Error and their f-variants, keyed by an
// "action" tag rather than a caller-supplied field list), but each line is
// now produced by a zap core, which gets the gating, allocation-light
// encoding and eventual JSON/console interchangeability that come with it.
//
// Levels (lowest to highest): debug, info, warn, error.
// Entries below the configured minimum level never reach the core's encoder.
//
// Usage:
//
//	log := logger.New("ENGINE", cfg.LogLevel)
//	log.Info("redact_request", "127 runes processed, 3 spans redacted")
//	log.Errorf("detector_panic", "detector %s: %v", name, err)
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a log severity.
type Level int

// Log severity constants, ordered lowest to highest.
const (
	LevelDebug Level = iota // fine-grained diagnostic output
	LevelInfo               // normal operational messages
	LevelWarn               // unexpected but recoverable conditions
	LevelError              // failures requiring attention
)

// Logger writes structured log lines for a single module.
type Logger struct {
	module string
	level  Level
	atom   zap.AtomicLevel
	zl     *zap.Logger
}

// New creates a Logger for the given module, gated at the given level string.
// Unrecognized level strings default to "info". Output goes to stderr as a
// console-encoded line carrying a "module" name and an "action" field.
func New(module, levelStr string) *Logger {
	atom := zap.NewAtomicLevelAt(toZapLevel(parseLevel(levelStr)))
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(os.Stderr), atom)
	return newLogger(module, levelStr, atom, core)
}

// newWithCore builds a Logger over a caller-supplied core, letting tests
// swap in an observer core without losing the SetLevel/parseLevel plumbing.
func newWithCore(module, levelStr string, atom zap.AtomicLevel, core zapcore.Core) *Logger {
	return newLogger(module, levelStr, atom, core)
}

func newLogger(module, levelStr string, atom zap.AtomicLevel, core zapcore.Core) *Logger {
	upper := strings.ToUpper(module)
	return &Logger{
		module: upper,
		level:  parseLevel(levelStr),
		atom:   atom,
		zl:     zap.New(core).Named(upper),
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "module",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.level = parseLevel(levelStr)
	l.atom.SetLevel(toZapLevel(l.level))
}

// Sync flushes any buffered log entries. Callers should defer it once at
// process startup, right after constructing the root Logger.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.write(zapcore.DebugLevel, action, msg) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.write(zapcore.InfoLevel, action, msg) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.write(zapcore.WarnLevel, action, msg) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.write(zapcore.ErrorLevel, action, msg) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	l.Debug(action, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.Info(action, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
}

// Fatal logs at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatal(action, msg string) {
	l.Error(action, msg)
	os.Exit(1)
}

// Fatalf logs a formatted message at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.Fatal(action, fmt.Sprintf(format, args...))
}

// write emits one log entry tagged with the action through the zap core.
// The core's AtomicLevel does the actual gating; l.level only mirrors it for
// introspection.
func (l *Logger) write(zlvl zapcore.Level, action, msg string) {
	field := zap.String("action", action)
	switch zlvl {
	case zapcore.DebugLevel:
		l.zl.Debug(msg, field)
	case zapcore.WarnLevel:
		l.zl.Warn(msg, field)
	case zapcore.ErrorLevel:
		l.zl.Error(msg, field)
	default:
		l.zl.Info(msg, field)
	}
}

func toZapLevel(lv Level) zapcore.Level {
	switch lv {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// parseLevel converts a string to a Level, defaulting to LevelInfo.
func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
