package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestLogger returns a Logger backed by an observer core instead of
// stderr, plus the observed-logs handle tests inspect.
func newTestLogger(module, level string) (*Logger, *observer.ObservedLogs) {
	atom := zap.NewAtomicLevelAt(toZapLevel(parseLevel(level)))
	core, obs := observer.New(atom)
	return newWithCore(module, level, atom, core), obs
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"bogus", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"  error  ", LevelError},
	}
	for _, c := range cases {
		if got := parseLevel(c.input); got != c.want {
			t.Errorf("parseLevel(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestNew_ModuleUppercased(t *testing.T) {
	l := New("engine", "info")
	if l.module != "ENGINE" {
		t.Errorf("expected uppercased module, got %q", l.module)
	}
}

func TestLevelFiltering_DebugSuppressedAtInfo(t *testing.T) {
	l, obs := newTestLogger("TEST", "info")
	l.Debug("action", "debug msg")
	if obs.Len() != 0 {
		t.Errorf("expected debug to be suppressed at info level, got %d entries", obs.Len())
	}
}

func TestLevelFiltering_InfoPassesAtInfo(t *testing.T) {
	l, obs := newTestLogger("TEST", "info")
	l.Info("action", "hello")
	if obs.Len() != 1 || obs.All()[0].Message != "hello" {
		t.Errorf("info message should appear, got: %+v", obs.All())
	}
}

func TestLevelFiltering_WarnPassesAtInfo(t *testing.T) {
	l, obs := newTestLogger("TEST", "info")
	l.Warn("action", "warning msg")
	if obs.Len() != 1 || obs.All()[0].Message != "warning msg" {
		t.Errorf("warn should appear at info level, got: %+v", obs.All())
	}
}

func TestLevelFiltering_ErrorPassesAtWarn(t *testing.T) {
	l, obs := newTestLogger("TEST", "warn")
	l.Error("action", "error msg")
	if obs.Len() != 1 || obs.All()[0].Message != "error msg" {
		t.Errorf("error should appear at warn level, got: %+v", obs.All())
	}
}

func TestLevelFiltering_InfoSuppressedAtWarn(t *testing.T) {
	l, obs := newTestLogger("TEST", "warn")
	l.Info("action", "info msg")
	if obs.Len() != 0 {
		t.Errorf("info should be suppressed at warn level, got %d entries", obs.Len())
	}
}

func TestLevelFiltering_DebugPassesAtDebug(t *testing.T) {
	l, obs := newTestLogger("TEST", "debug")
	l.Debug("action", "debug msg")
	if obs.Len() != 1 || obs.All()[0].Message != "debug msg" {
		t.Errorf("debug should appear at debug level, got: %+v", obs.All())
	}
}

func TestSetLevel_ChangesFilter(t *testing.T) {
	l, obs := newTestLogger("TEST", "error")

	l.Info("action", "should be hidden")
	if obs.Len() != 0 {
		t.Errorf("info suppressed at error level, got %d entries", obs.Len())
	}

	l.SetLevel("debug")
	l.Info("action", "should appear now")
	if obs.Len() != 1 || obs.All()[0].Message != "should appear now" {
		t.Errorf("info should appear after SetLevel(debug), got: %+v", obs.All())
	}
}

func TestFormattedMethods(t *testing.T) {
	cases := []struct {
		name string
		fn   func(l *Logger)
		want string
	}{
		{"Debugf", func(l *Logger) { l.Debugf("a", "val=%d", 42) }, "val=42"},
		{"Infof", func(l *Logger) { l.Infof("a", "val=%d", 42) }, "val=42"},
		{"Warnf", func(l *Logger) { l.Warnf("a", "val=%d", 42) }, "val=42"},
		{"Errorf", func(l *Logger) { l.Errorf("a", "val=%d", 42) }, "val=42"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l, obs := newTestLogger("TEST", "debug")
			c.fn(l)
			if obs.Len() != 1 || obs.All()[0].Message != c.want {
				t.Errorf("%s: expected message %q, got: %+v", c.name, c.want, obs.All())
			}
		})
	}
}

func TestOutputFormat_ContainsExpectedFields(t *testing.T) {
	l, obs := newTestLogger("MYMOD", "debug")
	l.Info("my_action", "the message")

	if obs.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", obs.Len())
	}
	entry := obs.All()[0]
	if entry.LoggerName != "MYMOD" {
		t.Errorf("expected module name MYMOD, got %q", entry.LoggerName)
	}
	if entry.Message != "the message" {
		t.Errorf("expected message %q, got %q", "the message", entry.Message)
	}
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %v", entry.Level)
	}
	ctx := entry.ContextMap()
	if ctx["action"] != "my_action" {
		t.Errorf("expected action field my_action, got %v", ctx["action"])
	}
}
