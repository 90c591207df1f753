package logging

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry down to TraceLevel. Hand Underlying() to
// services under test and assert on what they logged.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a recording logger with the default redaction
// settings.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset drops recorded entries.
func (t *TestLogger) Reset() { t.observed.TakeAll() }

func (t *TestLogger) find(level zapcore.Level, msg string) []observer.LoggedEntry {
	return t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).All()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if len(t.find(level, msg)) == 0 {
		tb.Errorf("no %v entry containing %q; have %v", level, msg, t.messages())
	}
}

// AssertNotLogged fails tb if an entry at level contains msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := len(t.find(level, msg)); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, msg)
	}
}

// AssertField fails tb unless an entry containing msg carries key with a
// value that prints like want, so zap.Int("n", 3) matches 3.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessageSnippet(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && fmt.Sprint(got) == fmt.Sprint(want) {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%v", msg, key, want)
}

// AssertNoSecrets fails tb when a sensitive field is logged unredacted,
// when a redaction pattern matches a message or string field, or when any
// of the literal values appears anywhere in the output.
func (t *TestLogger) AssertNoSecrets(tb testing.TB, literals ...string) {
	tb.Helper()
	cfg := NewDefaultConfig().Redaction
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		for _, lit := range literals {
			if lit != "" && strings.Contains(s, lit) {
				return true
			}
		}
		return false
	}

	for _, e := range t.observed.All() {
		if leaks(e.Message) {
			tb.Errorf("secret in message %q", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if sensitiveKey(f.Key, cfg.Fields) && f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") {
				tb.Errorf("field %q logged unredacted", f.Key)
			}
			if leaks(f.String) {
				tb.Errorf("secret in field %q of %q", f.Key, e.Message)
			}
		}
	}
}

// AssertTraceCorrelation fails tb unless an entry containing msg has a
// trace_id field.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, e := range t.observed.FilterMessageSnippet(msg).All() {
		if _, ok := e.ContextMap()["trace_id"]; ok {
			return
		}
	}
	tb.Errorf("no entry containing %q has trace_id", msg)
}

func (t *TestLogger) messages() []string {
	all := t.observed.All()
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.Message
	}
	return out
}

func sensitiveKey(key string, fields []string) bool {
	key = strings.ToLower(key)
	for _, f := range fields {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}
