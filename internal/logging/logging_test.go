package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/autopatchd/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestFromObservability(t *testing.T) {
	cfg, err := FromObservability(config.ObservabilityConfig{
		ServiceName: "autopatchd-staging",
		LogLevel:    "trace",
		LogFormat:   "console",
	})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "autopatchd-staging", cfg.Fields["service"])
	assert.False(t, cfg.Output.OTEL)

	_, err = FromObservability(config.ObservabilityConfig{LogLevel: "loud"})
	assert.Error(t, err)
	_, err = FromObservability(config.ObservabilityConfig{LogFormat: "xml"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("verbose")
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := WithTicketID(context.Background(), "ticket-42")
	ctx = WithAgent(ctx, "autopatch-architect-agent")
	ctx = WithRequestID(ctx, "req_1")

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	keys := map[string]string{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = f.String
	}
	assert.Equal(t, map[string]string{
		"trace_id":     traceID.String(),
		"span_id":      spanID.String(),
		"ticket.id":    "ticket-42",
		"ticket.agent": "autopatch-architect-agent",
		"request.id":   "req_1",
	}, keys)

	tl := NewTestLogger()
	tl.Debug(ctx, "plan written")
	tl.AssertTraceCorrelation(t, "plan written")
}

func TestWithTicketID_RejectsInvalid(t *testing.T) {
	ctx := WithTicketID(context.Background(), "id\nforged: entry")
	assert.Empty(t, TicketIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(WithTicketID(ctx, "t1"), "dispatched")

	tl.AssertLogged(t, zapcore.InfoLevel, "dispatched")
	tl.AssertField(t, "dispatched", "ticket.id", "t1")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "calling rpc", Time: time.Now()}, []zapcore.Field{
		zap.String("service_role_key", "eyJhbGciOi"),
		zap.String("header", "Bearer abc.def"),
		zap.String("ticket", "t1"),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.NotContains(t, out, "eyJhbGciOi")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, `"service_role_key":"[REDACTED]"`)
	assert.Contains(t, out, `"header":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"ticket":"t1"`)
}

func TestRedactingEncoder_NestedKeysAndTokens(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "approval notifier"}, []zapcore.Field{
		zap.String("telegram_token", "plain"),
		zap.String("supabase.service_role_key", "plain"),
		zap.String("chat_message", "bot 123456789:AAHfiqksKZ8WmR2zSjiQ7_v4TMAKdiHm9T0 online"),
		zap.String("tokens_used", "42"),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, `"telegram_token":"[REDACTED]"`)
	assert.Contains(t, out, `"supabase.service_role_key":"[REDACTED]"`)
	assert.Contains(t, out, `"chat_message":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"tokens_used":"42"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{zap.String("token", "visible")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "visible")
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "connected", Secret("credentials", config.Secret("hunter2")), RedactedString("dsn", "postgres://u:p@h"))

	entries := tl.FilterMessage("connected").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, map[string]any{"credentials": "[REDACTED:7]"}, ctx["credentials"])
	assert.Equal(t, "[REDACTED:16]", ctx["dsn"])
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{Enabled: true, Tick: time.Minute, Initial: 2, Thereafter: 0})
	logger := zap.New(sampled)

	for range 10 {
		logger.Info("poll cycle")
		logger.Error("dispatch failed")
	}

	assert.Equal(t, 2, observed.FilterMessage("poll cycle").Len())
	assert.Equal(t, 10, observed.FilterMessage("dispatch failed").Len())
}

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "ok", zap.String("ticket", "t1"), RedactedString("api_key", "sk"))
	tl.AssertNoSecrets(t)
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "ok")

	tl.Reset()
	assert.Empty(t, tl.All())
}
