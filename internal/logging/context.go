package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	ticketCtxKey  struct{}
	agentCtxKey   struct{}
	requestCtxKey struct{}
	loggerCtxKey  struct{}
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := TicketIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("ticket.id", id))
	}
	if agent := AgentFromContext(ctx); agent != "" {
		fields = append(fields, zap.String("ticket.agent", agent))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// WithTicketID tags ctx with the ticket being processed. Invalid IDs are
// ignored so untrusted input never reaches the log stream.
func WithTicketID(ctx context.Context, id string) context.Context {
	if !validID(id) {
		return ctx
	}
	return context.WithValue(ctx, ticketCtxKey{}, id)
}

// TicketIDFromContext returns the ticket ID or "".
func TicketIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ticketCtxKey{}).(string)
	return s
}

// WithAgent tags ctx with the assigned agent.
func WithAgent(ctx context.Context, agent string) context.Context {
	if !validID(agent) {
		return ctx
	}
	return context.WithValue(ctx, agentCtxKey{}, agent)
}

// AgentFromContext returns the agent or "".
func AgentFromContext(ctx context.Context) string {
	s, _ := ctx.Value(agentCtxKey{}).(string)
	return s
}

// WithRequestID tags ctx with an HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if !validID(id) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
