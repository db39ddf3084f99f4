// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if ws := WorkspaceFromContext(ctx); ws != "" {
		fields = append(fields, zap.String("workspace", ws))
	}

	if id := CheckinIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("checkin.id", id))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type workspaceCtxKey struct{}
type checkinCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// WithWorkspace tags the context with the workspace root being checked in.
func WithWorkspace(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, workspaceCtxKey{}, root)
}

// WorkspaceFromContext returns the workspace root, or "".
func WorkspaceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(workspaceCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithCheckinID tags the context with a checkin attempt identifier.
func WithCheckinID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, checkinCtxKey{}, id)
}

// CheckinIDFromContext returns the checkin attempt identifier, or "".
func CheckinIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(checkinCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds an HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
