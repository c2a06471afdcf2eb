package logger

import (
	"context"

	"go.uber.org/zap"
)

// Field names shared by every structured log line
const (
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldContentID = "content_id"
	FieldComponent = "component"
	FieldOperation = "operation"

	FieldMethod     = "method"
	FieldPath       = "path"
	FieldURL        = "url"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldFile       = "file"

	FieldError      = "error"
	FieldErrorCount = "error_count"
	FieldCount      = "count"
	FieldState      = "state"

	FieldSchemaType = "schema_type"
	FieldNodeID     = "node_id"
	FieldReason     = "reason"
	FieldSource     = "source"
	FieldAttempt    = "attempt"
	FieldRetryCount = "retry_count"
	FieldConfidence = "confidence"
	FieldModel      = "model"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	contentIDKey contextKey = "logger_content_id"
	componentKey contextKey = "logger_component"
)

// WithRequestID tags ctx with the HTTP request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithContentID tags ctx with the content item being processed
func WithContentID(ctx context.Context, contentID string) context.Context {
	return context.WithValue(ctx, contentIDKey, contentID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext returns the tags set on ctx as key-value pairs for the
// *w logging methods
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, FieldRequestID, v)
	}
	if v, ok := ctx.Value(contentIDKey).(string); ok && v != "" {
		fields = append(fields, FieldContentID, v)
	}
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		fields = append(fields, FieldComponent, v)
	}
	return fields
}

// FromContext returns base, or the global Logger when base is nil, carrying
// the tags set on ctx
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// ComponentLogger returns the global logger named for one component
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
