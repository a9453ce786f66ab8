package logging

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
	PanicLevel LogLevel = "panic"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	ownerIDKey
)

// Logger holds the zerolog logger instance
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new logger instance with the specified log level
func NewLogger(logLevel LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		logger: logger,
	}
}

// NewLoggerFrom wraps an existing zerolog logger, keeping its level and fields
func NewLoggerFrom(zl *zerolog.Logger) *Logger {
	return &Logger{logger: *zl}
}

// WithContext adds contextual fields to the logger
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	return FromContext(ctx, l.logger)
}

// FromContext enriches base with the request id, owner and trace ids found in ctx
func FromContext(ctx context.Context, base zerolog.Logger) *zerolog.Logger {
	logCtx := base.With()

	if reqID := GetRequestID(ctx); reqID != "" {
		logCtx = logCtx.Str("req_id", reqID)
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		logCtx = logCtx.Str("trace_id", spanCtx.TraceID().String())
		logCtx = logCtx.Str("span_id", spanCtx.SpanID().String())
	}

	if owner := GetOwnerID(ctx); owner != uuid.Nil {
		logCtx = logCtx.Str("owner_id", owner.String())
	}

	contextualLogger := logCtx.Logger()
	return &contextualLogger
}

// LogRejectedUpload logs an upload that failed content validation
func (l *Logger) LogRejectedUpload(store, claimedName, detectedType, reason string) {
	l.logger.Warn().
		Str("store", store).
		Str("claimed_name", claimedName).
		Str("detected_type", detectedType).
		Str("reason", reason).
		Msg("Upload rejected")
}

// LogCompensationFailure logs an undo step that could not be completed
func (l *Logger) LogCompensationFailure(step string, err error) {
	l.logger.Error().
		Str("step", step).
		Err(err).
		Msg("Compensation step failed")
}

// ContextWithRequestID stores the request id for later log enrichment
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithOwnerID stores the acting owner for later log enrichment
func ContextWithOwnerID(ctx context.Context, owner uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, owner)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetOwnerID extracts the acting owner from context
func GetOwnerID(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ownerIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
