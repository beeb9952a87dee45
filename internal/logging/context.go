package logging

import (
	"context"
	"log/slog"

	"cgmanager/internal/services"
)

// Structured field keys shared by every component.
const (
	FieldComponent     = "component"
	FieldChannel       = "channel"
	FieldEffectID      = "effect_id"
	FieldRouteID       = "route_id"
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)

// ContextFields returns the request id and channel carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	if ch, ok := services.ChannelFromContext(ctx); ok {
		fields = append(fields, Channel(ch))
	}
	return fields
}

// WithContext binds the fields of ctx to logger. A nil logger discards.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
