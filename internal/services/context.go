package services

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	channelKey   contextKey = "channel"
)

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithChannel annotates context with the engine channel an operation targets.
func WithChannel(ctx context.Context, channel int) context.Context {
	if channel <= 0 {
		return ctx
	}
	return context.WithValue(ctx, channelKey, channel)
}

// ChannelFromContext returns the channel number if present.
func ChannelFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(channelKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}
