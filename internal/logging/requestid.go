package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "requestId"

// GenerateRequestID creates an 8-character request ID from a random UUID.
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns base annotated with the request ID carried by ctx, if any.
func FromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return base.With().Str("request_id", id).Logger()
	}
	return base
}
