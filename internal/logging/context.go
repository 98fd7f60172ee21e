package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
)

// ContextWithRequestID returns a context carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithIdentity returns a context whose log lines carry the identity subject.
func ContextWithIdentity(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, identityKey, subject)
}

// Ctx returns the global logger enriched with request_id and identity from ctx.
//
//	logging.Ctx(ctx).Info().Str("event_id", id).Msg("registration admitted")
func Ctx(ctx context.Context) *zerolog.Logger {
	c := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	if subject, ok := ctx.Value(identityKey).(string); ok && subject != "" {
		c = c.Str("identity", subject)
	}
	l := c.Logger()
	return &l
}
