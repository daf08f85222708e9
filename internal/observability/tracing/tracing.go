package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type traceID struct{}

// InjectTraceID tags the context logger and the context itself with a fresh
// trace id, one per command or watcher tick.
func InjectTraceID(ctx context.Context) context.Context {
	id := uuid.New().String()
	logger := log.With().Str("traceId", id).Logger()
	return context.WithValue(logger.WithContext(ctx), traceID{}, id)
}

// TraceID returns the trace id of ctx, empty when none was injected.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceID{}).(string)
	return id
}
