// Package corrid generates and carries correlation IDs through a
// context.Context. It generalizes the teacher's per-HTTP-request ID
// concept to the two correlation scopes this repo actually has: one
// ingest cycle's crawl-all-feeds pass, and one dispatch tick's
// scan-all-channels pass. Neither process serves HTTP requests, so
// there is no header to read the ID from; New always mints a fresh one.
package corrid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	cycleIDKey contextKey = "cycle_id"
	tickIDKey  contextKey = "tick_id"
)

// New mints a fresh correlation ID.
func New() string {
	return uuid.New().String()
}

// WithCycleID attaches an ingest cycle's correlation ID to ctx.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext retrieves the ingest cycle ID, or "" if none is set.
func CycleIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTickID attaches a dispatch tick's correlation ID to ctx.
func WithTickID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tickIDKey, id)
}

// TickIDFromContext retrieves the dispatch tick ID, or "" if none is set.
func TickIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(tickIDKey).(string); ok {
		return id
	}
	return ""
}
