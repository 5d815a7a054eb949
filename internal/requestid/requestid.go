// Package requestid tags every dashboard request with a correlation ID
// so the log lines and the response for one request can be tied together.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New tags ctx with a freshly generated ID and returns both.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// WithRequestID returns a copy of ctx carrying the given ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the ID carried by ctx. Contexts that were never
// tagged (background work, tests) get a fresh one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
