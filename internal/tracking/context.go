package tracking

import (
	"context"

	"github.com/google/uuid"
)

type runIDKey struct{}

// WithRunID tags ctx with the identifier of the current run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run identifier of ctx, or a fresh one.
func RunIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}

	return uuid.NewString()
}
