package id

import "context"

type correlationKey struct{}

// WithCorrelation returns a context carrying the given correlation id.
func WithCorrelation(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// Correlation returns the correlation id carried by ctx, generating a new
// one when absent so provider calls are always traceable.
func Correlation(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok && v != "" {
		return v
	}
	return GetXID()
}
