package models

import "context"

type requestIdContextKey struct{}

// WithRequestId attaches a correlation id to a context so that provider calls
// made on behalf of one quote request can be grouped in the logs.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdContextKey{}, id)
}

// RequestId returns the correlation id from the context, or "" if absent.
func RequestId(ctx context.Context) string {
	id, _ := ctx.Value(requestIdContextKey{}).(string)
	return id
}
