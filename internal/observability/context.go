package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	searchKeyKey contextKey = "search_key"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithSearchKey adds the cache key of the current search to the context.
func WithSearchKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, searchKeyKey, key)
}

// SearchKeyFromContext retrieves the search cache key from context.
// Returns empty string if not present.
func SearchKeyFromContext(ctx context.Context) string {
	if v := ctx.Value(searchKeyKey); v != nil {
		if key, ok := v.(string); ok {
			return key
		}
	}
	return ""
}
