package testutil

import (
	"context"
	"net/http"

	"fairlaunch/internal/platform/middleware"
)

// WithCaller adds an authenticated caller ID to the request context,
// simulating what the auth middleware does for a valid bearer token.
func WithCaller(req *http.Request, callerID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyCallerID, callerID)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
