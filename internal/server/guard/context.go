package guard

import (
	"context"
	"net/http"
)

type requestContextKey struct{}

// WithHTTPRequest stashes the raw HTTP request in an execution context so a
// wrapping transport (GraphQL) can surface it to the guard.
func WithHTTPRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestContextKey{}, r)
}

// HTTPRequestFromContext fetches the stashed HTTP request, if any.
func HTTPRequestFromContext(ctx context.Context) (*http.Request, bool) {
	r, ok := ctx.Value(requestContextKey{}).(*http.Request)
	return r, ok
}
