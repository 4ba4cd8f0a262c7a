package graphqlapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey int

const (
	authorizationHeaderKey contextKey = iota
	requestIDKey
)

// withRequestContext stashes the bearer token and a per-request
// correlation ID (github.com/google/uuid) onto the context, so
// resolvers can authorize and the per-request log line carries an ID.
func withRequestContext(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), authorizationHeaderKey, r.Header.Get("Authorization"))
	ctx = context.WithValue(ctx, requestIDKey, uuid.NewString())
	return r.WithContext(ctx)
}

func authorizationHeader(ctx context.Context) string {
	v, _ := ctx.Value(authorizationHeaderKey).(string)
	return v
}

func requestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
