package testutil

import (
	"context"
	"net/http"
	"time"

	"pollwatch/pkg/platform/middleware/operator"
	"pollwatch/pkg/requestcontext"
)

// WithOperator tags the request context the way the operator middleware
// would.
func WithOperator(req *http.Request, id, role string) *http.Request {
	ctx := requestcontext.WithOperator(req.Context(), requestcontext.OperatorTag{ID: id, Role: role})
	return req.WithContext(ctx)
}

// WithOperatorHeaders sets the headers the operator middleware reads, for
// requests that go through the full router.
func WithOperatorHeaders(req *http.Request, id, role string) *http.Request {
	req.Header.Set(operator.HeaderOperatorID, id)
	req.Header.Set(operator.HeaderOperatorRole, role)
	return req
}

// Context returns a background context pinned to at, with a request id.
func Context(at time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), at)
	return requestcontext.WithRequestID(ctx, "test-request")
}
