// Package operator tags requests with the acting operator. The tag is
// recorded on reviews and in logs; it is not an authorization check.
package operator

import (
	"log/slog"
	"net/http"
	"strings"

	"pollwatch/pkg/requestcontext"
)

const (
	HeaderOperatorID   = "X-Operator-ID"
	HeaderOperatorRole = "X-Operator-Role"

	// RoleAnonymous is used when no role header is sent.
	RoleAnonymous = "anonymous"
)

var knownRoles = map[string]struct{}{
	"admin":    {},
	"observer": {},
	"analyst":  {},
}

// Tag reads the operator headers into the request context. Unknown roles are
// kept verbatim but logged so misconfigured clients are visible.
func Tag(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			op := requestcontext.OperatorTag{
				ID:   strings.TrimSpace(r.Header.Get(HeaderOperatorID)),
				Role: strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderOperatorRole))),
			}
			if op.Role == "" {
				op.Role = RoleAnonymous
			} else if _, ok := knownRoles[op.Role]; !ok {
				logger.WarnContext(ctx, "unknown operator role",
					"request_id", requestcontext.RequestID(ctx),
					"role", op.Role,
				)
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithOperator(ctx, op)))
		})
	}
}
