package operator

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"pollwatch/pkg/requestcontext"
)

func TestTag(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name   string
		id     string
		role   string
		wantOp requestcontext.OperatorTag
	}{
		{"known role", "ops-7", "admin", requestcontext.OperatorTag{ID: "ops-7", Role: "admin"}},
		{"role is normalised", " ops-7 ", " Analyst ", requestcontext.OperatorTag{ID: "ops-7", Role: "analyst"}},
		{"unknown role kept", "field-1", "returning_officer", requestcontext.OperatorTag{ID: "field-1", Role: "returning_officer"}},
		{"no headers", "", "", requestcontext.OperatorTag{Role: RoleAnonymous}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got requestcontext.OperatorTag
			h := Tag(logger)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = requestcontext.Operator(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/results/PU-101/verify", nil)
			if tc.id != "" {
				req.Header.Set(HeaderOperatorID, tc.id)
			}
			if tc.role != "" {
				req.Header.Set(HeaderOperatorRole, tc.role)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tc.wantOp, got)
		})
	}
}
