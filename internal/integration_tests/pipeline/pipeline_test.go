package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollwatch/internal/audit"
	audithandler "pollwatch/internal/audit/handler"
	auditstore "pollwatch/internal/audit/store"
	"pollwatch/internal/feed"
	"pollwatch/internal/insight"
	insighthandler "pollwatch/internal/insight/handler"
	"pollwatch/internal/notify"
	notifyhandler "pollwatch/internal/notify/handler"
	"pollwatch/internal/platform/metrics"
	"pollwatch/internal/registry"
	registryhandler "pollwatch/internal/registry/handler"
	"pollwatch/internal/results"
	resultshandler "pollwatch/internal/results/handler"
	resultsmetrics "pollwatch/internal/results/metrics"
	"pollwatch/internal/results/service"
	"pollwatch/internal/results/store"
	httptransport "pollwatch/internal/transport/http"
	"pollwatch/pkg/testutil"
)

type app struct {
	router     http.Handler
	service    *service.Service
	dispatcher *notify.Dispatcher
	auditor    *audit.Publisher
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	catalog := registry.NewSeedCatalog()

	dispatcher := notify.New(100, notify.WithLogger(logger))
	auditor := audit.NewPublisher(auditstore.NewInMemoryStore(100), audit.WithLogger(logger))
	insightClient := insight.NewClient(nil, insight.WithLogger(logger))
	svc := service.New(catalog, store.NewInMemoryStore(),
		service.WithLogger(logger),
		service.WithMetrics(resultsmetrics.New(reg)),
		service.WithDispatcher(dispatcher),
		service.WithAuditor(auditor),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = auditor.Run(ctx) }()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   logger,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	},
		resultshandler.New(svc, logger),
		notifyhandler.New(dispatcher, logger),
		insighthandler.New(svc, catalog, insightClient, logger),
		registryhandler.New(catalog),
		audithandler.New(auditor, logger),
	)
	return &app{router: router, service: svc, dispatcher: dispatcher, auditor: auditor}
}

type submitResponse struct {
	UnitID   string            `json:"unit_id"`
	Status   results.Status    `json:"status"`
	Findings []results.Finding `json:"findings"`
	Version  int64             `json:"version"`
}

type snapshotResponse struct {
	results.Snapshot
	Turnout float64 `json:"turnout"`
}

type notificationsResponse struct {
	Notifications []notify.Event `json:"notifications"`
	Unread        int            `json:"unread"`
}

func TestResultLifecycle(t *testing.T) {
	a := newApp(t)
	n, err := feed.SeedReference(context.Background(), a.service, time.Now())
	require.NoError(t, err)
	require.Equal(t, 5, n)

	testutil.Given(t, "the reference results are loaded", func(t *testing.T) {
		rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodGet, "/v1/snapshot", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
		snap := testutil.UnmarshalResponse[snapshotResponse](t, rr)
		assert.Equal(t, int64(5), snap.ReportedUnits)
		assert.Equal(t, int64(3500), snap.TotalRegistered)
		assert.InDelta(t, 2860.0/3500.0, snap.Turnout, 0.0001)
	})

	testutil.When(t, "an agent submits an over-accredited result", func(t *testing.T) {
		rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodPost, "/v1/results", map[string]any{
			"unit_id":           "PU-110",
			"accredited_voters": 510,
			"votes":             map[string]int64{"party_a": 200, "party_b": 190, "party_c": 40},
		}))

		testutil.Then(t, "it is flagged with an over-accreditation finding", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusOK)
			resp := testutil.UnmarshalResponse[submitResponse](t, rr)
			assert.Equal(t, results.StatusFlagged, resp.Status)
			require.NotEmpty(t, resp.Findings)
			assert.Equal(t, results.KindOverAccreditation, resp.Findings[0].Kind)
			assert.Equal(t, results.SeverityHigh, resp.Findings[0].Severity)
		})

		testutil.Then(t, "an anomaly notification is raised", func(t *testing.T) {
			rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodGet, "/v1/notifications?limit=1", nil))
			resp := testutil.UnmarshalResponse[notificationsResponse](t, rr)
			require.Len(t, resp.Notifications, 1)
			assert.Equal(t, notify.CategoryAnomaly, resp.Notifications[0].Category)
			assert.Equal(t, "Anomaly Detected", resp.Notifications[0].Title)
		})
	})

	testutil.When(t, "an operator verifies the flagged result", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/results/PU-110/verify", nil)
		rr := testutil.DoRequest(a.router, testutil.WithOperatorHeaders(req, "ops-7", "admin"))

		testutil.Then(t, "the record is verified and attributed", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusOK)
			rec := testutil.UnmarshalResponse[results.ResultRecord](t, rr)
			assert.Equal(t, results.StatusVerified, rec.Status)
			assert.Equal(t, "ops-7", rec.ReviewedBy)
			require.NotNil(t, rec.ReviewedAt)
		})

		testutil.Then(t, "a second review is an invalid transition", func(t *testing.T) {
			rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodPost, "/v1/results/PU-110/reject", nil))
			testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_transition")
		})
	})

	testutil.Then(t, "the incremental snapshot matches a recompute", func(t *testing.T) {
		rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodGet, "/v1/snapshot/verify", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
		check := testutil.UnmarshalResponse[results.Consistency](t, rr)
		assert.True(t, check.Consistent)
		assert.Equal(t, int64(6), check.Incremental.ReportedUnits)
	})

	testutil.Then(t, "the audit trail records the submission and the review", func(t *testing.T) {
		require.Eventually(t, func() bool {
			events, _ := a.auditor.List(context.Background(), audit.Query{UnitID: "PU-110"})
			return len(events) == 2
		}, 2*time.Second, 10*time.Millisecond)

		rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodGet, "/v1/audit?unit_id=PU-110", nil))
		resp := testutil.UnmarshalResponse[struct {
			Events []audit.Event `json:"events"`
		}](t, rr)
		require.Len(t, resp.Events, 2)
		assert.Equal(t, audit.ActionResultVerified, resp.Events[0].Action)
		assert.Equal(t, "ops-7", resp.Events[0].OperatorID)
		assert.Equal(t, audit.ActionResultSubmitted, resp.Events[1].Action)
	})
}

func TestRejectedSubmissions(t *testing.T) {
	a := newApp(t)

	testutil.When(t, "the unit is not in the registry", func(t *testing.T) {
		rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodPost, "/v1/results", map[string]any{
			"unit_id": "PU-999", "accredited_voters": 10, "votes": map[string]int64{"party_a": 5},
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "unknown_unit")
	})

	testutil.When(t, "a count is negative", func(t *testing.T) {
		rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodPost, "/v1/results", map[string]any{
			"unit_id": "PU-101", "accredited_voters": -1, "votes": map[string]int64{"party_a": 5},
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "malformed_record")
	})

	testutil.When(t, "the body is not JSON", func(t *testing.T) {
		rr := testutil.DoRequest(a.router, testutil.NewRawRequest(http.MethodPost, "/v1/results", "{not json"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "malformed_record")
	})

	testutil.Then(t, "nothing was recorded", func(t *testing.T) {
		snap := a.service.Snapshot(context.Background())
		assert.Zero(t, snap.ReportedUnits)
		assert.Empty(t, a.dispatcher.ListRecent(0))
	})
}

func TestInsightsDegradeWithoutGateway(t *testing.T) {
	a := newApp(t)

	rr := testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodGet, "/v1/insights/summary", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[struct {
		Report    string `json:"report"`
		Available bool   `json:"available"`
	}](t, rr)
	assert.Equal(t, insight.UnavailableMessage, resp.Report)
	assert.False(t, resp.Available)

	rr = testutil.DoRequest(a.router, testutil.NewJSONRequest(t, http.MethodGet, "/v1/candidates", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
}
