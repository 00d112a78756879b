package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pollwatch/internal/results"
	"pollwatch/internal/results/handler/mocks"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/httputil"
)

type ResultsHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestResultsHandlerSuite(t *testing.T) {
	suite.Run(t, new(ResultsHandlerSuite))
}

func (s *ResultsHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *ResultsHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ResultsHandlerSuite) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ResultsHandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func (s *ResultsHandlerSuite) TestSubmit() {
	s.Run("accepted submission returns status and findings", func() {
		submittedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
		s.service.EXPECT().Ingest(gomock.Any(), results.Submission{
			UnitID:           "PU-101",
			AccreditedVoters: 410,
			Votes:            results.Votes{"party_a": 200, "party_b": 150},
			SubmittedAt:      submittedAt,
			ProofReference:   "blob-1",
		}).Return(&results.Outcome{
			Status: results.StatusFlagged,
			Findings: []results.Finding{{
				UnitID:   "PU-101",
				Severity: results.SeverityHigh,
				Kind:     results.KindOverAccreditation,
				Source:   results.SourceRules,
			}},
			Record: &results.ResultRecord{UnitID: "PU-101", Version: 3},
		}, nil)

		rec := s.do(http.MethodPost, "/results", map[string]any{
			"unit_id":           " PU-101 ",
			"accredited_voters": 410,
			"votes":             map[string]int64{"party_a": 200, "party_b": 150},
			"submitted_at":      submittedAt,
			"proof_reference":   "blob-1",
		})
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp SubmitResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(results.StatusFlagged, resp.Status)
		s.Equal(int64(3), resp.Version)
		s.Require().Len(resp.Findings, 1)
		s.Equal(results.KindOverAccreditation, resp.Findings[0].Kind)
	})

	s.Run("missing accredited voters is malformed", func() {
		rec := s.do(http.MethodPost, "/results", map[string]any{
			"unit_id": "PU-101",
			"votes":   map[string]int64{"party_a": 1},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeMalformedRecord), s.errorCode(rec))
	})

	s.Run("missing unit id is malformed", func() {
		rec := s.do(http.MethodPost, "/results", map[string]any{
			"accredited_voters": 10,
			"votes":             map[string]int64{},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeMalformedRecord), s.errorCode(rec))
	})

	for name, body := range map[string]string{
		"invalid JSON":            `{not json`,
		"string accredited count": `{"unit_id":"PU-101","accredited_voters":"x","votes":{}}`,
		"fractional vote count":   `{"unit_id":"PU-101","accredited_voters":10,"votes":{"party_a":1.5}}`,
	} {
		s.Run(name+" is malformed", func() {
			req := httptest.NewRequest(http.MethodPost, "/results", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Equal(string(dErrors.CodeMalformedRecord), s.errorCode(rec))
		})
	}

	s.Run("counts above the cap are malformed", func() {
		rec := s.do(http.MethodPost, "/results", map[string]any{
			"unit_id":           "PU-101",
			"accredited_voters": int64(math.MaxInt64),
			"votes":             map[string]int64{"party_a": 1},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeMalformedRecord), s.errorCode(rec))

		rec = s.do(http.MethodPost, "/results", map[string]any{
			"unit_id":           "PU-101",
			"accredited_voters": 100,
			"votes":             map[string]int64{"party_a": math.MaxInt64/2 + 1, "party_b": math.MaxInt64/2 + 1},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeMalformedRecord), s.errorCode(rec))
	})

	s.Run("unknown unit maps to 422", func() {
		s.service.EXPECT().Ingest(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnknownUnit, `polling unit "PU-999" is not registered`))

		rec := s.do(http.MethodPost, "/results", map[string]any{
			"unit_id":           "PU-999",
			"accredited_voters": 10,
			"votes":             map[string]int64{"party_a": 5},
		})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Equal(string(dErrors.CodeUnknownUnit), s.errorCode(rec))
	})

	s.Run("negative counts reported by the engine are malformed", func() {
		s.service.EXPECT().Ingest(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeMalformedRecord, "accredited voters must be non-negative, got -1"))

		rec := s.do(http.MethodPost, "/results", map[string]any{
			"unit_id":           "PU-101",
			"accredited_voters": -1,
			"votes":             map[string]int64{},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeMalformedRecord), s.errorCode(rec))
	})
}

func (s *ResultsHandlerSuite) TestReview() {
	s.Run("verify", func() {
		s.service.EXPECT().Verify(gomock.Any(), "PU-101").
			Return(&results.ResultRecord{UnitID: "PU-101", Status: results.StatusVerified}, nil)

		rec := s.do(http.MethodPost, "/results/PU-101/verify", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got results.ResultRecord
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal(results.StatusVerified, got.Status)
	})

	s.Run("reject without a record is not found", func() {
		s.service.EXPECT().Reject(gomock.Any(), "PU-404").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "no result recorded for unit PU-404"))

		rec := s.do(http.MethodPost, "/results/PU-404/reject", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("verify on a terminal record conflicts", func() {
		s.service.EXPECT().Verify(gomock.Any(), "PU-102").
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot move a rejected result to verified"))

		rec := s.do(http.MethodPost, "/results/PU-102/verify", nil)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal(string(dErrors.CodeInvalidTransition), s.errorCode(rec))
	})
}

func (s *ResultsHandlerSuite) TestQueries() {
	s.Run("list passes filters through", func() {
		s.service.EXPECT().List(gomock.Any(), results.Filter{Status: results.StatusFlagged, Region: "North District"}).
			Return([]*results.ResultRecord{{UnitID: "PU-101"}}, nil)

		rec := s.do(http.MethodGet, "/results?status=Flagged&region=North+District", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp ListResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(1, resp.Count)
	})

	s.Run("snapshot includes turnout", func() {
		s.service.EXPECT().Snapshot(gomock.Any()).Return(results.Snapshot{
			TotalRegistered: 1000,
			TotalAccredited: 600,
			ReportedUnits:   2,
		})

		rec := s.do(http.MethodGet, "/snapshot", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.InDelta(0.6, resp["turnout"], 1e-9)
		s.InDelta(600, resp["total_accredited"], 0)
	})

	s.Run("snapshot verification", func() {
		s.service.EXPECT().VerifySnapshot(gomock.Any()).Return(&results.Consistency{Consistent: true}, nil)

		rec := s.do(http.MethodGet, "/snapshot/verify", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"consistent":true`)
	})

	s.Run("findings default limit", func() {
		s.service.EXPECT().RecentFindings(gomock.Any(), defaultFindingsLimit).Return(nil)

		rec := s.do(http.MethodGet, "/findings", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"findings":[]}`, rec.Body.String())
	})

	s.Run("findings bad limit", func() {
		rec := s.do(http.MethodGet, "/findings?limit=-3", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("get unknown record", func() {
		s.service.EXPECT().Get(gomock.Any(), "PU-404").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "no result recorded for unit PU-404"))

		rec := s.do(http.MethodGet, "/results/PU-404", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}
