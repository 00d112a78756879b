//go:build integration

package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollwatch/internal/audit"
	auditstore "pollwatch/internal/audit/store"
	"pollwatch/internal/registry"
	"pollwatch/internal/results"
	"pollwatch/internal/results/store"
	"pollwatch/pkg/platform/sentinel"
	"pollwatch/pkg/platform/tx"
	"pollwatch/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	pg        *containers.PostgresContainer
	units     *registry.PostgresSource
	results   *store.PostgresStore
	auditLog  *auditstore.PostgresStore
	submitted time.Time
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.units = registry.NewPostgresSource(s.pg.DB)
	s.results = store.NewPostgresStore(s.pg.DB)
	s.auditLog = auditstore.NewPostgresStore(s.pg.DB)
	s.submitted = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx))
	s.Require().NoError(s.units.Save(s.ctx, registry.SeedUnits))
}

func (s *PostgresSuite) record(unitID string, version int64, status results.Status) *results.ResultRecord {
	return &results.ResultRecord{
		UnitID:           unitID,
		Region:           "North District",
		RegisteredVoters: 500,
		AccreditedVoters: 450,
		Votes:            results.Votes{"party_a": 200, "party_b": 180},
		Status:           status,
		SubmittedAt:      s.submitted,
		Version:          version,
	}
}

func (s *PostgresSuite) TestRegistryRoundTrip() {
	catalog, err := s.units.LoadCatalog(s.ctx, registry.SeedCandidates)
	s.Require().NoError(err)
	s.Equal(len(registry.SeedUnits), catalog.Len())

	unit, err := catalog.Lookup(s.ctx, "PU-103")
	s.Require().NoError(err)
	s.Equal(int64(1200), unit.RegisteredVoters)

	some, err := s.units.Load(s.ctx, "PU-101", "PU-105")
	s.Require().NoError(err)
	s.Len(some, 2)
}

func (s *PostgresSuite) TestResultUpsertAndList() {
	s.Require().NoError(s.results.Put(s.ctx, s.record("PU-101", 1, results.StatusPending)))
	s.Require().NoError(s.results.Put(s.ctx, s.record("PU-102", 1, results.StatusFlagged)))

	next := s.record("PU-101", 2, results.StatusVerified)
	reviewedAt := s.submitted.Add(time.Hour)
	next.ReviewedBy, next.ReviewedAt = "ops-1", &reviewedAt
	s.Require().NoError(s.results.Put(s.ctx, next))

	got, err := s.results.Get(s.ctx, "PU-101")
	s.Require().NoError(err)
	s.Equal(results.StatusVerified, got.Status)
	s.Equal(int64(2), got.Version)
	s.Equal(results.Votes{"party_a": 200, "party_b": 180}, got.Votes)
	s.Require().NotNil(got.ReviewedAt)
	s.True(reviewedAt.Equal(*got.ReviewedAt))

	flagged, err := s.results.List(s.ctx, results.Filter{Status: results.StatusFlagged})
	s.Require().NoError(err)
	s.Require().Len(flagged, 1)
	s.Equal("PU-102", flagged[0].UnitID)

	all, err := s.results.List(s.ctx, results.Filter{Region: "North District"})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresSuite) TestStaleVersionIsRefused() {
	s.Require().NoError(s.results.Put(s.ctx, s.record("PU-101", 3, results.StatusPending)))
	err := s.results.Put(s.ctx, s.record("PU-101", 2, results.StatusFlagged))
	s.True(errors.Is(err, sentinel.ErrInvalidState))

	got, err := s.results.Get(s.ctx, "PU-101")
	s.Require().NoError(err)
	s.Equal(results.StatusPending, got.Status)
}

func (s *PostgresSuite) TestMissingRecordIsNotFound() {
	_, err := s.results.Get(s.ctx, "PU-104")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresSuite) TestRolledBackTransactionLeavesNoRecord() {
	boom := errors.New("abort")
	err := tx.Run(s.ctx, s.pg.DB, func(ctx context.Context) error {
		if err := s.results.Put(ctx, s.record("PU-105", 1, results.StatusFlagged)); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.results.Get(s.ctx, "PU-105")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresSuite) TestAuditTrail() {
	at := s.submitted
	events := []audit.Event{
		{ID: "6f1c2f56-0d0a-4b9a-9d53-8a1d0f0c0001", Category: audit.CategoryCompliance, Action: audit.ActionResultSubmitted, UnitID: "PU-101", Status: "pending", Timestamp: at},
		{ID: "6f1c2f56-0d0a-4b9a-9d53-8a1d0f0c0002", Category: audit.CategoryCompliance, Action: audit.ActionResultVerified, UnitID: "PU-101", Status: "verified", OperatorID: "ops-1", OperatorRole: "admin", Timestamp: at.Add(time.Minute)},
		{ID: "6f1c2f56-0d0a-4b9a-9d53-8a1d0f0c0003", Category: audit.CategoryOperations, Action: audit.ActionResultRefused, UnitID: "PU-999", Reason: "unknown_unit", Timestamp: at.Add(2 * time.Minute)},
	}
	s.Require().NoError(s.auditLog.Append(s.ctx, events...))
	s.Require().NoError(s.auditLog.Append(s.ctx, events[0]), "replays are ignored")

	got, err := s.auditLog.List(s.ctx, audit.Query{UnitID: "PU-101"})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(audit.ActionResultVerified, got[0].Action)
	s.Equal("ops-1", got[0].OperatorID)

	latest, err := s.auditLog.List(s.ctx, audit.Query{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(latest, 1)
	s.Equal("unknown_unit", latest[0].Reason)
}
