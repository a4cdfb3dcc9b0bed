//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/store/postgres"
	"fintrail/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB).WithBatchSize(2)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "audit_logs", "users"))
}

func (s *PostgresStoreSuite) createUser(email string) id.UserID {
	var userID int64
	err := s.pg.DB.QueryRowContext(s.ctx,
		`INSERT INTO users (email, hashed_password) VALUES ($1, 'x') RETURNING id`, email).Scan(&userID)
	s.Require().NoError(err)
	return id.UserID(userID)
}

func (s *PostgresStoreSuite) appendRecord(actor id.UserID, email string, action audit.Action) audit.Record {
	rec, err := s.store.Append(s.ctx, audit.Record{
		ActorUserID:   actor,
		ActorEmail:    email,
		Action:        action,
		ResourceType:  audit.ResourceUser,
		Description:   "test record",
		Metadata:      map[string]any{"status_code": float64(200)},
		CloudProvider: "aws",
		Region:        "af-south-1",
	})
	s.Require().NoError(err)
	return rec
}

func (s *PostgresStoreSuite) TestAppendAssignsIDAndTimestamp() {
	userID := s.createUser("alice@example.com")
	first := s.appendRecord(userID, "alice@example.com", audit.ActionLogin)
	second := s.appendRecord(userID, "alice@example.com", audit.ActionRead)

	s.NotZero(first.ID)
	s.Greater(second.ID, first.ID)
	s.False(first.Timestamp.IsZero())

	records, err := s.store.List(s.ctx, audit.Filter{UserID: userID}, audit.Page{})
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(second.ID, records[0].ID, "newest first")
	s.Equal(float64(200), records[1].Metadata["status_code"])
	s.Equal("af-south-1", records[1].Region)
}

func (s *PostgresStoreSuite) TestFilterByActionAndWindow() {
	userID := s.createUser("bob@example.com")
	s.appendRecord(userID, "bob@example.com", audit.ActionLogin)
	s.appendRecord(userID, "bob@example.com", audit.ActionAccessDenied)

	n, err := s.store.Count(s.ctx, audit.Filter{Action: audit.ActionAccessDenied})
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.store.Count(s.ctx, audit.Filter{From: time.Now().Add(time.Hour)})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresStoreSuite) TestRowsRejectContentUpdates() {
	userID := s.createUser("carol@example.com")
	rec := s.appendRecord(userID, "carol@example.com", audit.ActionLogin)

	_, err := s.pg.DB.ExecContext(s.ctx, `UPDATE audit_logs SET action = 'READ' WHERE id = $1`, int64(rec.ID))
	s.Require().Error(err)
	s.Contains(err.Error(), "immutable")

	_, err = s.pg.DB.ExecContext(s.ctx, `UPDATE audit_logs SET description = 'changed' WHERE id = $1`, int64(rec.ID))
	s.Require().Error(err)

	_, err = s.pg.DB.ExecContext(s.ctx, `UPDATE audit_logs SET actor_email = 'x@anonymized.local' WHERE id = $1`, int64(rec.ID))
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestAnonymizeBeforeIsIdempotent() {
	userID := s.createUser("dave@example.com")
	for range 5 {
		s.appendRecord(userID, "dave@example.com", audit.ActionRead)
	}
	s.appendRecord(id.UserID(0), "", audit.ActionAccessDenied)

	cutoff := time.Now().Add(time.Hour)
	n, err := s.store.AnonymizeBefore(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(5, n)

	n, err = s.store.AnonymizeBefore(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Zero(n)

	records, err := s.store.List(s.ctx, audit.Filter{UserID: userID}, audit.Page{})
	s.Require().NoError(err)
	for _, rec := range records {
		s.Equal(audit.AnonymizedEmail(userID), rec.ActorEmail)
		s.Equal(audit.ActionRead, rec.Action)
	}
}

func (s *PostgresStoreSuite) TestAnonymizeLeavesRecentRecords() {
	userID := s.createUser("erin@example.com")
	s.appendRecord(userID, "erin@example.com", audit.ActionRead)

	n, err := s.store.AnonymizeBefore(s.ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresStoreSuite) TestErasedUserKeepsAuditTrail() {
	userID := s.createUser("frank@example.com")
	s.appendRecord(userID, "frank@example.com", audit.ActionDelete)

	_, err := s.store.DetachActor(s.ctx, userID)
	s.Require().NoError(err)
	_, err = s.pg.DB.ExecContext(s.ctx, `DELETE FROM users WHERE id = $1`, int64(userID))
	s.Require().NoError(err)

	records, err := s.store.List(s.ctx, audit.Filter{}, audit.Page{})
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.True(records[0].ActorUserID.IsNil())
	s.Equal("frank@example.com", records[0].ActorEmail)
}

func (s *PostgresStoreSuite) TestAppendForDeletedActorIsWritten() {
	userID := s.createUser("ivan@example.com")
	_, err := s.pg.DB.ExecContext(s.ctx, `DELETE FROM users WHERE id = $1`, int64(userID))
	s.Require().NoError(err)

	rec := s.appendRecord(userID, "ivan@example.com", audit.ActionRead)
	s.NotZero(rec.ID)

	n, err := s.store.Count(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestDetachActor() {
	userID := s.createUser("grace@example.com")
	s.appendRecord(userID, "grace@example.com", audit.ActionRead)
	s.appendRecord(userID, "grace@example.com", audit.ActionUpdate)

	n, err := s.store.DetachActor(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(2, n)

	remaining, err := s.store.Count(s.ctx, audit.Filter{UserID: userID})
	s.Require().NoError(err)
	s.Zero(remaining)
}

func (s *PostgresStoreSuite) TestPurgeBefore() {
	userID := s.createUser("heidi@example.com")
	for range 5 {
		s.appendRecord(userID, "heidi@example.com", audit.ActionRead)
	}

	n, err := s.store.PurgeBefore(s.ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(n)

	n, err = s.store.PurgeBefore(s.ctx, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(5, n)

	total, err := s.store.Count(s.ctx, audit.Filter{})
	require.NoError(s.T(), err)
	assert.Zero(s.T(), total)
}
