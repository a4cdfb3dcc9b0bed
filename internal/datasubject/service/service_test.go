package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	consentmodels "fintrail/internal/consent/models"
	consentstore "fintrail/internal/consent/store"
	"fintrail/internal/identity/models"
	"fintrail/internal/identity/revocation"
	userstore "fintrail/internal/identity/store/user"
	ledgermodels "fintrail/internal/ledger/models"
	ledgerstore "fintrail/internal/ledger/store"
	"fintrail/internal/retention"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	auditmemory "fintrail/pkg/platform/audit/store/memory"
	"fintrail/pkg/platform/sentinel"
	txcontext "fintrail/pkg/platform/tx"
	"fintrail/pkg/requestcontext"
)

const userRetention = 7 * 365 * 24 * time.Hour

type ServiceSuite struct {
	suite.Suite
	now      time.Time
	users    *userstore.InMemoryUserStore
	txns     *ledgerstore.InMemoryStore
	consents *consentstore.InMemoryStore
	audits   *auditmemory.InMemoryStore
	trl      *revocation.InMemoryTRL
	service  *Service
	user     *models.User
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
	s.users = userstore.New()
	s.txns = ledgerstore.NewInMemory()
	s.consents = consentstore.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore().WithClock(func() time.Time { return s.now })

	emitter := audit.NewEmitter(audit.NewSink(s.audits, audit.Residency{CloudProvider: "aws", Region: "af-south-1"}), s.users, nil)
	eraser := retention.NewEraser(txcontext.Inline{}, s.audits, s.consents, s.txns, s.users)
	s.trl = revocation.NewInMemoryTRL()
	s.service = New(s.users, s.txns, s.consents, eraser, s.trl, emitter, userRetention, nil)

	s.user = &models.User{
		Email:       "thandi@example.com",
		FirstName:   "Thandi",
		LastName:    "Nkosi",
		PhoneNumber: "+27821234567",
		Role:        id.RoleUser,
		IsActive:    true,
	}
	s.Require().NoError(s.users.Create(context.Background(), s.user))
}

func (s *ServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithActor(ctx, requestcontext.Identity{
		UserID:    s.user.ID,
		Email:     s.user.Email,
		Role:      id.RoleUser,
		TokenID:   "jti-thandi",
		ExpiresAt: s.now.Add(time.Hour),
	})
}

func (s *ServiceSuite) recordsFor(action audit.Action) []audit.Record {
	var out []audit.Record
	for _, rec := range s.audits.All() {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

func (s *ServiceSuite) addTransaction() {
	s.Require().NoError(s.txns.Create(context.Background(), &ledgermodels.Transaction{
		UserID:      s.user.ID,
		Reference:   "TXN-0123456789AB",
		Type:        ledgermodels.TypeDeposit,
		AmountMinor: 150000,
		Currency:    ledgermodels.DefaultCurrency,
		CreatedAt:   s.now,
	}))
}

func (s *ServiceSuite) TestAccessReturnsEverythingHeldAndAudits() {
	s.addTransaction()
	s.Require().NoError(s.consents.Upsert(context.Background(), &consentmodels.Consent{
		UserID: s.user.ID, Purpose: id.ConsentPurposeMarketing, Granted: true,
	}))

	report, err := s.service.Access(s.ctx())
	s.Require().NoError(err)
	s.Equal(s.user.Email, report.Profile.Email)
	s.Require().Len(report.Transactions, 1)
	s.Equal("1500.00", report.Transactions[0].Amount)
	s.Len(report.Consents, 1)
	s.Equal(s.now, report.GeneratedAt)

	exports := s.recordsFor(audit.ActionDataExport)
	s.Require().Len(exports, 1)
	s.Equal(s.user.ID, exports[0].ActorUserID)
	s.Equal(audit.ResourceDataSubject, exports[0].ResourceType)
	s.Equal("access", exports[0].Metadata["request_type"])
}

func (s *ServiceSuite) TestExportWrapsReport() {
	export, err := s.service.Export(s.ctx())
	s.Require().NoError(err)
	s.Equal("json", export.Format)
	s.Equal(s.user.ID, export.Data.Profile.ID)
	s.Len(s.recordsFor(audit.ActionDataExport), 1)
}

func (s *ServiceSuite) TestCorrectMasksValuesInAuditTrail() {
	profile, err := s.service.Correct(s.ctx(), "first_name", "Thandiwe", "typo")
	s.Require().NoError(err)
	s.Equal("Thandiwe", profile.FirstName)

	stored, err := s.users.FindByID(context.Background(), s.user.ID)
	s.Require().NoError(err)
	s.Equal("Thandiwe", stored.FirstName)

	updates := s.recordsFor(audit.ActionUpdate)
	s.Require().Len(updates, 1)
	s.Equal(map[string]string{"old": "***", "new": "***"}, updates[0].Metadata["first_name"])
	s.NotContains(updates[0].Description, "Thandiwe")
}

func (s *ServiceSuite) TestCorrectRejectsProtectedFields() {
	for _, field := range []string{"email", "role", "id_number", "is_active"} {
		_, err := s.service.Correct(s.ctx(), field, "x", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), field)
	}
	s.Empty(s.recordsFor(audit.ActionUpdate))
}

func (s *ServiceSuite) TestDeleteWithTransactionsDeactivatesAndSetsRetention() {
	s.addTransaction()

	outcome, err := s.service.Delete(s.ctx(), "closing account")
	s.Require().NoError(err)
	s.Equal(DeletionScheduled, outcome.Status)
	s.Require().NotNil(outcome.DataRetentionUntil)
	s.Equal(s.now.Add(userRetention), *outcome.DataRetentionUntil)

	stored, err := s.users.FindByID(context.Background(), s.user.ID)
	s.Require().NoError(err)
	s.False(stored.IsActive)
	s.Require().NotNil(stored.DataRetentionUntil)
	s.Equal(s.now.Add(userRetention), *stored.DataRetentionUntil)

	n, err := s.txns.CountByUser(context.Background(), s.user.ID)
	s.Require().NoError(err)
	s.Equal(1, n)

	deletes := s.recordsFor(audit.ActionDelete)
	s.Require().Len(deletes, 1)
	s.Equal("soft", deletes[0].Metadata["deletion_type"])
	s.Equal(s.user.ID, deletes[0].ActorUserID)

	revoked, err := s.trl.IsTokenRevoked(context.Background(), "jti-thandi")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *ServiceSuite) TestDeleteWithoutTransactionsErasesAndKeepsAuditRecord() {
	s.Require().NoError(s.consents.Upsert(context.Background(), &consentmodels.Consent{
		UserID: s.user.ID, Purpose: id.ConsentPurposeAnalytics, Granted: true,
	}))

	outcome, err := s.service.Delete(s.ctx(), "")
	s.Require().NoError(err)
	s.Equal(DeletionCompleted, outcome.Status)

	_, err = s.users.FindByID(context.Background(), s.user.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	consents, err := s.consents.ListByUser(context.Background(), s.user.ID)
	s.Require().NoError(err)
	s.Empty(consents)

	deletes := s.recordsFor(audit.ActionDelete)
	s.Require().Len(deletes, 1)
	s.True(deletes[0].ActorUserID.IsNil())
	s.Equal("thandi@example.com", deletes[0].ActorEmail)
	s.Equal("hard", deletes[0].Metadata["deletion_type"])
}

func (s *ServiceSuite) TestHardDeleteRevokesTokenAndMarksActorErased() {
	ctx := requestcontext.WithActorState(s.ctx())

	_, err := s.service.Delete(ctx, "")
	s.Require().NoError(err)

	s.True(requestcontext.ActorErased(ctx))
	revoked, err := s.trl.IsTokenRevoked(context.Background(), "jti-thandi")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *ServiceSuite) TestSoftDeleteLeavesActorAttached() {
	s.addTransaction()
	ctx := requestcontext.WithActorState(s.ctx())

	_, err := s.service.Delete(ctx, "")
	s.Require().NoError(err)

	s.False(requestcontext.ActorErased(ctx))
}

func (s *ServiceSuite) TestRequiresAuthenticatedActor() {
	_, err := s.service.Access(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = s.service.Delete(context.Background(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
