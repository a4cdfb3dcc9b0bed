// Package retention enforces the data-minimization windows: expired users
// are erased and aged audit records are anonymized and eventually purged.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fintrail/internal/platform/config"
	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
)

// ExpiredUsers lists users whose retention marker has passed.
type ExpiredUsers interface {
	ListRetentionExpired(ctx context.Context, now time.Time) ([]id.UserID, error)
}

// AuditRetention is the bulk part of audit.Store.
type AuditRetention interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	AnonymizeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type UserEraser interface {
	Erase(ctx context.Context, userID id.UserID) error
}

type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Report summarizes one sweep.
type Report struct {
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	UsersPurged     int       `json:"users_purged"`
	AuditAnonymized int       `json:"audit_logs_anonymized"`
	AuditPurged     int       `json:"audit_logs_purged"`
	Errors          []string  `json:"errors,omitempty"`
}

// Sweeper runs the retention operations. Each operation is idempotent: a
// second run with no new data changes nothing.
type Sweeper struct {
	users   ExpiredUsers
	eraser  UserEraser
	audits  AuditRetention
	auditor AuditEmitter
	cfg     config.Retention
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func NewSweeper(users ExpiredUsers, eraser UserEraser, audits AuditRetention, auditor AuditEmitter, cfg config.Retention, opts ...Option) *Sweeper {
	s := &Sweeper{
		users:   users,
		eraser:  eraser,
		audits:  audits,
		auditor: auditor,
		cfg:     cfg,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer("fintrail/retention"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PurgeExpiredUsers erases every user whose data_retention_until has passed.
// A failing user does not stop the sweep; the count covers users actually
// erased and the error joins every failure.
func (s *Sweeper) PurgeExpiredUsers(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "retention.purge_expired_users")
	defer span.End()

	ids, err := s.users.ListRetentionExpired(ctx, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list expired users")
		return 0, fmt.Errorf("list expired users: %w", err)
	}

	var (
		purged int
		errs   []error
	)
	for _, userID := range ids {
		if err := s.eraser.Erase(ctx, userID); err != nil {
			s.logger.ErrorContext(ctx, "failed to purge expired user",
				"user_id", userID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("user %d: %w", userID, err))
			continue
		}
		purged++
		s.auditor.Emit(ctx, audit.Entry{
			Action:       audit.ActionDelete,
			ResourceType: audit.ResourceUser,
			ResourceID:   audit.ResourceRef(userID),
			Description:  "User data purged after retention period",
			Metadata:     map[string]any{"trigger": "retention_sweep"},
		})
	}

	span.SetAttributes(
		attribute.Int("retention.candidates", len(ids)),
		attribute.Int("retention.users_purged", purged),
	)
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "partial failure")
	}
	return purged, errors.Join(errs...)
}

// AnonymizeAgedAuditLogs scrubs the email snapshot of audit records older
// than threshold.
func (s *Sweeper) AnonymizeAgedAuditLogs(ctx context.Context, threshold time.Duration) (int, error) {
	ctx, span := s.tracer.Start(ctx, "retention.anonymize_audit_logs")
	defer span.End()

	cutoff := s.now().Add(-threshold)
	n, err := s.audits.AnonymizeBefore(ctx, cutoff)
	span.SetAttributes(attribute.Int("retention.audit_anonymized", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "anonymize")
		return n, fmt.Errorf("anonymize audit logs: %w", err)
	}
	return n, nil
}

// PurgeExpiredAuditLogs deletes audit records older than window.
func (s *Sweeper) PurgeExpiredAuditLogs(ctx context.Context, window time.Duration) (int, error) {
	ctx, span := s.tracer.Start(ctx, "retention.purge_audit_logs")
	defer span.End()

	cutoff := s.now().Add(-window)
	n, err := s.audits.PurgeBefore(ctx, cutoff)
	span.SetAttributes(attribute.Int("retention.audit_purged", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge")
		return n, fmt.Errorf("purge audit logs: %w", err)
	}
	return n, nil
}

// Run executes all three operations with the configured windows. Every
// operation runs even when an earlier one failed.
func (s *Sweeper) Run(ctx context.Context) Report {
	ctx, span := s.tracer.Start(ctx, "retention.run")
	defer span.End()

	report := Report{StartedAt: s.now()}
	var err error

	report.UsersPurged, err = s.PurgeExpiredUsers(ctx)
	report.addError(err)
	report.AuditAnonymized, err = s.AnonymizeAgedAuditLogs(ctx, s.cfg.AuditAnonymizeAfter)
	report.addError(err)
	report.AuditPurged, err = s.PurgeExpiredAuditLogs(ctx, s.cfg.AuditLog)
	report.addError(err)

	report.FinishedAt = s.now()
	s.logger.InfoContext(ctx, "retention sweep finished",
		"users_purged", report.UsersPurged,
		"audit_logs_anonymized", report.AuditAnonymized,
		"audit_logs_purged", report.AuditPurged,
		"errors", len(report.Errors),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report
}

func (r *Report) addError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}
