package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fintrail/pkg/platform/circuit"
)

// Outcome is the result class of a sink write.
type Outcome int

const (
	// Written means the record is durable in the store.
	Written Outcome = iota
	// FailedButIgnored means the record was not persisted. The failure has been
	// reported operationally and must not affect the caller.
	FailedButIgnored
)

func (o Outcome) String() string {
	if o == Written {
		return "written"
	}
	return "failed_but_ignored"
}

// WriteResult is returned by Sink.Write in place of an error.
type WriteResult struct {
	Outcome Outcome
	// Record is the stored record (ID and Timestamp assigned) when Written,
	// or the record as attempted otherwise.
	Record Record
	// Reason explains a FailedButIgnored outcome.
	Reason error
}

func (r WriteResult) Written() bool { return r.Outcome == Written }

// ErrCircuitOpen is the reason given when writes are being shed.
var ErrCircuitOpen = errors.New("audit store circuit open")

// ErrRecordRejected marks a store error caused by the record itself, such as
// a constraint violation. The store is healthy, so these errors do not count
// toward the circuit breaker.
var ErrRecordRejected = errors.New("audit record rejected by store")

// Limits bound the size of free-form record fields.
type Limits struct {
	UserAgent   int
	Description int
	MetadataStr int
}

// DefaultLimits caps user agents at 500 characters and any embedded payload
// or description at 1000.
var DefaultLimits = Limits{UserAgent: 500, Description: 1000, MetadataStr: 1000}

// Sink is the single path that persists audit records. It stamps residency
// tags, enforces size bounds and converts every store failure into a
// FailedButIgnored result.
type Sink struct {
	store     Store
	residency Residency
	limits    Limits
	breaker   *circuit.Breaker
	mirror    Mirror
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets the operational logger that receives ignored failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithBreaker sheds writes while the store is failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		s.breaker = b
	}
}

// WithMirror forwards written records to a secondary consumer.
func WithMirror(m Mirror) Option {
	return func(s *Sink) {
		s.mirror = m
	}
}

func WithLimits(l Limits) Option {
	return func(s *Sink) {
		s.limits = l
	}
}

func NewSink(store Store, residency Residency, opts ...Option) *Sink {
	s := &Sink{
		store:     store,
		residency: residency,
		limits:    DefaultLimits,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write persists rec. It never returns an error and never panics on store
// failure; callers may ignore the result.
func (s *Sink) Write(ctx context.Context, rec Record) WriteResult {
	// Client cancellation must not abort the bookkeeping of a request that
	// already produced its outcome.
	ctx = context.WithoutCancel(ctx)
	ctx, span := otel.Tracer("fintrail/audit").Start(ctx, "audit.sink.write")
	defer span.End()

	rec = s.prepare(rec)
	span.SetAttributes(
		attribute.String("audit.action", string(rec.Action)),
		attribute.String("audit.resource_type", rec.ResourceType),
	)

	if s.breaker != nil && !s.breaker.Allow() {
		return s.ignore(ctx, rec, ErrCircuitOpen, "circuit_open")
	}

	start := time.Now()
	stored, err := s.store.Append(ctx, rec)
	s.metrics.observePersist(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrRecordRejected) {
			span.RecordError(err)
			return s.ignore(ctx, rec, err, "record_rejected")
		}
		if s.breaker != nil && s.breaker.RecordFailure() {
			s.metrics.setBreakerOpen(true)
			s.logger.ErrorContext(ctx, "audit store circuit opened", "breaker", s.breaker.Name())
		}
		span.RecordError(err)
		return s.ignore(ctx, rec, err, "store_error")
	}
	if s.breaker != nil && s.breaker.RecordSuccess() {
		s.metrics.setBreakerOpen(false)
		s.logger.InfoContext(ctx, "audit store circuit closed", "breaker", s.breaker.Name())
	}

	s.metrics.incWritten(stored.Action)
	if s.mirror != nil {
		s.mirror.Enqueue(stored)
	}
	return WriteResult{Outcome: Written, Record: stored}
}

// ignore reports the full record on the operational channel so a missed
// audit write can be reconstructed from logs.
func (s *Sink) ignore(ctx context.Context, rec Record, reason error, label string) WriteResult {
	s.metrics.incIgnored(label)
	s.logger.ErrorContext(ctx, "CRITICAL: audit record not persisted",
		"reason", label,
		"error", reason,
		"action", rec.Action,
		"resource_type", rec.ResourceType,
		"resource_id", rec.ResourceID,
		"actor_user_id", rec.ActorUserID,
		"description", rec.Description,
		"ip_address", rec.IPAddress,
	)
	return WriteResult{Outcome: FailedButIgnored, Record: rec, Reason: reason}
}

func (s *Sink) prepare(rec Record) Record {
	rec.ID = 0
	rec.Timestamp = time.Time{}
	if rec.ResourceType == "" {
		rec.ResourceType = ResourceUnknown
	}
	rec.CloudProvider = s.residency.CloudProvider
	rec.Region = s.residency.Region
	rec.AvailabilityZone = s.residency.AvailabilityZone
	rec.UserAgent = Truncate(rec.UserAgent, s.limits.UserAgent)
	rec.Description = Truncate(rec.Description, s.limits.Description)
	rec.Metadata = boundMetadata(rec.Metadata, s.limits.MetadataStr)
	return rec
}

// boundMetadata copies m, truncating string values at any depth.
func boundMetadata(m map[string]any, limit int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = boundValue(v, limit)
	}
	return out
}

func boundValue(v any, limit int) any {
	switch val := v.(type) {
	case string:
		return Truncate(val, limit)
	case []byte:
		return Truncate(string(val), limit)
	case map[string]any:
		return boundMetadata(val, limit)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = Truncate(s, limit)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = boundValue(e, limit)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = Truncate(s, limit)
		}
		return out
	default:
		return v
	}
}

// Truncate shortens s to at most n characters without splitting a rune.
// n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
