package audit

import (
	"context"
	"errors"
	"log/slog"

	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
	"fintrail/pkg/requestcontext"
)

// Entry is a domain-specific audit entry written by business code.
type Entry struct {
	ActorID      id.UserID
	Action       Action
	ResourceType string
	ResourceID   *int64
	Description  string
	Metadata     map[string]any
}

// Emitter writes explicit audit entries on behalf of business operations.
// Emit has no error result: an audit failure never fails the caller.
type Emitter struct {
	sink      *Sink
	directory Directory
	logger    *slog.Logger
}

// NewEmitter creates an emitter. directory may be nil, in which case no email
// snapshot is captured.
func NewEmitter(sink *Sink, directory Directory, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{sink: sink, directory: directory, logger: logger}
}

// Emit records e. The actor's current email is looked up best-effort; client
// network metadata comes from the request context.
func (e *Emitter) Emit(ctx context.Context, entry Entry) {
	_ = e.Record(ctx, entry)
}

// Record is Emit exposing the sink outcome, for callers that report it.
func (e *Emitter) Record(ctx context.Context, entry Entry) WriteResult {
	rec := Record{
		ActorUserID:  entry.ActorID,
		ActorEmail:   e.lookupEmail(ctx, entry.ActorID),
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Description:  entry.Description,
		Metadata:     entry.Metadata,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		md := make(map[string]any, len(entry.Metadata)+1)
		for k, v := range entry.Metadata {
			md[k] = v
		}
		if _, ok := md["request_id"]; !ok {
			md["request_id"] = rid
		}
		rec.Metadata = md
	}
	return e.sink.Write(ctx, rec)
}

func (e *Emitter) lookupEmail(ctx context.Context, actor id.UserID) string {
	if actor.IsNil() || e.directory == nil {
		return ""
	}
	email, err := e.directory.EmailForUser(ctx, actor)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			e.logger.WarnContext(ctx, "audit email snapshot lookup failed",
				"actor_user_id", actor,
				"error", err,
			)
		}
		return ""
	}
	return email
}

// ResourceRef converts a typed id into the optional numeric resource id.
func ResourceRef[T ~int64](v T) *int64 {
	if v <= 0 {
		return nil
	}
	n := int64(v)
	return &n
}
