// Package interceptor provides the HTTP middleware that writes one generic
// audit record per request, whatever the outcome of the handler.
package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/trace"

	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/requestcontext"
)

// Writer is the part of audit.Sink the interceptor needs.
type Writer interface {
	Write(ctx context.Context, rec audit.Record) audit.WriteResult
}

// Config is the immutable interceptor configuration.
type Config struct {
	Enabled          bool
	ExcludedPaths    []string
	BodyPreviewLimit int
}

// Interceptor records every non-excluded request through the sink.
type Interceptor struct {
	sink   Writer
	cfg    Config
	routes *RouteTable
	logger *slog.Logger
}

// Option configures the Interceptor.
type Option func(*Interceptor)

func WithRouteTable(t *RouteTable) Option {
	return func(i *Interceptor) {
		i.routes = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

func New(sink Writer, cfg Config, opts ...Option) *Interceptor {
	if cfg.BodyPreviewLimit <= 0 {
		cfg.BodyPreviewLimit = 1000
	}
	i := &Interceptor{
		sink:   sink,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Middleware must be installed on the chi router (r.Use) so the route
// pattern is known by the time the record is written.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.cfg.Enabled || isExcluded(r.URL.Path, i.cfg.ExcludedPaths) {
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(requestcontext.WithActorState(r.Context()))
		action := ClassifyAction(r.Method, r.URL.Path)
		preview := i.capturePreview(r)
		rw := newStatusRecorder(w)
		start := time.Now()

		defer func() {
			p := recover()
			status := rw.Status()
			if p != nil {
				status = http.StatusInternalServerError
			}
			i.write(r, action, status, time.Since(start), preview, p)
			if p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(rw, r)
	})
}

func (i *Interceptor) write(r *http.Request, action audit.Action, status int, elapsed time.Duration, preview string, panicValue any) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	resourceType, resourceID, pattern := i.routes.Resolve(r, actor.UserID.Int64())

	metadata := map[string]any{
		"response_time_ms": float64(elapsed.Microseconds()) / 1000,
		"status_code":      status,
		"method":           r.Method,
	}
	if q := r.URL.Query(); len(q) > 0 {
		params := make(map[string]any, len(q))
		for k := range q {
			params[k] = q.Get(k)
		}
		metadata["query_params"] = params
	}
	if preview != "" {
		metadata["request_body_preview"] = preview
	}
	if pattern != "" {
		metadata["route"] = pattern
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		metadata["request_id"] = rid
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		metadata["trace_id"] = sc.TraceID().String()
	}
	if client := describeClient(requestcontext.UserAgent(ctx)); client != "" {
		metadata["client"] = client
	}
	if panicValue != nil {
		metadata["panic"] = fmt.Sprint(panicValue)
	}

	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	// An account erased by this very request keeps only its email snapshot,
	// like every earlier record of that actor.
	actorID := actor.UserID
	if requestcontext.ActorErased(ctx) {
		actorID = 0
		metadata["actor_erased"] = true
	}

	res := i.sink.Write(ctx, audit.Record{
		ActorUserID:  actorID,
		ActorEmail:   actor.Email,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  fmt.Sprintf("%s %s - Status: %d", r.Method, r.URL.Path, status),
		Metadata:     metadata,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    userAgent,
	})
	if !res.Written() {
		i.logger.WarnContext(ctx, "request audit not persisted",
			"method", r.Method,
			"path", r.URL.Path,
			"reason", res.Reason,
		)
	}
}

// capturePreview reads at most the preview limit from the body of write
// requests and re-attaches the consumed prefix so handlers see the full body.
func (i *Interceptor) capturePreview(r *http.Request) string {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return ""
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	buf := make([]byte, i.cfg.BodyPreviewLimit)
	n, err := io.ReadFull(r.Body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		i.logger.WarnContext(r.Context(), "failed to read request body for audit preview", "error", err)
	}
	prefix := buf[:n]
	r.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(prefix), r.Body), closer: r.Body}

	return audit.Truncate(redact(strings.ToValidUTF8(string(prefix), "")), i.cfg.BodyPreviewLimit)
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error { return b.closer.Close() }

var secretFields = regexp.MustCompile(`(?i)("(?:password|new_password|current_password|mfa_token|mfa_secret|refresh_token|access_token|token|secret|id_number)"\s*:\s*)"(?:[^"\\]|\\.)*"?`)

// redact masks credential values in a JSON body preview. The preview may be
// truncated JSON, so a regular expression is used rather than a decoder.
func redact(preview string) string {
	return secretFields.ReplaceAllString(preview, `${1}"***"`)
}

func describeClient(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	desc := name
	if version != "" {
		desc += " " + version
	}
	if os := ua.OS(); os != "" {
		desc += " on " + os
	}
	if ua.Mobile() {
		desc += " (mobile)"
	}
	return desc
}
