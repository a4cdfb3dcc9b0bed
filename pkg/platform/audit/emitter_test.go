package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/mocks"
	"fintrail/pkg/platform/audit/store/memory"
	"fintrail/pkg/platform/sentinel"
	"fintrail/pkg/requestcontext"
)

func TestEmitter(t *testing.T) {
	newEmitter := func(t *testing.T) (*audit.Emitter, *memory.InMemoryStore, *mocks.MockDirectory) {
		ctrl := gomock.NewController(t)
		dir := mocks.NewMockDirectory(ctrl)
		store := memory.NewInMemoryStore()
		return audit.NewEmitter(audit.NewSink(store, testResidency), dir, nil), store, dir
	}

	t.Run("snapshots the current email and client metadata", func(t *testing.T) {
		emitter, store, dir := newEmitter(t)
		dir.EXPECT().EmailForUser(gomock.Any(), id.UserID(7)).Return("lerato@example.com", nil)

		ctx := requestcontext.WithClientMetadata(context.Background(), "10.0.0.8", "curl/8.0")
		ctx = requestcontext.WithRequestID(ctx, "req-1")
		emitter.Emit(ctx, audit.Entry{
			ActorID:      7,
			Action:       audit.ActionDataExport,
			ResourceType: audit.ResourceDataSubject,
			ResourceID:   audit.ResourceRef(id.UserID(7)),
			Description:  "Data subject exported own record",
		})

		records := store.All()
		require.Len(t, records, 1)
		rec := records[0]
		assert.Equal(t, id.UserID(7), rec.ActorUserID)
		assert.Equal(t, "lerato@example.com", rec.ActorEmail)
		assert.Equal(t, "10.0.0.8", rec.IPAddress)
		assert.Equal(t, "curl/8.0", rec.UserAgent)
		assert.Equal(t, "req-1", rec.Metadata["request_id"])
		require.NotNil(t, rec.ResourceID)
		assert.Equal(t, int64(7), *rec.ResourceID)
	})

	t.Run("missing actor leaves snapshot empty", func(t *testing.T) {
		emitter, store, dir := newEmitter(t)
		dir.EXPECT().EmailForUser(gomock.Any(), id.UserID(99)).Return("", sentinel.ErrNotFound)

		emitter.Emit(context.Background(), audit.Entry{ActorID: 99, Action: audit.ActionDelete, ResourceType: "user"})

		records := store.All()
		require.Len(t, records, 1)
		assert.Empty(t, records[0].ActorEmail)
		assert.Equal(t, id.UserID(99), records[0].ActorUserID)
	})

	t.Run("lookup errors do not stop the write", func(t *testing.T) {
		emitter, store, dir := newEmitter(t)
		dir.EXPECT().EmailForUser(gomock.Any(), gomock.Any()).Return("", errors.New("timeout"))

		emitter.Emit(context.Background(), audit.Entry{ActorID: 3, Action: audit.ActionUpdate})
		assert.Len(t, store.All(), 1)
	})

	t.Run("anonymous actor skips lookup", func(t *testing.T) {
		emitter, store, _ := newEmitter(t)
		emitter.Emit(context.Background(), audit.Entry{Action: audit.ActionAccessDenied, ResourceType: "user"})
		assert.Len(t, store.All(), 1)
	})

	t.Run("sink failure does not surface", func(t *testing.T) {
		emitter, store, _ := newEmitter(t)
		store.FailAppends(errors.New("unavailable"))

		res := emitter.Record(context.Background(), audit.Entry{Action: audit.ActionLogout})
		assert.Equal(t, audit.FailedButIgnored, res.Outcome)
		assert.NotPanics(t, func() {
			emitter.Emit(context.Background(), audit.Entry{Action: audit.ActionLogout})
		})
	})

	t.Run("caller metadata is not mutated", func(t *testing.T) {
		emitter, _, _ := newEmitter(t)
		md := map[string]any{"field": "first_name"}
		ctx := requestcontext.WithRequestID(context.Background(), "req-2")
		emitter.Emit(ctx, audit.Entry{Action: audit.ActionUpdate, Metadata: md})
		assert.NotContains(t, md, "request_id")
	})
}
