package audit_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/mocks"
	"fintrail/pkg/platform/audit/store/memory"
	"fintrail/pkg/platform/circuit"
)

var testResidency = audit.Residency{CloudProvider: "aws", Region: "af-south-1", AvailabilityZone: "af-south-1a"}

type SinkSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	metrics   *audit.Metrics
}

func (s *SinkSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.metrics = audit.NewMetrics(prometheus.NewRegistry())
}

func (s *SinkSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) TestWriteStampsResidencyAndBounds() {
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec audit.Record) (audit.Record, error) {
			s.Equal("aws", rec.CloudProvider)
			s.Equal("af-south-1", rec.Region)
			s.Equal("af-south-1a", rec.AvailabilityZone)
			s.Len(rec.UserAgent, 500)
			s.Len(rec.Metadata["request_body_preview"], 1000)
			s.True(rec.Timestamp.IsZero(), "timestamp is assigned by the store")
			rec.ID = 9
			rec.Timestamp = time.Now()
			return rec, nil
		})

	sink := audit.NewSink(s.mockStore, testResidency, audit.WithMetrics(s.metrics))
	res := sink.Write(context.Background(), audit.Record{
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceTransaction,
		UserAgent:    strings.Repeat("u", 900),
		Metadata:     map[string]any{"request_body_preview": strings.Repeat("b", 5000)},
		Timestamp:    time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	s.True(res.Written())
	s.Equal(audit.RecordID(9), res.Record.ID)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Written.WithLabelValues("CREATE")), 0)
}

func (s *SinkSuite) TestStoreFailureIsIgnored() {
	storeErr := errors.New("connection reset")
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(audit.Record{}, storeErr)

	sink := audit.NewSink(s.mockStore, testResidency, audit.WithMetrics(s.metrics))
	res := sink.Write(context.Background(), audit.Record{Action: audit.ActionRead})

	s.Equal(audit.FailedButIgnored, res.Outcome)
	s.ErrorIs(res.Reason, storeErr)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Ignored.WithLabelValues("store_error")), 0)
}

func (s *SinkSuite) TestBreakerShedsWritesWhileOpen() {
	storeErr := errors.New("db down")
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(audit.Record{}, storeErr).Times(2)

	breaker := circuit.New("audit-store", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	sink := audit.NewSink(s.mockStore, testResidency, audit.WithBreaker(breaker), audit.WithMetrics(s.metrics))

	sink.Write(context.Background(), audit.Record{Action: audit.ActionRead})
	sink.Write(context.Background(), audit.Record{Action: audit.ActionRead})
	res := sink.Write(context.Background(), audit.Record{Action: audit.ActionRead})

	s.Equal(audit.FailedButIgnored, res.Outcome)
	s.ErrorIs(res.Reason, audit.ErrCircuitOpen)
	s.InDelta(1, testutil.ToFloat64(s.metrics.BreakerState), 0)
}

func (s *SinkSuite) TestRejectedRecordsDoNotTripBreaker() {
	rejected := fmt.Errorf("insert audit record: %w: %w", audit.ErrRecordRejected, errors.New("check violation"))
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(audit.Record{}, rejected).Times(5)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec audit.Record) (audit.Record, error) {
			rec.ID = 6
			return rec, nil
		})

	breaker := circuit.New("audit-store", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	sink := audit.NewSink(s.mockStore, testResidency, audit.WithBreaker(breaker), audit.WithMetrics(s.metrics))

	for range 5 {
		res := sink.Write(context.Background(), audit.Record{Action: audit.ActionRead})
		s.Equal(audit.FailedButIgnored, res.Outcome)
		s.ErrorIs(res.Reason, audit.ErrRecordRejected)
	}
	s.False(breaker.IsOpen())
	s.True(sink.Write(context.Background(), audit.Record{Action: audit.ActionRead}).Written())
	s.InDelta(5, testutil.ToFloat64(s.metrics.Ignored.WithLabelValues("record_rejected")), 0)
}

func (s *SinkSuite) TestNestedMetadataIsBounded() {
	long := strings.Repeat("x", 3000)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec audit.Record) (audit.Record, error) {
			field, ok := rec.Metadata["first_name"].(map[string]string)
			s.Require().True(ok)
			s.Len(field["old"], 1000)
			s.Len(field["new"], 1000)

			items, ok := rec.Metadata["items"].([]any)
			s.Require().True(ok)
			s.Len(items[0], 1000)
			nested, ok := items[1].(map[string]any)
			s.Require().True(ok)
			s.Len(nested["note"], 1000)
			s.Equal(7, items[2])

			tags, ok := rec.Metadata["tags"].([]string)
			s.Require().True(ok)
			s.Len(tags[0], 1000)
			return rec, nil
		})

	sink := audit.NewSink(s.mockStore, testResidency)
	in := map[string]any{
		"first_name": map[string]string{"old": long, "new": long},
		"items":      []any{long, map[string]any{"note": long}, 7},
		"tags":       []string{long},
	}
	s.True(sink.Write(context.Background(), audit.Record{Action: audit.ActionUpdate, Metadata: in}).Written())
	s.Len(in["first_name"].(map[string]string)["old"], 3000, "caller metadata is not mutated")
}

func (s *SinkSuite) TestMirrorReceivesWrittenRecords() {
	mirror := mocks.NewMockMirror(s.ctrl)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec audit.Record) (audit.Record, error) {
			rec.ID = 1
			return rec, nil
		})
	mirror.EXPECT().Enqueue(gomock.Any()).Do(func(rec audit.Record) {
		s.Equal(audit.RecordID(1), rec.ID)
	})

	sink := audit.NewSink(s.mockStore, testResidency, audit.WithMirror(mirror))
	s.True(sink.Write(context.Background(), audit.Record{Action: audit.ActionLogin}).Written())
}

func (s *SinkSuite) TestCancelledContextStillWrites() {
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, rec audit.Record) (audit.Record, error) {
			s.NoError(ctx.Err())
			return rec, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := audit.NewSink(s.mockStore, testResidency)
	s.True(sink.Write(ctx, audit.Record{Action: audit.ActionDelete}).Written())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", audit.Truncate("abc", 5))
	assert.Equal(t, "ab", audit.Truncate("abc", 2))
	assert.Equal(t, "héll", audit.Truncate("héllo", 4))
	assert.Equal(t, "abc", audit.Truncate("abc", 0))
}

func TestAnonymizedEmail(t *testing.T) {
	a := audit.AnonymizedEmail(id.UserID(42))
	assert.Equal(t, a, audit.AnonymizedEmail(id.UserID(42)), "deterministic")
	assert.NotEqual(t, a, audit.AnonymizedEmail(id.UserID(43)))
	assert.True(t, audit.IsAnonymized(a))
	assert.NotContains(t, a, "42@")
	assert.Equal(t, "anonymous@anonymized.local", audit.AnonymizedEmail(0))
}

func TestParseAction(t *testing.T) {
	a, err := audit.ParseAction("access_denied")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionAccessDenied, a)

	_, err = audit.ParseAction("EXFILTRATE")
	assert.Error(t, err)
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, audit.Page{Offset: 0, Limit: 100}, audit.Page{Offset: -3}.Normalize())
	assert.Equal(t, audit.Page{Offset: 5, Limit: 1000}, audit.Page{Offset: 5, Limit: 50000}.Normalize())
}

func TestSinkWithMemoryStore(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := audit.NewSink(store, testResidency)

	first := sink.Write(context.Background(), audit.Record{Action: audit.ActionCreate, ResourceType: "user"})
	second := sink.Write(context.Background(), audit.Record{Action: audit.ActionRead})
	require.True(t, first.Written())
	require.True(t, second.Written())
	assert.Less(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, audit.ResourceUnknown, second.Record.ResourceType)

	store.FailAppends(errors.New("disk full"))
	assert.Equal(t, audit.FailedButIgnored, sink.Write(context.Background(), audit.Record{Action: audit.ActionRead}).Outcome)
	assert.Len(t, store.All(), 2)
}
