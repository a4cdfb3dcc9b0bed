// Package mirror forwards durably written audit records to Kafka for
// downstream SIEM consumers. The relational store stays the system of record;
// a record lost here is still queryable there.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "fintrail/pkg/platform/audit"
)

// Producer is the part of *kgo.Client the mirror uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher buffers records and produces them in batches from a background
// loop. Enqueue never blocks the request path.
type Publisher struct {
	producer  Producer
	topic     string
	buffer    *RingBuffer
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBufferCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer:  producer,
		topic:     topic,
		buffer:    NewRingBuffer(0),
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.New(slog.DiscardHandler),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue implements audit.Mirror.
func (p *Publisher) Enqueue(rec audit.Record) {
	if p.buffer.Push(rec) {
		p.logger.Warn("audit mirror buffer full, oldest record dropped", "dropped_total", p.buffer.Dropped())
	}
	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Run flushes batches until ctx is cancelled, then drains what is left.
func (p *Publisher) Run(ctx context.Context) error {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			p.flushAll(drainCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			p.flushAll(ctx)
		case <-p.wake:
			p.flushAll(ctx)
		}
	}
}

// Wait blocks until Run has returned.
func (p *Publisher) Wait() {
	<-p.done
}

func (p *Publisher) flushAll(ctx context.Context) {
	for {
		batch := p.buffer.PopBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		if err := p.publish(ctx, batch); err != nil {
			p.logger.ErrorContext(ctx, "audit mirror publish failed",
				"topic", p.topic,
				"records", len(batch),
				"first_record_id", batch[0].ID,
				"error", err,
			)
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, batch []audit.Record) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, rec := range batch {
		value, err := json.Marshal(rec)
		if err != nil {
			p.logger.ErrorContext(ctx, "audit mirror marshal failed", "record_id", rec.ID, "error", err)
			continue
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(strconv.FormatInt(int64(rec.ID), 10)),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "action", Value: []byte(rec.Action)},
				{Key: "region", Value: []byte(rec.Region)},
			},
		})
	}
	if len(records) == 0 {
		return nil
	}
	return p.producer.ProduceSync(ctx, records...).FirstErr()
}

// EnsureTopic creates the mirror topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicas int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replicas, nil, topic)
	if err != nil {
		return err
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return r.Err
		}
	}
	return nil
}
