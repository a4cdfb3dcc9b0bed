package mirror

import (
	"sync"

	audit "fintrail/pkg/platform/audit"
)

// RingBuffer is a bounded, thread-safe FIFO of audit records. When full, the
// oldest record is dropped; the store copy is unaffected.
type RingBuffer struct {
	mu       sync.Mutex
	records  []audit.Record
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RingBuffer{
		records:  make([]audit.Record, capacity),
		capacity: capacity,
	}
}

// Push adds rec, evicting the oldest entry when the buffer is full.
// It reports whether an entry was evicted.
func (b *RingBuffer) Push(rec audit.Record) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		evicted = true
	}
	b.records[b.head] = rec
	b.head = (b.head + 1) % b.capacity
	b.count++
	return evicted
}

// PopBatch removes up to n records, oldest first.
func (b *RingBuffer) PopBatch(n int) []audit.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}
	out := make([]audit.Record, n)
	for i := 0; i < n; i++ {
		out[i] = b.records[b.tail]
		b.records[b.tail] = audit.Record{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
