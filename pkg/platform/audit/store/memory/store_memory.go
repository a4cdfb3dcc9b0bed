package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
)

// InMemoryStore is an audit.Store for tests and database-less development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	nextID  audit.RecordID
	now     func() time.Time

	// failAppend, when set, is returned by Append. Used to exercise the
	// FailedButIgnored path.
	failAppend error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

// WithClock overrides the write-time source.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

// FailAppends makes every subsequent Append return err (nil restores).
func (s *InMemoryStore) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = err
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *InMemoryStore) Append(_ context.Context, rec audit.Record) (audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return audit.Record{}, s.failAppend
	}
	s.nextID++
	rec.ID = s.nextID
	rec.Timestamp = s.now().UTC()
	rec.Metadata = cloneMap(rec.Metadata)
	s.records = append(s.records, rec)
	return rec, nil
}

// Insert stores rec with its timestamp as given. Tests use it to seed aged
// records.
func (s *InMemoryStore) Insert(rec audit.Record) audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return rec
}

func (s *InMemoryStore) List(_ context.Context, f audit.Filter, p audit.Page) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p = p.Normalize()
	matched := s.filter(f)
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if p.Offset >= len(matched) {
		return []audit.Record{}, nil
	}
	end := p.Offset + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[p.Offset:end], nil
}

func (s *InMemoryStore) Count(_ context.Context, f audit.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filter(f)), nil
}

// All returns every record in insertion order.
func (s *InMemoryStore) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, len(s.records))
	for i, r := range s.records {
		r.Metadata = cloneMap(r.Metadata)
		out[i] = r
	}
	return out
}

func (s *InMemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func (s *InMemoryStore) AnonymizeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.records {
		r := &s.records[i]
		if !r.Timestamp.Before(cutoff) || r.ActorEmail == "" || audit.IsAnonymized(r.ActorEmail) {
			continue
		}
		r.ActorEmail = audit.AnonymizedEmail(r.ActorUserID)
		n++
	}
	return n, nil
}

func (s *InMemoryStore) DetachActor(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.records {
		if s.records[i].ActorUserID == userID {
			s.records[i].ActorUserID = 0
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) filter(f audit.Filter) []audit.Record {
	out := make([]audit.Record, 0, len(s.records))
	for _, r := range s.records {
		if !f.UserID.IsNil() && r.ActorUserID != f.UserID {
			continue
		}
		if f.Action != "" && r.Action != f.Action {
			continue
		}
		if !f.From.IsZero() && r.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.Timestamp.Before(f.To) {
			continue
		}
		r.Metadata = cloneMap(r.Metadata)
		out = append(out, r)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
