package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fintrail/internal/ledger/models"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
)

// InMemoryStore keeps transactions in a map for tests and database-less runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	txns   map[id.TransactionID]models.Transaction
	nextID id.TransactionID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{txns: make(map[id.TransactionID]models.Transaction)}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.txns {
		if existing.Reference == t.Reference {
			return fmt.Errorf("create transaction: %w", sentinel.ErrConflict)
		}
	}
	s.nextID++
	t.ID = s.nextID
	s.txns[t.ID] = *t
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, txID id.TransactionID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[txID]
	if !ok {
		return nil, fmt.Errorf("find transaction: %w", sentinel.ErrNotFound)
	}
	return &t, nil
}

// ListByUser returns the user's transactions newest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID, offset, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, t := range s.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []models.Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.txns {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for txID, t := range s.txns {
		if t.UserID == userID {
			delete(s.txns, txID)
			n++
		}
	}
	return n, nil
}
