package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fintrail/internal/consent/models"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
)

type key struct {
	user    id.UserID
	purpose id.ConsentPurpose
}

type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[key]models.Consent
	nextID   id.ConsentID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{consents: make(map[key]models.Consent)}
}

// Upsert inserts or replaces the consent for (UserID, Purpose).
func (s *InMemoryStore) Upsert(_ context.Context, c *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{c.UserID, c.Purpose}
	if existing, ok := s.consents[k]; ok {
		c.ID = existing.ID
	} else {
		s.nextID++
		c.ID = s.nextID
	}
	s.consents[k] = *c
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, userID id.UserID, purpose id.ConsentPurpose) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[key{userID, purpose}]
	if !ok {
		return nil, fmt.Errorf("find consent: %w", sentinel.ErrNotFound)
	}
	return &c, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Consent{}
	for k, c := range s.consents {
		if k.user == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.consents {
		if k.user == userID {
			delete(s.consents, k)
			n++
		}
	}
	return n, nil
}
