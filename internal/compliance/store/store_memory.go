package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"fintrail/internal/compliance/models"
)

type inventoryKey struct {
	category models.Category
	dataType string
}

// InMemoryInventory keeps the data inventory in a map keyed by category and
// data type.
type InMemoryInventory struct {
	mu      sync.RWMutex
	entries map[inventoryKey]models.InventoryEntry
	nextID  int64
}

func NewInMemoryInventory() *InMemoryInventory {
	return &InMemoryInventory{entries: make(map[inventoryKey]models.InventoryEntry)}
}

// Upsert inserts e or replaces the entry with the same category and data type.
func (s *InMemoryInventory) Upsert(_ context.Context, e *models.InventoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inventoryKey{e.Category, e.DataType}
	if existing, ok := s.entries[key]; ok {
		e.ID = existing.ID
	} else {
		s.nextID++
		e.ID = s.nextID
	}
	stored := *e
	stored.AccessRoles = slices.Clone(e.AccessRoles)
	s.entries[key] = stored
	return nil
}

// List returns entries ordered by category, then data type.
func (s *InMemoryInventory) List(_ context.Context) ([]models.InventoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.InventoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		e.AccessRoles = slices.Clone(e.AccessRoles)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].DataType < out[j].DataType
	})
	return out, nil
}

func (s *InMemoryInventory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
