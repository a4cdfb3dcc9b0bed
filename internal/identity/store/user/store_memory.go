package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrail/internal/identity/models"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in a map guarded by a RWMutex. Reads return
// copies so callers cannot mutate stored state.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
	nextID  id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(u.Email)
	if _, exists := s.byEmail[key]; exists {
		return fmt.Errorf("create user: %w", sentinel.ErrConflict)
	}
	s.nextID++
	u.ID = s.nextID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = u.CreatedAt
	stored := *u
	s.users[u.ID] = &stored
	s.byEmail[key] = u.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("find user by id: %w", sentinel.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("find user by email: %w", sentinel.ErrNotFound)
	}
	cp := *s.users[userID]
	return &cp, nil
}

// EmailForUser implements audit.Directory.
func (s *InMemoryUserStore) EmailForUser(ctx context.Context, userID id.UserID) (string, error) {
	u, err := s.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (s *InMemoryUserStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("update user: %w", sentinel.ErrNotFound)
	}
	oldKey, newKey := normalizeEmail(current.Email), normalizeEmail(u.Email)
	if oldKey != newKey {
		if _, taken := s.byEmail[newKey]; taken {
			return fmt.Errorf("update user: %w", sentinel.ErrConflict)
		}
		delete(s.byEmail, oldKey)
		s.byEmail[newKey] = u.ID
	}
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *InMemoryUserStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("delete user: %w", sentinel.ErrNotFound)
	}
	delete(s.byEmail, normalizeEmail(u.Email))
	delete(s.users, userID)
	return nil
}

// ListRetentionExpired returns users whose retention marker is before now,
// in id order. Users without a marker are never returned.
func (s *InMemoryUserStore) ListRetentionExpired(_ context.Context, now time.Time) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []id.UserID
	for _, u := range s.users {
		if u.RetentionExpired(now) {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *InMemoryUserStore) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.Stats
	for _, u := range s.users {
		st.Total++
		if u.ConsentGiven {
			st.Consented++
		}
		if u.MFAEnabled {
			st.MFA++
		}
	}
	return st, nil
}
