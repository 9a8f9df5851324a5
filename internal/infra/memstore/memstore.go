// Package memstore is an in-memory port.UserStore for local runs and tests.
// It applies the same compare-and-swap on Version as the MongoDB store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/finmate/finance-tracker-go/internal/domain"
)

// Store keeps deep copies of every document; callers never share memory with it.
type Store struct {
	mu    sync.RWMutex
	users map[string]*domain.UserFinance
}

// New returns an empty store.
func New() *Store {
	return &Store{users: make(map[string]*domain.UserFinance)}
}

func (s *Store) Find(ctx context.Context, userID string) (*domain.UserFinance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return u.Clone(), nil
}

// FindAll returns every document ordered by ID.
func (s *Store) FindAll(ctx context.Context) ([]domain.UserFinance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserFinance, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Create(ctx context.Context, u *domain.UserFinance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return &domain.ErrConflict{Message: "finance document already exists for user " + u.ID}
	}
	u.Version = 1
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *Store) Save(ctx context.Context, u *domain.UserFinance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[u.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: u.ID}
	}
	if current.Version != u.Version {
		return &domain.ErrVersionConflict{UserID: u.ID, Expected: u.Version}
	}
	u.Version++
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
