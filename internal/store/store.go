// Package store provides user state persistence backends for VentaFlow.
//
// It includes an in-memory store for tests and SQLite and PostgreSQL backed
// stores for production. One record is kept per user; the orchestration
// engine is the only writer.
package store

import (
	"fmt"
	"sync"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// Store is the persistence contract for per-user conversation state.
type Store interface {
	// GetUserState returns the stored record for a user, or nil when the user
	// has never been seen. Absence is the first-contact case, not an error.
	GetUserState(userID string) (*models.UserState, error)

	// SaveUserState atomically replaces the whole record for the user.
	SaveUserState(state models.UserState) error

	// CountUsersByConsent aggregates users by consent status for stats.
	CountUsersByConsent() (map[models.ConsentStatus]int, error)

	// Close releases the underlying resources.
	Close() error
}

// InMemoryStore is a map-backed Store for tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.UserState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]models.UserState)}
}

// GetUserState returns a copy of the stored record, or nil when absent.
func (s *InMemoryStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, fmt.Errorf("get user state: %w", models.ErrEmptyUserID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// SaveUserState replaces the record for the user.
func (s *InMemoryStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return fmt.Errorf("save user state: %w", models.ErrEmptyUserID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID] = state
	return nil
}

// CountUsersByConsent aggregates the stored users by consent status.
func (s *InMemoryStore) CountUsersByConsent() (map[models.ConsentStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.ConsentStatus]int)
	for _, state := range s.states {
		counts[state.ConsentStatus]++
	}
	return counts, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
