package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pollworker/internal/user/models"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
)

// InMemory is a map-backed user store for tests and database-less runs.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, taken := s.byEmail[key]; taken {
		return fmt.Errorf("user email %s: %w", user.Email, sentinel.ErrAlreadyUsed)
	}
	if _, taken := s.byID[user.ID]; taken {
		return fmt.Errorf("user id %s: %w", user.ID, sentinel.ErrAlreadyUsed)
	}
	c := *user
	s.byID[user.ID] = &c
	s.byEmail[key] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *s.byID[userID]
	return &c, nil
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byEmail, strings.ToLower(u.Email))
	delete(s.byID, userID)
	return nil
}

func (s *InMemory) NamesByIDs(_ context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.UserID]string, len(ids))
	for _, userID := range ids {
		if u, ok := s.byID[userID]; ok {
			out[userID] = u.Name
		}
	}
	return out, nil
}
