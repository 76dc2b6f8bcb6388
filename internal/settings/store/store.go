// Package store persists string-valued settings. Keys are namespaced by the caller.
package store

import (
	"context"
	"sync"
)

// InMemory keeps settings in a map for tests and single-process runs.
type InMemory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{values: make(map[string]string)}
}

// Get returns the value and whether it was set.
func (s *InMemory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
