package store

import (
	"context"
	"sort"
	"sync"

	"dab/internal/registry/models"
	"dab/pkg/platform/sentinel"
)

// ErrNotFound is returned when no descriptor exists under a name.
var ErrNotFound = sentinel.ErrNotFound

// InMemory keeps the named registry in a map guarded by a RWMutex.
// Returned descriptors are copies.
type InMemory struct {
	mu        sync.RWMutex
	canisters map[string]models.CanisterDescriptor
}

// NewInMemory returns an empty registry store.
func NewInMemory() *InMemory {
	return &InMemory{canisters: make(map[string]models.CanisterDescriptor)}
}

// Save inserts or overwrites the descriptor under its name.
func (s *InMemory) Save(_ context.Context, d *models.CanisterDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canisters[d.Name] = *d
	return nil
}

// Delete removes the descriptor, returning ErrNotFound if it is absent.
func (s *InMemory) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canisters[name]; !ok {
		return ErrNotFound
	}
	delete(s.canisters, name)
	return nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.CanisterDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.canisters[name]; ok {
		return &d, nil
	}
	return nil, ErrNotFound
}

// ListAll returns every descriptor sorted by name.
func (s *InMemory) ListAll(_ context.Context) ([]*models.CanisterDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CanisterDescriptor, 0, len(s.canisters))
	for _, d := range s.canisters {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.canisters), nil
}

// Replace swaps the whole map for the given descriptors (snapshot restore).
func (s *InMemory) Replace(_ context.Context, descriptors []*models.CanisterDescriptor) error {
	next := make(map[string]models.CanisterDescriptor, len(descriptors))
	for _, d := range descriptors {
		next[d.Name] = *d
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canisters = next
	return nil
}
