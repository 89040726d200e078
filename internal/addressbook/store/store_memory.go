package store

import (
	"context"
	"sync"

	"github.com/google/btree"

	"dab/internal/addressbook/models"
	id "dab/pkg/domain"
	"dab/pkg/platform/sentinel"
)

// ErrNotFound is returned when the owner has no entry under a name.
var ErrNotFound = sentinel.ErrNotFound

const btreeDegree = 32

func entryLess(a, b models.AddressEntry) bool {
	return a.Key().Less(b.Key())
}

// InMemory keeps every address book in one B-tree ordered by (owner, name).
// Per-owner reads and deletes are range scans starting at the owner's first key.
type InMemory struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[models.AddressEntry]
}

func NewInMemory() *InMemory {
	return &InMemory{tree: btree.NewG(btreeDegree, entryLess)}
}

// Put inserts or overwrites the entry at its key.
func (s *InMemory) Put(_ context.Context, entry *models.AddressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(*entry)
	return nil
}

// Delete removes the entry at key and reports whether one existed.
func (s *InMemory) Delete(_ context.Context, key models.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, removed := s.tree.Delete(models.AddressEntry{Owner: key.Owner, Name: key.Name})
	return removed, nil
}

func (s *InMemory) Find(_ context.Context, key models.Key) (*models.AddressEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tree.Get(models.AddressEntry{Owner: key.Owner, Name: key.Name})
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// ListByOwner returns the owner's entries sorted by name.
func (s *InMemory) ListByOwner(_ context.Context, owner id.Identity) ([]*models.AddressEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.AddressEntry{}
	s.ascendOwner(owner, func(entry models.AddressEntry) {
		out = append(out, &entry)
	})
	return out, nil
}

// DeleteByOwner removes every entry of owner and returns how many were removed.
func (s *InMemory) DeleteByOwner(_ context.Context, owner id.Identity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doomed []models.AddressEntry
	s.ascendOwner(owner, func(entry models.AddressEntry) {
		doomed = append(doomed, entry)
	})
	for _, entry := range doomed {
		s.tree.Delete(entry)
	}
	return len(doomed), nil
}

// ListAll returns every entry in key order.
func (s *InMemory) ListAll(_ context.Context) ([]*models.AddressEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AddressEntry, 0, s.tree.Len())
	s.tree.Ascend(func(entry models.AddressEntry) bool {
		out = append(out, &entry)
		return true
	})
	return out, nil
}

// Replace swaps the whole tree for the given entries (snapshot restore).
func (s *InMemory) Replace(_ context.Context, entries []*models.AddressEntry) error {
	next := btree.NewG(btreeDegree, entryLess)
	for _, entry := range entries {
		next.ReplaceOrInsert(*entry)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = next
	return nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len(), nil
}

// ascendOwner visits the owner's entries in name order. The empty name is the
// smallest key for an owner, so the scan starts at the owner's first entry and
// stops at the first entry of the next owner. Callers hold the lock.
func (s *InMemory) ascendOwner(owner id.Identity, visit func(models.AddressEntry)) {
	s.tree.AscendGreaterOrEqual(models.AddressEntry{Owner: owner}, func(entry models.AddressEntry) bool {
		if entry.Owner != owner {
			return false
		}
		visit(entry)
		return true
	})
}
