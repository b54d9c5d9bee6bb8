package inventory

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var (
	// ErrNotFound is returned when no inventory exists for an owner.
	ErrNotFound = errors.New("inventory: not found")

	// ErrItemNotFound is returned when an inventory does not contain an item.
	ErrItemNotFound = errors.New("inventory: item not found")

	// ErrExists is returned by Create when the owner already has an inventory.
	ErrExists = errors.New("inventory: already exists")

	// ErrEmptyOwner is returned for an empty owner identifier.
	ErrEmptyOwner = errors.New("inventory: owner must be a non-empty string")
)

// Store persists inventories keyed by owner. Items are kept in insertion
// order and duplicates are allowed. Remove and Update act on the first
// matching item.
//
// Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, owner string) error
	Owners(ctx context.Context) ([]string, error)
	Items(ctx context.Context, owner string) ([]string, error)
	Add(ctx context.Context, owner, item string) error
	Remove(ctx context.Context, owner, item string) error
	Update(ctx context.Context, owner, item, newItem string) error
}

// MemStore is an in-memory [Store]. Its contents live as long as the process.
type MemStore struct {
	mu     sync.RWMutex
	owners []string
	items  map[string][]string
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string][]string)}
}

// Create implements [Store].
func (s *MemStore) Create(_ context.Context, owner string) error {
	if owner == "" {
		return ErrEmptyOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[owner]; ok {
		return ErrExists
	}
	s.items[owner] = []string{}
	s.owners = append(s.owners, owner)
	return nil
}

// Owners implements [Store]. Owners are returned in creation order.
func (s *MemStore) Owners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.owners), nil
}

// Items implements [Store].
func (s *MemStore) Items(_ context.Context, owner string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.items[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(items), nil
}

// Add implements [Store].
func (s *MemStore) Add(_ context.Context, owner, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[owner]
	if !ok {
		return ErrNotFound
	}
	s.items[owner] = append(items, item)
	return nil
}

// Remove implements [Store].
func (s *MemStore) Remove(_ context.Context, owner, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[owner]
	if !ok {
		return ErrNotFound
	}
	i := slices.Index(items, item)
	if i < 0 {
		return ErrItemNotFound
	}
	s.items[owner] = slices.Delete(items, i, i+1)
	return nil
}

// Update implements [Store].
func (s *MemStore) Update(_ context.Context, owner, item, newItem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[owner]
	if !ok {
		return ErrNotFound
	}
	i := slices.Index(items, item)
	if i < 0 {
		return ErrItemNotFound
	}
	items[i] = newItem
	return nil
}
