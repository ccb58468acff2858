package push

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is an in-process Storage for tests and local runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*Notification
	now     func() time.Time
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*Notification),
		now:     time.Now,
	}
}

func (s *MemoryStorage) Create(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[n.ID]; ok {
		return fmt.Errorf("notification %s already exists", n.ID)
	}

	now := s.now()
	n.CreatedAt = now
	n.UpdatedAt = now
	s.records[n.ID] = n.Clone()
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n.Clone(), nil
}

func (s *MemoryStorage) Find(_ context.Context, filter Filter) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Notification, 0)
	for _, n := range s.records {
		if matches(n, filter) {
			out = append(out, n.Clone())
		}
	}

	slices.SortFunc(out, func(a, b *Notification) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) Save(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[n.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, n.ID)
	}

	n.UpdatedAt = s.now()
	s.records[n.ID] = n.Clone()
	return nil
}

// Len returns the number of stored notifications.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(n *Notification, f Filter) bool {
	if f.Sent != nil && n.IsSent() != *f.Sent {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, n.ID) {
		return false
	}
	if len(f.To) > 0 && !slices.ContainsFunc(n.To, func(r string) bool { return slices.Contains(f.To, r) }) {
		return false
	}
	if !f.CreatedAfter.IsZero() && !n.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !n.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	for k, v := range f.Extra {
		if !reflect.DeepEqual(n.Extra[k], v) {
			return false
		}
	}
	return true
}
