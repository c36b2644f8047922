package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// MemoryStore implements Store in process memory. Entries expire after ttl;
// a zero ttl keeps them forever.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	items   []domain.LineItem
	savedAt time.Time
}

// NewMemoryStore creates an in-memory snapshot store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]domain.LineItem, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.ttl > 0 && s.now().Sub(entry.savedAt) > s.ttl {
		s.mu.Lock()
		delete(s.entries, sessionID)
		s.mu.Unlock()
		return nil, nil
	}
	return domain.CloneItems(entry.items), nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, items []domain.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{items: domain.CloneItems(items), savedAt: s.now()}
	return nil
}
