package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record    *Record // nil while pending
	expiresAt time.Time
}

// MemoryStore is a process-local Store used when no Redis is configured.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	pendingTTL time.Duration
	entries    map[string]memoryEntry
	now        func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:        ttl,
		pendingTTL: pendingTTL(ttl),
		entries:    make(map[string]memoryEntry),
		now:        time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Begin(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	if entry, ok := s.entries[key]; ok {
		if entry.record == nil {
			return nil, ErrInProgress
		}
		rec := *entry.record
		return &rec, nil
	}
	s.entries[key] = memoryEntry{expiresAt: now.Add(s.pendingTTL)}
	return nil, nil
}

func (s *MemoryStore) Finish(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{record: &rec, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
