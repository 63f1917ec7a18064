package cache

import (
	"context"
	"sync"
	"time"
)

// entry is one cached value with its expiry.
type entry struct {
	value    []byte
	cachedAt time.Time
	expires  time.Time
}

// MemoryStore is an in-process Store with TTL expiry and size-bounded
// eviction. Safe for concurrent use; last writer wins on racing sets.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]entry
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a memory store holding at most maxSize entries.
// A janitor goroutine removes expired entries periodically; call Stop when
// the store is no longer needed.
func NewMemoryStore(maxSize int) *MemoryStore {
	s := &MemoryStore{
		entries:  make(map[string]entry),
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Get returns the value for key if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || s.maxSize <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	now := time.Now()
	s.entries[key] = entry{
		value:    value,
		cachedAt: now,
		expires:  now.Add(ttl),
	}
}

// Invalidate removes key from the store.
func (s *MemoryStore) Invalidate(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the current entry count, expired entries included until the
// janitor collects them.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stop terminates the janitor goroutine.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range s.entries {
		if oldestKey == "" || e.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.cachedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, e := range s.entries {
				if now.After(e.expires) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopChan:
			return
		}
	}
}
