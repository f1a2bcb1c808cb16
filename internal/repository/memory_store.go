package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryOTPStore is an in-process OTPStore for tests and single-node
// deployments. Expired entries are purged lazily on access.
type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	code      string
	expiresAt time.Time
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryOTPStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !time.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.code, true, nil
}

func (s *MemoryOTPStore) Add(_ context.Context, key, code string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}

	s.entries[key] = memoryEntry{
		code:      code,
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
