package jobstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store with the same conditional-insert
// semantics as the Postgres implementation. Used in tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemory constructs an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[fingerprint]
	return ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Fingerprint]; ok {
		return ErrAlreadyExists
	}
	s.records[rec.Fingerprint] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len reports the number of persisted records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Close() {}
