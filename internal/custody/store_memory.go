package custody

import (
	"context"
	"fmt"
	"sync"

	"marquee/pkg/platform/sentinel"
)

// InMemoryStore keeps keypair records in memory for tests and dev runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryStore constructs an empty in-memory keypair store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Load(_ context.Context, alias string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[alias]; ok {
		return cloneRecord(record), nil
	}
	return nil, fmt.Errorf("keypair %q: %w", alias, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Alias] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, alias)
	return nil
}

func cloneRecord(r *Record) *Record {
	out := *r
	out.Seed = append([]byte(nil), r.Seed...)
	return &out
}
