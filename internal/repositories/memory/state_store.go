package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/acai-counter/pos/internal/repositories"
)

// StateStore keeps snapshots and records in process memory. It backs session-scoped
// persistence and tests.
type StateStore struct {
	mu      sync.RWMutex
	values  map[string][]byte
	records map[string]map[string][]byte
}

var (
	_ repositories.StateStore  = (*StateStore)(nil)
	_ repositories.RecordStore = (*StateStore)(nil)
)

// NewStateStore constructs an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		values:  make(map[string][]byte),
		records: make(map[string]map[string][]byte),
	}
}

// Get implements repositories.StateStore.
func (s *StateStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set implements repositories.StateStore.
func (s *StateStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Keys lists stored keys; order is unspecified.
func (s *StateStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	return keys
}

// PutRecord implements repositories.RecordStore.
func (s *StateStore) PutRecord(_ context.Context, collection, id string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.records[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.records[collection] = docs
	}
	docs[id] = append([]byte(nil), value...)
	return nil
}

// DeleteRecord implements repositories.RecordStore.
func (s *StateStore) DeleteRecord(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[collection], id)
	return nil
}

// ListRecords implements repositories.RecordStore. Records come back ordered by id.
func (s *StateStore) ListRecords(_ context.Context, collection string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.records[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]byte(nil), docs[id]...))
	}
	return out, nil
}
