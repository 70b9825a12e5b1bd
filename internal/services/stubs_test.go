package services

import (
	"context"
	"sync"
	"time"
)

type stubStateStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	records  map[string]map[string][]byte
	getFn    func(ctx context.Context, key string) ([]byte, bool, error)
	setFn    func(ctx context.Context, key string, value []byte) error
	putFn    func(ctx context.Context, collection, id string, value []byte) error
	deleteFn func(ctx context.Context, collection, id string) error
	listFn   func(ctx context.Context, collection string) ([][]byte, error)
	sets     int
}

func newStubStateStore() *stubStateStore {
	return &stubStateStore{
		values:  make(map[string][]byte),
		records: make(map[string]map[string][]byte),
	}
}

func (s *stubStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.getFn != nil {
		return s.getFn(ctx, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *stubStateStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.sets++
	setFn := s.setFn
	s.mu.Unlock()
	if setFn != nil {
		return setFn(ctx, key, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubStateStore) PutRecord(ctx context.Context, collection, id string, value []byte) error {
	s.mu.Lock()
	putFn := s.putFn
	s.mu.Unlock()
	if putFn != nil {
		if err := putFn(ctx, collection, id, value); err != nil {
			return err
		}
	}
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

func (s *stubStateStore) DeleteRecord(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	deleteFn := s.deleteFn
	s.mu.Unlock()
	if deleteFn != nil {
		if err := deleteFn(ctx, collection, id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[collection], id)
	return nil
}

func (s *stubStateStore) ListRecords(ctx context.Context, collection string) ([][]byte, error) {
	if s.listFn != nil {
		return s.listFn(ctx, collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, 0, len(s.records[collection]))
	for _, value := range s.records[collection] {
		out = append(out, value)
	}
	return out, nil
}

func (s *stubStateStore) value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *stubStateStore) record(collection, id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.records[collection][id]
	return value, ok
}

func (s *stubStateStore) recordCount(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[collection])
}

func (s *stubStateStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func (s *stubStateStore) failPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putFn = func(context.Context, string, string, []byte) error { return err }
}

func (s *stubStateStore) failSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.setFn = nil
		return
	}
	s.setFn = func(context.Context, string, []byte) error { return err }
}

type recordedEvent struct {
	event  string
	fields map[string]any
}

type captureLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{event: event, fields: fields})
}

func (l *captureLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.event == event {
			return true
		}
	}
	return false
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[next%len(ids)]
		next++
		return id
	}
}
