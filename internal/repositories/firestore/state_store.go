package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"

	pfirestore "github.com/acai-counter/pos/internal/platform/firestore"
	"github.com/acai-counter/pos/internal/repositories"
)

const defaultWriteAttempts = 4

// snapshotDocument is the stored shape of one state key.
type snapshotDocument struct {
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// recordDocument is the stored shape of one order or sale.
type recordDocument struct {
	ID        string    `firestore:"id"`
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type documentStore interface {
	Get(ctx context.Context, id string) (snapshotDocument, error)
	Set(ctx context.Context, id string, value snapshotDocument) error
}

type recordCollection interface {
	Set(ctx context.Context, id string, value recordDocument) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]recordDocument, error)
}

// StateStoreOption customises the Firestore state store.
type StateStoreOption func(*StateStore)

// WithWriteAttempts bounds how many times an unavailable write is tried.
func WithWriteAttempts(n int) StateStoreOption {
	return func(s *StateStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithBackoff overrides the retry backoff between unavailable writes.
func WithBackoff(initial, max time.Duration) StateStoreOption {
	return func(s *StateStore) {
		s.backoff = func() gax.Backoff {
			return gax.Backoff{Initial: initial, Max: max, Multiplier: 2}
		}
	}
}

// WithStateClock injects the clock stamped on each snapshot.
func WithStateClock(now func() time.Time) StateStoreOption {
	return func(s *StateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// StateStore persists each state key as one document holding the JSON snapshot. Records get
// one document each under <collection>/<record collection>/records, keyed by record id.
type StateStore struct {
	docs     documentStore
	records  func(name string) recordCollection
	attempts int
	backoff  func() gax.Backoff
	now      func() time.Time
}

var (
	_ repositories.StateStore  = (*StateStore)(nil)
	_ repositories.RecordStore = (*StateStore)(nil)
)

// NewStateStore constructs a Firestore-backed state store over collection.
func NewStateStore(provider *pfirestore.Provider, collection string, opts ...StateStoreOption) (*StateStore, error) {
	if provider == nil {
		return nil, errors.New("state store requires firestore provider")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("state store requires a collection name")
	}
	store := newStateStore(pfirestore.NewCollection[snapshotDocument](provider, collection), opts...)
	store.records = func(name string) recordCollection {
		return pfirestore.NewCollection[recordDocument](provider, collection+"/"+name+"/records")
	}
	return store, nil
}

func newStateStore(docs documentStore, opts ...StateStoreOption) *StateStore {
	store := &StateStore{
		docs:     docs,
		attempts: defaultWriteAttempts,
		backoff: func() gax.Backoff {
			return gax.Backoff{Initial: 100 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2}
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Get implements repositories.StateStore.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	doc, err := s.docs.Get(ctx, key)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("state store: get %s: %w", key, err)
	}
	return []byte(doc.Payload), true, nil
}

// Set implements repositories.StateStore. Writes failing with an unavailable backend are
// retried with exponential backoff until the attempts are exhausted or ctx ends.
func (s *StateStore) Set(ctx context.Context, key string, value []byte) error {
	doc := snapshotDocument{Payload: string(value), UpdatedAt: s.now().UTC()}
	if err := s.retry(ctx, func() error { return s.docs.Set(ctx, key, doc) }); err != nil {
		return fmt.Errorf("state store: set %s: %w", key, err)
	}
	return nil
}

// PutRecord implements repositories.RecordStore with the same retry policy as Set.
func (s *StateStore) PutRecord(ctx context.Context, collection, id string, value []byte) error {
	records, err := s.collection(collection)
	if err != nil {
		return err
	}
	doc := recordDocument{ID: id, Payload: string(value), UpdatedAt: s.now().UTC()}
	if err := s.retry(ctx, func() error { return records.Set(ctx, id, doc) }); err != nil {
		return fmt.Errorf("state store: put %s/%s: %w", collection, id, err)
	}
	return nil
}

// DeleteRecord implements repositories.RecordStore with the same retry policy as Set.
func (s *StateStore) DeleteRecord(ctx context.Context, collection, id string) error {
	records, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := s.retry(ctx, func() error { return records.Delete(ctx, id) }); err != nil {
		return fmt.Errorf("state store: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// ListRecords implements repositories.RecordStore.
func (s *StateStore) ListRecords(ctx context.Context, collection string) ([][]byte, error) {
	records, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	docs, err := records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("state store: list %s: %w", collection, err)
	}
	out := make([][]byte, 0, len(docs))
	for _, doc := range docs {
		out = append(out, []byte(doc.Payload))
	}
	return out, nil
}

func (s *StateStore) collection(name string) (recordCollection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("state store: record collection name is required")
	}
	if s.records == nil {
		return nil, errors.New("state store: record collections not configured")
	}
	return s.records(name), nil
}

func (s *StateStore) retry(ctx context.Context, write func() error) error {
	bo := s.backoff()
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = write()
		if err == nil {
			return nil
		}
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsUnavailable() || attempt == s.attempts {
			break
		}
		if sleepErr := gax.Sleep(ctx, bo.Pause()); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}
