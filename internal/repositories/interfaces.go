package repositories

import (
	"context"

	"github.com/acai-counter/pos/internal/domain"
)

// StateStore is the key/value substrate behind the session carts. Values are opaque JSON
// snapshots; Get reports ok=false when the key has never been written.
type StateStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// RecordStore keeps one JSON document per record, grouped by collection. Deleting a missing
// record is not an error. ListRecords order is unspecified.
type RecordStore interface {
	PutRecord(ctx context.Context, collection, id string, value []byte) error
	DeleteRecord(ctx context.Context, collection, id string) error
	ListRecords(ctx context.Context, collection string) ([][]byte, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ReadinessRepository reports the status of downstream dependencies.
type ReadinessRepository interface {
	Collect(ctx context.Context) (domain.ReadinessReport, error)
}

// Record collections written by the order store and the sales ledger.
const (
	OrdersCollection = "orders"
	SalesCollection  = "sales"
)

// CartStateKey scopes a cart snapshot to one POS session.
func CartStateKey(session string) string {
	return "cart:" + session
}
