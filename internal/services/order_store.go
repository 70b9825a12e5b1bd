package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/platform/textutil"
	"github.com/acai-counter/pos/internal/repositories"
)

// OrderStoreDeps wires persistence, clock and id generation for comandas. Each order is
// stored as its own record in repositories.OrdersCollection.
type OrderStoreDeps struct {
	Records           repositories.RecordStore
	Clock             func() time.Time
	IDGenerator       func() string
	DisableValidation bool
	Logger            func(context.Context, string, map[string]any)
}

// OrderDraft is the input for opening a comanda. Status defaults to open.
type OrderDraft struct {
	CustomerName string
	Items        []domain.SaleItem
	Status       domain.OrderStatus
}

// OrderUpdate is a partial update; only non-nil fields are validated and applied.
type OrderUpdate struct {
	CustomerName  *string
	Items         *[]domain.SaleItem
	Status        *domain.OrderStatus
	PaymentMethod *domain.PaymentMethod
	Total         *decimal.Decimal
	Change        *decimal.Decimal
	CompletedAt   *time.Time
}

// OrderStore keeps the open comandas in creation order.
type OrderStore struct {
	mu       sync.Mutex
	orders   []domain.Order
	err      error
	records  repositories.RecordStore
	writer   *persistWriter
	validate bool
	newID    func() string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewOrderStore constructs an empty order store.
func NewOrderStore(deps OrderStoreDeps) *OrderStore {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	var writer *persistWriter
	if deps.Records != nil {
		writer = newPersistWriter("orders.persist_failed", defaultPersistTimeout, logger)
	}
	return &OrderStore{
		orders:   []domain.Order{},
		records:  deps.Records,
		writer:   writer,
		validate: !deps.DisableValidation,
		newID:    idGen,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}
}

// AddOrder validates draft and opens a new comanda with a fresh id and timestamps.
func (s *OrderStore) AddOrder(ctx context.Context, draft OrderDraft) (domain.Order, error) {
	name := textutil.SanitizeLabel(draft.CustomerName)
	status := draft.Status
	if status == "" {
		status = domain.OrderStatusOpen
	}
	if s.validate {
		if err := validateOrderFields(&name, &status); err != nil {
			return domain.Order{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	order := domain.Order{
		ID:           s.newID(),
		CustomerName: name,
		Items:        domain.CloneItems(draft.Items),
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.orders = append(s.orders, order)
	s.putLocked(ctx, "add", order)
	return order.Clone(), nil
}

// UpdateOrder applies update to the order id and refreshes UpdatedAt.
func (s *OrderStore) UpdateOrder(ctx context.Context, id string, update OrderUpdate) (domain.Order, error) {
	var name *string
	if update.CustomerName != nil {
		sanitized := textutil.SanitizeLabel(*update.CustomerName)
		name = &sanitized
	}
	if s.validate {
		if err := validateOrderFields(name, update.Status); err != nil {
			return domain.Order{}, err
		}
		if update.PaymentMethod != nil && !update.PaymentMethod.Valid() {
			return domain.Order{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, *update.PaymentMethod)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	order := &s.orders[idx]
	if name != nil {
		order.CustomerName = *name
	}
	if update.Items != nil {
		order.Items = domain.CloneItems(*update.Items)
	}
	if update.Status != nil {
		order.Status = *update.Status
	}
	if update.PaymentMethod != nil {
		order.PaymentMethod = *update.PaymentMethod
	}
	if update.Total != nil {
		total := *update.Total
		order.Total = &total
	}
	if update.Change != nil {
		change := *update.Change
		order.Change = &change
	}
	if update.CompletedAt != nil {
		ts := update.CompletedAt.UTC()
		order.CompletedAt = &ts
	}
	order.UpdatedAt = s.now()

	s.putLocked(ctx, "update", *order)
	return order.Clone(), nil
}

// AddItems appends items to an open order.
func (s *OrderStore) AddItems(ctx context.Context, id string, items []domain.SaleItem) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, ErrNoItems
	}
	return s.mutateOpen(ctx, id, "add_items", func(order *domain.Order) error {
		order.Items = append(order.Items, domain.CloneItems(items)...)
		return nil
	})
}

// RemoveItemAt drops the line item at index from an open order.
func (s *OrderStore) RemoveItemAt(ctx context.Context, id string, index int) (domain.Order, error) {
	return s.mutateOpen(ctx, id, "remove_item", func(order *domain.Order) error {
		if index < 0 || index >= len(order.Items) {
			return fmt.Errorf("%w: index %d", ErrItemNotFound, index)
		}
		order.Items = append(order.Items[:index], order.Items[index+1:]...)
		return nil
	})
}

func (s *OrderStore) mutateOpen(ctx context.Context, id, action string, fn func(*domain.Order) error) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if s.orders[idx].Status != domain.OrderStatusOpen {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotOpen, id)
	}
	working := s.orders[idx].Clone()
	if err := fn(&working); err != nil {
		return domain.Order{}, err
	}
	working.UpdatedAt = s.now()
	s.orders[idx] = working
	s.putLocked(ctx, action, working)
	return working.Clone(), nil
}

// RemoveOrder deletes the order id. It reports ErrOrderNotFound without other effect when absent.
func (s *OrderStore) RemoveOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	removed := s.orders[idx].ID
	s.orders = append(s.orders[:idx], s.orders[idx+1:]...)
	s.deleteLocked(ctx, "remove", removed)
	return nil
}

// GetOrder looks up id; ok is false when absent.
func (s *OrderStore) GetOrder(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.Order{}, false
	}
	return s.orders[idx].Clone(), true
}

// ClearOrders drops every order held and forgets any stored error.
func (s *OrderStore) ClearOrders(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
	s.writer.reset()
	for _, order := range s.orders {
		s.deleteLocked(ctx, "clear", order.ID)
	}
	s.orders = []domain.Order{}
}

// Orders returns copies of all orders in creation order.
func (s *OrderStore) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, len(s.orders))
	for idx, order := range s.orders {
		out[idx] = order.Clone()
	}
	return out
}

// OrderCount returns the number of orders held.
func (s *OrderStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// TotalValue sums every order, using a stored non-zero total when present.
func (s *OrderStore) TotalValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, order := range s.orders {
		total = total.Add(OrderValue(order))
	}
	return total
}

// OrderValue returns the stored total when set and non-zero, otherwise prices the items.
func OrderValue(order domain.Order) decimal.Decimal {
	if order.Total != nil && !order.Total.IsZero() {
		return *order.Total
	}
	return CollectionTotal(order.Items)
}

// Err returns the load failure, if any, otherwise the last failed record write.
func (s *OrderStore) Err() error {
	s.mu.Lock()
	loadErr := s.err
	s.mu.Unlock()
	if loadErr != nil {
		return loadErr
	}
	return s.writer.Err()
}

// Flush waits for queued record writes and returns Err.
func (s *OrderStore) Flush(ctx context.Context) error {
	if err := s.writer.Flush(ctx); err != nil {
		return err
	}
	return s.Err()
}

// Load restores orders from their records in creation order. A malformed record is reported
// as ErrStorage and leaves the collection empty.
func (s *OrderStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return nil
	}

	s.orders = []domain.Order{}
	raws, err := s.records.ListRecords(ctx, repositories.OrdersCollection)
	if err != nil {
		s.err = fmt.Errorf("%w: load orders: %w", ErrStorage, err)
		return s.err
	}
	orders := make([]domain.Order, 0, len(raws))
	for _, raw := range raws {
		var order domain.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			s.err = fmt.Errorf("%w: decode order: %w", ErrStorage, err)
			return s.err
		}
		orders = append(orders, order)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	s.orders = orders
	return nil
}

// takeOpen runs fn against the open order id and, when fn succeeds, removes the order, all
// while holding the store lock.
func (s *OrderStore) takeOpen(ctx context.Context, id string, fn func(domain.Order) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	order := s.orders[idx]
	if order.Status != domain.OrderStatusOpen {
		return fmt.Errorf("%w: %s", ErrOrderNotOpen, id)
	}
	if err := fn(order.Clone()); err != nil {
		return err
	}
	s.orders = append(s.orders[:idx], s.orders[idx+1:]...)
	s.deleteLocked(ctx, "complete", order.ID)
	return nil
}

func (s *OrderStore) indexLocked(id string) int {
	id = strings.TrimSpace(id)
	for idx, order := range s.orders {
		if order.ID == id {
			return idx
		}
	}
	return -1
}

// putLocked queues the record write for order; it never waits on the backend.
func (s *OrderStore) putLocked(ctx context.Context, action string, order domain.Order) {
	if s.writer == nil {
		return
	}
	payload, err := json.Marshal(order)
	records, id := s.records, order.ID
	s.writer.submit(ctx, recordKey(repositories.OrdersCollection, id), action, func(ctx context.Context) error {
		if err != nil {
			return err
		}
		return records.PutRecord(ctx, repositories.OrdersCollection, id, payload)
	})
}

func (s *OrderStore) deleteLocked(ctx context.Context, action, id string) {
	if s.writer == nil {
		return
	}
	records := s.records
	s.writer.submit(ctx, recordKey(repositories.OrdersCollection, id), action, func(ctx context.Context) error {
		return records.DeleteRecord(ctx, repositories.OrdersCollection, id)
	})
}

func validateOrderFields(name *string, status *domain.OrderStatus) error {
	if name != nil && strings.TrimSpace(*name) == "" {
		return ErrCustomerNameRequired
	}
	if status != nil && !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *status)
	}
	return nil
}
