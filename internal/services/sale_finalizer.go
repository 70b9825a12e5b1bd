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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/platform/textutil"
	"github.com/acai-counter/pos/internal/repositories"
)

const (
	metricNamespace         = "github.com/acai-counter/pos/services"
	defaultFinalizeTimeout  = 5 * time.Second
	defaultAdjustmentBounds = "0.10"

	// SaleEventCompleted is published after a sale enters the ledger.
	SaleEventCompleted = "sale.completed"
	// SaleEventCancelled is published after a sale is removed from the ledger.
	SaleEventCancelled = "sale.cancelled"
)

// SaleEvent describes a ledger change for downstream consumers.
type SaleEvent struct {
	Type       string               `json:"type"`
	Sale       domain.CompletedSale `json:"sale"`
	OccurredAt time.Time            `json:"occurredAt"`
}

// SaleEventPublisher delivers ledger changes. Publishing is best effort; failures are logged.
type SaleEventPublisher interface {
	PublishSaleEvent(ctx context.Context, event SaleEvent) error
}

// SaleFinalizerDeps wires the ledger, its collaborators and tuning. Each sale is stored as its
// own record in repositories.SalesCollection. A nil AdjustmentTolerance means 10%; an explicit
// zero forbids any discount.
type SaleFinalizerDeps struct {
	Orders              *OrderStore
	Records             repositories.RecordStore
	Publisher           SaleEventPublisher
	Clock               func() time.Time
	IDGenerator         func() string
	AdjustmentTolerance *decimal.Decimal
	FinalizeTimeout     time.Duration
	Meter               metric.Meter
	Logger              func(context.Context, string, map[string]any)
}

// SaleRequest finalizes a list of items directly, usually the session cart.
type SaleRequest struct {
	CustomerName  string
	Items         []domain.SaleItem
	PaymentMethod domain.PaymentMethod
	CashAmount    *decimal.Decimal
	Discount      *decimal.Decimal
}

// PaymentRequest carries the payment choice for finalizing an open order.
type PaymentRequest struct {
	PaymentMethod domain.PaymentMethod
	CashAmount    *decimal.Decimal
	Discount      *decimal.Decimal
}

// SaleFinalizer validates payments and owns the completed-sales ledger.
type SaleFinalizer struct {
	mu        sync.Mutex
	sales     []domain.CompletedSale
	err       error
	orders    *OrderStore
	records   repositories.RecordStore
	writer    *persistWriter
	publisher SaleEventPublisher
	newID     func() string
	now       func() time.Time
	tolerance decimal.Decimal
	timeout   time.Duration
	logger    func(context.Context, string, map[string]any)

	completedCounter metric.Int64Counter
	rejectedCounter  metric.Int64Counter
	revenueCounter   metric.Float64Counter
}

// NewSaleFinalizer constructs a finalizer with an empty ledger.
func NewSaleFinalizer(deps SaleFinalizerDeps) *SaleFinalizer {
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
	tolerance := decimal.RequireFromString(defaultAdjustmentBounds)
	if deps.AdjustmentTolerance != nil {
		tolerance = *deps.AdjustmentTolerance
	}
	timeout := deps.FinalizeTimeout
	if timeout <= 0 {
		timeout = defaultFinalizeTimeout
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	var writer *persistWriter
	if deps.Records != nil {
		writer = newPersistWriter("sales.persist_failed", timeout, logger)
	}

	f := &SaleFinalizer{
		sales:     []domain.CompletedSale{},
		orders:    deps.Orders,
		records:   deps.Records,
		writer:    writer,
		publisher: deps.Publisher,
		newID:     idGen,
		now:       func() time.Time { return clock().UTC() },
		tolerance: tolerance,
		timeout:   timeout,
		logger:    logger,
	}

	var err error
	if f.completedCounter, err = meter.Int64Counter("pos.sales.completed",
		metric.WithDescription("Completed sales by payment method")); err != nil {
		logger(context.Background(), "sales.metric_failed", map[string]any{"metric": "pos.sales.completed", "error": err.Error()})
		f.completedCounter = noop.Int64Counter{}
	}
	if f.rejectedCounter, err = meter.Int64Counter("pos.sales.rejected",
		metric.WithDescription("Rejected finalization attempts by error code")); err != nil {
		logger(context.Background(), "sales.metric_failed", map[string]any{"metric": "pos.sales.rejected", "error": err.Error()})
		f.rejectedCounter = noop.Int64Counter{}
	}
	if f.revenueCounter, err = meter.Float64Counter("pos.sales.revenue",
		metric.WithDescription("Revenue of completed sales")); err != nil {
		logger(context.Background(), "sales.metric_failed", map[string]any{"metric": "pos.sales.revenue", "error": err.Error()})
		f.revenueCounter = noop.Float64Counter{}
	}
	return f
}

// ValidateAdjustedTotal checks that an operator-entered total deviates from original by at most
// tolerance (a fraction of original) in either direction.
func ValidateAdjustedTotal(original, adjusted, tolerance decimal.Decimal) error {
	limit := original.Abs().Mul(tolerance)
	if adjusted.Sub(original).Abs().GreaterThan(limit) {
		return fmt.Errorf("%w: %s differs from %s by more than %s%%",
			ErrAdjustmentOutOfBounds, adjusted, original, tolerance.Mul(decimal.NewFromInt(100)))
	}
	return nil
}

// CompleteSale validates req and appends the resulting sale to the ledger. On failure the
// ledger is untouched.
func (f *SaleFinalizer) CompleteSale(ctx context.Context, req SaleRequest) (domain.CompletedSale, error) {
	f.mu.Lock()
	sale, err := f.build(req.CustomerName, req.Items, PaymentRequest{
		PaymentMethod: req.PaymentMethod,
		CashAmount:    req.CashAmount,
		Discount:      req.Discount,
	})
	if err != nil {
		f.mu.Unlock()
		f.reject(ctx, err)
		return domain.CompletedSale{}, err
	}
	f.appendLocked(ctx, sale)
	f.mu.Unlock()

	f.completed(ctx, sale)
	return sale.Clone(), nil
}

// CompleteOrder finalizes the open order id. The sale enters the ledger and the order leaves
// the open-orders store in one step; on failure neither changes.
func (f *SaleFinalizer) CompleteOrder(ctx context.Context, orderID string, payment PaymentRequest) (domain.CompletedSale, error) {
	if f.orders == nil {
		return domain.CompletedSale{}, fmt.Errorf("%w: order store not configured", ErrOrderNotFound)
	}

	f.mu.Lock()
	var sale domain.CompletedSale
	err := f.orders.takeOpen(ctx, orderID, func(order domain.Order) error {
		built, err := f.build(order.CustomerName, order.Items, payment)
		if err != nil {
			return err
		}
		built.OrderID = order.ID
		built.CreatedAt = order.CreatedAt
		sale = built
		f.appendLocked(ctx, sale)
		return nil
	})
	f.mu.Unlock()

	if err != nil {
		f.reject(ctx, err)
		return domain.CompletedSale{}, err
	}
	f.completed(ctx, sale)
	return sale.Clone(), nil
}

func (f *SaleFinalizer) build(customerName string, items []domain.SaleItem, payment PaymentRequest) (domain.CompletedSale, error) {
	name := textutil.SanitizeLabel(customerName)
	if strings.TrimSpace(name) == "" {
		return domain.CompletedSale{}, ErrCustomerNameRequired
	}
	if len(items) == 0 {
		return domain.CompletedSale{}, ErrNoItems
	}
	if !payment.PaymentMethod.Valid() {
		return domain.CompletedSale{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, payment.PaymentMethod)
	}

	subtotal := CollectionTotal(items)
	discount := decimal.Zero
	if payment.Discount != nil {
		discount = *payment.Discount
	}
	total := subtotal.Sub(discount)
	if err := ValidateAdjustedTotal(subtotal, total, f.tolerance); err != nil {
		return domain.CompletedSale{}, err
	}

	cash := decimal.Zero
	change := decimal.Zero
	if payment.PaymentMethod == domain.PaymentCash {
		if payment.CashAmount != nil {
			cash = *payment.CashAmount
		}
		if cash.LessThan(total) {
			return domain.CompletedSale{}, fmt.Errorf("%w: received %s for %s", ErrInsufficientCash, cash, total)
		}
		change = cash.Sub(total)
	}

	now := f.now()
	return domain.CompletedSale{
		ID:            f.newID(),
		CustomerName:  name,
		Items:         domain.CloneItems(items),
		Status:        domain.OrderStatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
		PaymentMethod: payment.PaymentMethod,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         total,
		CashReceived:  cash,
		Change:        change,
		CompletedAt:   now,
	}, nil
}

func (f *SaleFinalizer) appendLocked(ctx context.Context, sale domain.CompletedSale) {
	f.sales = append(f.sales, sale)
	f.putLocked(ctx, "complete", sale)
}

// CancelSale removes sale id from the ledger without re-validating it.
func (f *SaleFinalizer) CancelSale(ctx context.Context, id string) error {
	f.mu.Lock()
	idx := f.indexLocked(id)
	if idx < 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSaleNotFound, id)
	}
	removed := f.sales[idx]
	f.sales = append(f.sales[:idx], f.sales[idx+1:]...)
	f.deleteLocked(ctx, "cancel", removed.ID)
	f.mu.Unlock()

	f.logger(ctx, "sales.cancelled", map[string]any{"saleID": removed.ID, "total": removed.Total.String()})
	f.publish(ctx, SaleEvent{Type: SaleEventCancelled, Sale: removed, OccurredAt: f.now()})
	return nil
}

// GetSale looks up a sale; ok is false when absent.
func (f *SaleFinalizer) GetSale(id string) (domain.CompletedSale, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.indexLocked(id)
	if idx < 0 {
		return domain.CompletedSale{}, false
	}
	return f.sales[idx].Clone(), true
}

// ClearSales empties the ledger and forgets any stored error.
func (f *SaleFinalizer) ClearSales(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
	f.writer.reset()
	for _, sale := range f.sales {
		f.deleteLocked(ctx, "clear", sale.ID)
	}
	f.sales = []domain.CompletedSale{}
}

// CompletedSales returns copies of the ledger in completion order.
func (f *SaleFinalizer) CompletedSales() []domain.CompletedSale {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CompletedSale, len(f.sales))
	for idx, sale := range f.sales {
		out[idx] = sale.Clone()
	}
	return out
}

// TotalSales is the ledger size.
func (f *SaleFinalizer) TotalSales() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sales)
}

// TotalRevenue sums the ledger totals.
func (f *SaleFinalizer) TotalRevenue() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sumTotals(f.sales)
}

// AverageTicket is TotalRevenue / TotalSales, or zero for an empty ledger.
func (f *SaleFinalizer) AverageTicket() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return averageTicket(sumTotals(f.sales), len(f.sales))
}

// Err returns the load failure, if any, otherwise the last failed record write.
func (f *SaleFinalizer) Err() error {
	f.mu.Lock()
	loadErr := f.err
	f.mu.Unlock()
	if loadErr != nil {
		return loadErr
	}
	return f.writer.Err()
}

// Flush waits for queued record writes and returns Err.
func (f *SaleFinalizer) Flush(ctx context.Context) error {
	if err := f.writer.Flush(ctx); err != nil {
		return err
	}
	return f.Err()
}

// Load restores the ledger from its records in completion order. A malformed record is
// reported as ErrStorage and leaves the ledger empty.
func (f *SaleFinalizer) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		return nil
	}

	f.sales = []domain.CompletedSale{}
	raws, err := f.records.ListRecords(ctx, repositories.SalesCollection)
	if err != nil {
		f.err = fmt.Errorf("%w: load sales: %w", ErrStorage, err)
		return f.err
	}
	sales := make([]domain.CompletedSale, 0, len(raws))
	for _, raw := range raws {
		var sale domain.CompletedSale
		if err := json.Unmarshal(raw, &sale); err != nil {
			f.err = fmt.Errorf("%w: decode sale: %w", ErrStorage, err)
			return f.err
		}
		sales = append(sales, sale)
	}
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].CompletedAt.Equal(sales[j].CompletedAt) {
			return sales[i].CompletedAt.Before(sales[j].CompletedAt)
		}
		return sales[i].ID < sales[j].ID
	})
	f.sales = sales
	return nil
}

// putLocked queues the record write for sale; it never waits on the backend.
func (f *SaleFinalizer) putLocked(ctx context.Context, action string, sale domain.CompletedSale) {
	if f.writer == nil {
		return
	}
	payload, err := json.Marshal(sale)
	records, id := f.records, sale.ID
	f.writer.submit(ctx, recordKey(repositories.SalesCollection, id), action, func(ctx context.Context) error {
		if err != nil {
			return err
		}
		return records.PutRecord(ctx, repositories.SalesCollection, id, payload)
	})
}

func (f *SaleFinalizer) deleteLocked(ctx context.Context, action, id string) {
	if f.writer == nil {
		return
	}
	records := f.records
	f.writer.submit(ctx, recordKey(repositories.SalesCollection, id), action, func(ctx context.Context) error {
		return records.DeleteRecord(ctx, repositories.SalesCollection, id)
	})
}

func (f *SaleFinalizer) completed(ctx context.Context, sale domain.CompletedSale) {
	method := attribute.String("payment_method", string(sale.PaymentMethod))
	f.completedCounter.Add(ctx, 1, metric.WithAttributes(method))
	f.revenueCounter.Add(ctx, sale.Total.InexactFloat64(), metric.WithAttributes(method))
	f.logger(ctx, "sales.completed", map[string]any{
		"saleID":        sale.ID,
		"orderID":       sale.OrderID,
		"paymentMethod": string(sale.PaymentMethod),
		"total":         sale.Total.String(),
		"change":        sale.Change.String(),
	})
	f.publish(ctx, SaleEvent{Type: SaleEventCompleted, Sale: sale.Clone(), OccurredAt: sale.CompletedAt})
}

func (f *SaleFinalizer) reject(ctx context.Context, err error) {
	code := CodeOf(err)
	f.rejectedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	f.logger(ctx, "sales.rejected", map[string]any{"code": code, "error": err.Error()})
}

func (f *SaleFinalizer) publish(ctx context.Context, event SaleEvent) {
	if f.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.publisher.PublishSaleEvent(ctx, event); err != nil {
		f.logger(ctx, "sales.publish_failed", map[string]any{
			"type":   event.Type,
			"saleID": event.Sale.ID,
			"error":  err.Error(),
		})
	}
}

func (f *SaleFinalizer) indexLocked(id string) int {
	id = strings.TrimSpace(id)
	for idx, sale := range f.sales {
		if sale.ID == id {
			return idx
		}
	}
	return -1
}

func sumTotals(sales []domain.CompletedSale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.Total)
	}
	return total
}

func averageTicket(revenue decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(int64(count)))
}
