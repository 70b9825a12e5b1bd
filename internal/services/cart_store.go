package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/repositories"
)

const defaultCartMaxItems = 50

// CartStoreDeps wires the optional persistence and tuning of a cart.
type CartStoreDeps struct {
	State             repositories.StateStore
	Session           string
	MaxItems          int
	DisableValidation bool
	Validation        ItemValidationConfig
	TaxRate           decimal.Decimal
	Logger            func(context.Context, string, map[string]any)
}

// AddItemOptions describes the line item built around a product. Quantity applies to every
// product type except weight, which requires Weight instead.
type AddItemOptions struct {
	Quantity        *int
	Weight          *float64
	Addons          []domain.Product
	SelectedOptions domain.SelectedOptions
}

// AddItemRequest pairs a product with its options for batch adds.
type AddItemRequest struct {
	Product domain.Product
	Options AddItemOptions
}

// ItemUpdate carries a partial line item update. Nil fields are left untouched.
type ItemUpdate struct {
	Quantity        *int
	Weight          *float64
	Addons          *[]domain.Product
	SelectedOptions domain.SelectedOptions
}

// IndexedUpdate targets one line item in UpdateMultipleItems.
type IndexedUpdate struct {
	Index  int
	Update ItemUpdate
}

// ItemResult reports the outcome of one entry in a batch operation.
type ItemResult struct {
	Index int
	Item  *domain.SaleItem
	Err   error
}

// CartValidation is the cart-level validation snapshot.
type CartValidation struct {
	IsValid bool              `json:"isValid"`
	Errors  []ValidationIssue `json:"errors"`
}

// CartStore is an ordered, capacity-bounded collection of line items owned by one session.
type CartStore struct {
	mu         sync.Mutex
	items      []domain.SaleItem
	enabled    bool
	err        error
	state      repositories.StateStore
	writer     *persistWriter
	key        string
	maxItems   int
	validate   bool
	validation ItemValidationConfig
	taxRate    decimal.Decimal
	logger     func(context.Context, string, map[string]any)
}

// NewCartStore constructs an empty, enabled cart.
func NewCartStore(deps CartStoreDeps) *CartStore {
	maxItems := deps.MaxItems
	if maxItems <= 0 {
		maxItems = defaultCartMaxItems
	}
	session := strings.TrimSpace(deps.Session)
	if session == "" {
		session = DefaultCartSession
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	var writer *persistWriter
	if deps.State != nil {
		writer = newPersistWriter("cart.persist_failed", defaultPersistTimeout, logger)
	}
	return &CartStore{
		items:      []domain.SaleItem{},
		enabled:    true,
		state:      deps.State,
		writer:     writer,
		key:        repositories.CartStateKey(session),
		maxItems:   maxItems,
		validate:   !deps.DisableValidation,
		validation: deps.Validation.withDefaults(),
		taxRate:    deps.TaxRate,
		logger:     logger,
	}
}

// SetEnabled switches the cart on or off. A disabled cart rejects every mutation.
func (c *CartStore) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// AddItem appends a line item built from product and opts.
func (c *CartStore) AddItem(ctx context.Context, product domain.Product, opts AddItemOptions) (domain.SaleItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.addLocked(product, opts)
	if err != nil {
		return domain.SaleItem{}, err
	}
	c.persistLocked(ctx, "add")
	return item.Clone(), nil
}

func (c *CartStore) addLocked(product domain.Product, opts AddItemOptions) (domain.SaleItem, error) {
	if !c.enabled {
		return domain.SaleItem{}, ErrCartDisabled
	}
	if len(c.items) >= c.maxItems {
		return domain.SaleItem{}, fmt.Errorf("%w: cart holds %d items", ErrMaxItemsExceeded, c.maxItems)
	}
	if strings.TrimSpace(product.ID) == "" {
		return domain.SaleItem{}, fmt.Errorf("%w: product id is required", ErrInvalidProduct)
	}

	item, err := NewLineItem(product, opts)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if c.validate {
		if err := ValidateItem(item, c.validation).FirstError(); err != nil {
			return domain.SaleItem{}, err
		}
	}

	c.items = append(c.items, item)
	return item, nil
}

// NewLineItem builds a line item around a copy of product. Weight products need a positive
// Weight; every other type takes Quantity, which defaults to 1 and must be positive. Range
// checks are left to ValidateItem.
func NewLineItem(product domain.Product, opts AddItemOptions) (domain.SaleItem, error) {
	item := domain.SaleItem{
		Addons:          cloneProducts(opts.Addons),
		SelectedOptions: opts.SelectedOptions.Normalize(),
	}
	p := product.Clone()
	item.Product = &p

	if product.Type.SoldByWeight() {
		if opts.Weight == nil || *opts.Weight <= 0 {
			return domain.SaleItem{}, fmt.Errorf("%w: %s", ErrWeightRequired, product.ID)
		}
		w := *opts.Weight
		item.Weight = &w
		return item, nil
	}
	q := 1
	if opts.Quantity != nil {
		q = *opts.Quantity
	}
	if q <= 0 {
		return domain.SaleItem{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	item.Quantity = &q
	return item, nil
}

// RemoveItem deletes the line item at index.
func (c *CartStore) RemoveItem(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.removeLocked(index); err != nil {
		return err
	}
	c.persistLocked(ctx, "remove")
	return nil
}

func (c *CartStore) removeLocked(index int) error {
	if !c.enabled {
		return ErrCartDisabled
	}
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	return nil
}

// UpdateItem merges update into the line item at index. An update that would leave the item
// with a non-positive quantity or weight is rejected with ErrValidation and changes nothing.
func (c *CartStore) UpdateItem(ctx context.Context, index int, update ItemUpdate) (domain.SaleItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.updateLocked(index, update)
	if err != nil {
		return domain.SaleItem{}, err
	}
	c.persistLocked(ctx, "update")
	return item.Clone(), nil
}

func (c *CartStore) updateLocked(index int, update ItemUpdate) (domain.SaleItem, error) {
	if !c.enabled {
		return domain.SaleItem{}, ErrCartDisabled
	}
	if index < 0 || index >= len(c.items) {
		return domain.SaleItem{}, fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}

	merged, err := applyItemUpdate(c.items[index], update)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if c.validate {
		if err := ValidateItem(merged, c.validation).FirstError(); err != nil {
			return domain.SaleItem{}, err
		}
	}
	c.items[index] = merged
	return merged, nil
}

// applyItemUpdate returns a merged copy of item. Quantity and weight stay mutually exclusive
// according to the product type.
func applyItemUpdate(item domain.SaleItem, update ItemUpdate) (domain.SaleItem, error) {
	merged := item.Clone()
	byWeight := item.Product != nil && item.Product.Type.SoldByWeight()

	if update.Quantity != nil {
		if byWeight {
			return domain.SaleItem{}, fmt.Errorf("%w: weight items do not take a quantity", ErrValidation)
		}
		if *update.Quantity <= 0 {
			return domain.SaleItem{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		q := *update.Quantity
		merged.Quantity = &q
	}
	if update.Weight != nil {
		if !byWeight {
			return domain.SaleItem{}, fmt.Errorf("%w: only weight items take a weight", ErrValidation)
		}
		if *update.Weight <= 0 {
			return domain.SaleItem{}, fmt.Errorf("%w: weight must be positive", ErrValidation)
		}
		w := *update.Weight
		merged.Weight = &w
	}
	if update.Addons != nil {
		merged.Addons = cloneProducts(*update.Addons)
	}
	if update.SelectedOptions != nil {
		merged.SelectedOptions = update.SelectedOptions.Normalize()
	}
	return merged, nil
}

// ClearCart empties the cart and forgets any stored error.
func (c *CartStore) ClearCart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return ErrCartDisabled
	}
	c.items = []domain.SaleItem{}
	c.err = nil
	c.writer.reset()
	c.persistLocked(ctx, "clear")
	return nil
}

// Settle hands a copy of the items to fn and empties the cart when fn succeeds. The cart stays
// locked throughout, so nothing added concurrently is lost or settled twice. On failure the
// cart is left as it was.
func (c *CartStore) Settle(ctx context.Context, fn func(items []domain.SaleItem) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return ErrCartDisabled
	}
	if err := fn(domain.CloneItems(c.items)); err != nil {
		return err
	}
	c.items = []domain.SaleItem{}
	c.persistLocked(ctx, "settle")
	return nil
}

// AddMultipleItems adds each request independently and persists once.
func (c *CartStore) AddMultipleItems(ctx context.Context, requests []AddItemRequest) []ItemResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]ItemResult, len(requests))
	changed := false
	for idx, req := range requests {
		item, err := c.addLocked(req.Product, req.Options)
		results[idx] = ItemResult{Index: idx, Err: err}
		if err == nil {
			dup := item.Clone()
			results[idx].Item = &dup
			changed = true
		}
	}
	if changed {
		c.persistLocked(ctx, "add_batch")
	}
	return results
}

// RemoveMultipleItems removes each index, highest first so earlier removals do not shift
// later targets. Results follow the order of indices as given.
func (c *CartStore) RemoveMultipleItems(ctx context.Context, indices []int) []ItemResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	order := make([]int, len(indices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return indices[order[a]] > indices[order[b]] })

	results := make([]ItemResult, len(indices))
	removed := make(map[int]bool, len(indices))
	changed := false
	for _, pos := range order {
		index := indices[pos]
		var err error
		if removed[index] {
			err = fmt.Errorf("%w: index %d", ErrItemNotFound, index)
		} else {
			err = c.removeLocked(index)
		}
		results[pos] = ItemResult{Index: index, Err: err}
		if err == nil {
			removed[index] = true
			changed = true
		}
	}
	if changed {
		c.persistLocked(ctx, "remove_batch")
	}
	return results
}

// UpdateMultipleItems applies each update independently.
func (c *CartStore) UpdateMultipleItems(ctx context.Context, updates []IndexedUpdate) []ItemResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]ItemResult, len(updates))
	changed := false
	for idx, u := range updates {
		item, err := c.updateLocked(u.Index, u.Update)
		results[idx] = ItemResult{Index: u.Index, Err: err}
		if err == nil {
			dup := item.Clone()
			results[idx].Item = &dup
			changed = true
		}
	}
	if changed {
		c.persistLocked(ctx, "update_batch")
	}
	return results
}

// Items returns a copy of the line items in insertion order.
func (c *CartStore) Items() []domain.SaleItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneItems(c.items)
}

// TotalItems sums quantities; weight items count as one unit.
func (c *CartStore) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, item := range c.items {
		total += item.QuantityOrDefault()
	}
	return total
}

// TotalValue prices the whole cart.
func (c *CartStore) TotalValue() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CollectionTotal(c.items)
}

// IsEmpty reports whether the cart holds no items.
func (c *CartStore) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

// Validation checks capacity and every item. A cart with validation disabled is always valid.
func (c *CartStore) Validation() CartValidation {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := CartValidation{IsValid: true, Errors: []ValidationIssue{}}
	if !c.validate {
		return result
	}
	if len(c.items) > c.maxItems {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    CodeMaxItemsExceeded,
			Message: fmt.Sprintf("cart holds %d items, limit is %d", len(c.items), c.maxItems),
		})
	}
	for idx, item := range c.items {
		for _, issue := range ValidateItem(item, c.validation).Errors {
			issue.Field = fmt.Sprintf("items[%d].%s", idx, issue.Field)
			result.Errors = append(result.Errors, issue)
		}
	}
	result.IsValid = len(result.Errors) == 0
	return result
}

// GetItemTotal prices the line item at index.
func (c *CartStore) GetItemTotal(index int) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.items) {
		return decimal.Zero, fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}
	return ItemTotal(c.items[index]), nil
}

// FindItemIndex returns the position of the first item for productID, or -1.
func (c *CartStore) FindItemIndex(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for idx, item := range c.items {
		if item.Product != nil && item.Product.ID == productID {
			return idx
		}
	}
	return -1
}

// HasItem reports whether any line item references productID.
func (c *CartStore) HasItem(productID string) bool {
	return c.FindItemIndex(productID) >= 0
}

// Statistics computes cart statistics with the configured tax rate.
func (c *CartStore) Statistics() domain.CartStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComputeCartStatistics(c.items, c.taxRate)
}

// Err returns the load failure, if any, otherwise the last failed snapshot write.
func (c *CartStore) Err() error {
	c.mu.Lock()
	loadErr := c.err
	c.mu.Unlock()
	if loadErr != nil {
		return loadErr
	}
	return c.writer.Err()
}

// Flush waits for queued snapshot writes and returns Err.
func (c *CartStore) Flush(ctx context.Context) error {
	if err := c.writer.Flush(ctx); err != nil {
		return err
	}
	return c.Err()
}

// Load restores the cart from the state store. A missing snapshot leaves the cart empty; an
// unreadable one is reported as ErrStorage and also leaves it empty.
func (c *CartStore) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}

	c.items = []domain.SaleItem{}
	raw, ok, err := c.state.Get(ctx, c.key)
	if err != nil {
		c.err = fmt.Errorf("%w: load cart: %w", ErrStorage, err)
		return c.err
	}
	if !ok {
		return nil
	}
	var items []domain.SaleItem
	if err := json.Unmarshal(raw, &items); err != nil {
		c.err = fmt.Errorf("%w: decode cart: %w", ErrStorage, err)
		return c.err
	}
	if items != nil {
		c.items = items
	}
	return nil
}

// persistLocked snapshots the items and queues the write; it never waits on the backend.
func (c *CartStore) persistLocked(ctx context.Context, action string) {
	if c.writer == nil {
		return
	}
	payload, err := json.Marshal(c.items)
	state, key := c.state, c.key
	c.writer.submit(ctx, key, action, func(ctx context.Context) error {
		if err != nil {
			return err
		}
		return state.Set(ctx, key, payload)
	})
}

func cloneProducts(products []domain.Product) []domain.Product {
	if len(products) == 0 {
		return nil
	}
	out := make([]domain.Product, len(products))
	for idx, p := range products {
		out[idx] = p.Clone()
	}
	return out
}
