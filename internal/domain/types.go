package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType determines how a catalog product is priced and which line-item fields apply.
type ProductType string

const (
	// ProductTypeUnit is sold by count.
	ProductTypeUnit ProductType = "unit"
	// ProductTypeWeight is priced per kilogram and sold by measured grams.
	ProductTypeWeight ProductType = "weight"
	// ProductTypeOption is a customizable product with bounded option categories.
	ProductTypeOption ProductType = "option"
	// ProductTypeAddon is an extra attached to another line item.
	ProductTypeAddon ProductType = "addon"
)

// SoldByWeight reports whether line items of this type carry a weight instead of a quantity.
func (t ProductType) SoldByWeight() bool {
	return t == ProductTypeWeight
}

// Valid reports whether t is one of the known product types.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeUnit, ProductTypeWeight, ProductTypeOption, ProductTypeAddon:
		return true
	}
	return false
}

// Product is a read-only catalog entry.
type Product struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
	Category string          `json:"category" yaml:"category"`
	Type     ProductType     `json:"type" yaml:"type"`
	Options  OptionLimits    `json:"options,omitempty" yaml:"options,omitempty"`
}

// SaleItem is one product instance inside a cart or order. Quantity is used for every
// product type except weight, which uses Weight (grams) instead.
type SaleItem struct {
	Product         *Product        `json:"product"`
	Quantity        *int            `json:"quantity,omitempty"`
	Weight          *float64        `json:"weight,omitempty"`
	Addons          []Product       `json:"addons,omitempty"`
	SelectedOptions SelectedOptions `json:"selectedOptions,omitempty"`
}

// QuantityOrDefault returns the line quantity, defaulting to one when unset.
func (i SaleItem) QuantityOrDefault() int {
	if i.Quantity == nil {
		return 1
	}
	return *i.Quantity
}

// WeightOrZero returns the measured weight in grams, or zero when unset.
func (i SaleItem) WeightOrZero() float64 {
	if i.Weight == nil {
		return 0
	}
	return *i.Weight
}

// Category returns the product category, or an empty string when the product is missing.
func (i SaleItem) Category() string {
	if i.Product == nil {
		return ""
	}
	return i.Product.Category
}

// Clone returns a deep copy that shares no mutable state with i.
func (i SaleItem) Clone() SaleItem {
	dup := i
	if i.Product != nil {
		p := i.Product.Clone()
		dup.Product = &p
	}
	if i.Quantity != nil {
		q := *i.Quantity
		dup.Quantity = &q
	}
	if i.Weight != nil {
		w := *i.Weight
		dup.Weight = &w
	}
	if len(i.Addons) > 0 {
		dup.Addons = make([]Product, len(i.Addons))
		for idx, addon := range i.Addons {
			dup.Addons[idx] = addon.Clone()
		}
	} else {
		dup.Addons = nil
	}
	dup.SelectedOptions = i.SelectedOptions.Clone()
	return dup
}

// Clone copies the product including its option limits.
func (p Product) Clone() Product {
	dup := p
	if len(p.Options) > 0 {
		dup.Options = make(OptionLimits, len(p.Options))
		for k, v := range p.Options {
			dup.Options[k] = v
		}
	}
	return dup
}

// CloneItems deep-copies a slice of line items. A nil input yields an empty slice.
func CloneItems(items []SaleItem) []SaleItem {
	out := make([]SaleItem, len(items))
	for idx, item := range items {
		out[idx] = item.Clone()
	}
	return out
}

// OrderStatus captures the comanda lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusCompleted OrderStatus = "completed"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return s == OrderStatusOpen || s == OrderStatusCompleted
}

// PaymentMethod identifies how a sale was settled.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentPix    PaymentMethod = "pix"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCredit, PaymentDebit, PaymentPix:
		return true
	}
	return false
}

// Order is a named customer tab ("comanda") accumulating items until payment.
type Order struct {
	ID            string           `json:"id"`
	CustomerName  string           `json:"customerName"`
	Items         []SaleItem       `json:"items"`
	Status        OrderStatus      `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	PaymentMethod PaymentMethod    `json:"paymentMethod,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
	CompletedAt   *time.Time       `json:"finalizadaEm,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
}

// Clone deep-copies the order.
func (o Order) Clone() Order {
	dup := o
	dup.Items = CloneItems(o.Items)
	if o.Total != nil {
		t := *o.Total
		dup.Total = &t
	}
	if o.Change != nil {
		c := *o.Change
		dup.Change = &c
	}
	if o.CompletedAt != nil {
		ts := *o.CompletedAt
		dup.CompletedAt = &ts
	}
	return dup
}

// CompletedSale is the immutable revenue record produced when a sale is finalized.
type CompletedSale struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId,omitempty"`
	CustomerName  string          `json:"customerName"`
	Items         []SaleItem      `json:"items"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	CashReceived  decimal.Decimal `json:"cashReceived"`
	Change        decimal.Decimal `json:"change"`
	CompletedAt   time.Time       `json:"finalizadaEm"`
}

// Clone deep-copies the sale so callers cannot mutate ledger state.
func (s CompletedSale) Clone() CompletedSale {
	dup := s
	dup.Items = CloneItems(s.Items)
	return dup
}

// ProductSales is one row of the top-products ranking.
type ProductSales struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SalesReport aggregates completed sales within a time window.
type SalesReport struct {
	From                 time.Time                  `json:"from"`
	To                   time.Time                  `json:"to"`
	TotalSales           int                        `json:"totalSales"`
	TotalRevenue         decimal.Decimal            `json:"totalRevenue"`
	AverageTicket        decimal.Decimal            `json:"averageTicket"`
	TotalItems           int                        `json:"totalItems"`
	SalesByPaymentMethod map[string]decimal.Decimal `json:"salesByPaymentMethod"`
	SalesByCategory      map[string]int             `json:"salesByCategory"`
	SalesByHour          map[int]decimal.Decimal    `json:"salesByHour"`
	TopProducts          []ProductSales             `json:"topProducts"`
}

// CartStatistics summarises a set of line items.
type CartStatistics struct {
	UniqueItems       int             `json:"uniqueItems"`
	TotalQuantity     int             `json:"totalQuantity"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TotalTax          decimal.Decimal `json:"totalTax"`
	Total             decimal.Decimal `json:"total"`
	AverageItemValue  decimal.Decimal `json:"averageItemValue"`
	Categories        []string        `json:"categories"`
	TotalWeight       float64         `json:"totalWeight"`
	CheapestItem      *SaleItem       `json:"cheapestItem,omitempty"`
	MostExpensiveItem *SaleItem       `json:"mostExpensiveItem,omitempty"`
}
