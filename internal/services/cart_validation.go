package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
)

const (
	defaultMinWeightGrams = 1
	defaultMaxWeightGrams = 10000
	defaultMinQuantity    = 1
	defaultMaxQuantity    = 999
)

// ItemValidator is a caller-supplied rule. Returned issues are appended to the result errors.
type ItemValidator func(item domain.SaleItem) []ValidationIssue

// ItemValidationConfig bounds the checks performed by ValidateItem. Zero bounds fall back to
// the defaults (1-10000 g, 1-999 units).
type ItemValidationConfig struct {
	MinWeight        float64
	MaxWeight        float64
	MinQuantity      int
	MaxQuantity      int
	SkipWeightRule   bool
	CustomValidators []ItemValidator
}

// DefaultItemValidationConfig returns the counter defaults.
func DefaultItemValidationConfig() ItemValidationConfig {
	return ItemValidationConfig{
		MinWeight:   defaultMinWeightGrams,
		MaxWeight:   defaultMaxWeightGrams,
		MinQuantity: defaultMinQuantity,
		MaxQuantity: defaultMaxQuantity,
	}
}

func (c ItemValidationConfig) withDefaults() ItemValidationConfig {
	if c.MinWeight <= 0 {
		c.MinWeight = defaultMinWeightGrams
	}
	if c.MaxWeight <= 0 {
		c.MaxWeight = defaultMaxWeightGrams
	}
	if c.MinQuantity <= 0 {
		c.MinQuantity = defaultMinQuantity
	}
	if c.MaxQuantity <= 0 {
		c.MaxQuantity = defaultMaxQuantity
	}
	return c
}

// ValidationIssue is one structured finding.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult carries blocking errors and non-blocking warnings.
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// FirstError returns the first blocking issue as a Go error wrapping its taxonomy sentinel.
func (r ValidationResult) FirstError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	issue := r.Errors[0]
	return fmt.Errorf("%w: %s", sentinelForCode(issue.Code), issue.Message)
}

func sentinelForCode(code string) error {
	switch code {
	case CodeInvalidProduct:
		return ErrInvalidProduct
	case CodeWeightRequired:
		return ErrWeightRequired
	case CodeInvalidQuantity:
		return ErrInvalidQuantity
	case CodeOptionLimitExceeded:
		return ErrOptionLimitExceeded
	case CodeInvalidAddon:
		return ErrInvalidAddon
	case CodeMaxItemsExceeded:
		return ErrMaxItemsExceeded
	default:
		return ErrValidation
	}
}

// ValidateItem checks item against cfg. It never mutates item.
func ValidateItem(item domain.SaleItem, cfg ItemValidationConfig) ValidationResult {
	cfg = cfg.withDefaults()
	result := ValidationResult{Errors: []ValidationIssue{}, Warnings: []ValidationIssue{}}
	fail := func(code, field, format string, args ...any) {
		result.Errors = append(result.Errors, ValidationIssue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	product := item.Product
	if product == nil || strings.TrimSpace(product.ID) == "" {
		fail(CodeInvalidProduct, "product", "product is required")
		return result
	}

	if product.Type.SoldByWeight() && !cfg.SkipWeightRule {
		switch {
		case item.Weight == nil || *item.Weight <= 0:
			fail(CodeWeightRequired, "weight", "weight is required for %s", product.ID)
		case *item.Weight < cfg.MinWeight:
			fail(CodeValidation, "weight", "weight must be at least %vg", cfg.MinWeight)
		case *item.Weight > cfg.MaxWeight:
			fail(CodeValidation, "weight", "weight must be at most %vg", cfg.MaxWeight)
		}
	}

	if item.Quantity != nil {
		if q := *item.Quantity; q < cfg.MinQuantity || q > cfg.MaxQuantity {
			fail(CodeInvalidQuantity, "quantity", "quantity must be between %d and %d", cfg.MinQuantity, cfg.MaxQuantity)
		}
	}

	if err := item.SelectedOptions.Validate(product.Options); err != nil {
		fail(CodeOptionLimitExceeded, "selectedOptions", "%s", err.Error())
	}

	for idx, addon := range item.Addons {
		if addon.Type != domain.ProductTypeAddon {
			fail(CodeInvalidAddon, fmt.Sprintf("addons[%d]", idx), "%s is not an addon", addon.ID)
		}
	}

	for _, validator := range cfg.CustomValidators {
		if validator == nil {
			continue
		}
		result.Errors = append(result.Errors, validator(item)...)
	}

	if product.Price.IsZero() {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Code:    "ZERO_PRICE",
			Field:   "product.price",
			Message: fmt.Sprintf("%s has a zero price", product.ID),
		})
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ComputeCartStatistics aggregates items. taxRate is a fraction (0.1 = 10%).
func ComputeCartStatistics(items []domain.SaleItem, taxRate decimal.Decimal) domain.CartStatistics {
	stats := domain.CartStatistics{
		Subtotal:         decimal.Zero,
		TotalTax:         decimal.Zero,
		Total:            decimal.Zero,
		AverageItemValue: decimal.Zero,
		Categories:       []string{},
	}
	if len(items) == 0 {
		return stats
	}

	stats.UniqueItems = len(items)
	stats.Subtotal = CollectionTotal(items)
	stats.TotalTax = stats.Subtotal.Mul(taxRate)
	stats.Total = stats.Subtotal.Add(stats.TotalTax)
	stats.AverageItemValue = stats.Subtotal.Div(decimal.NewFromInt(int64(len(items))))

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		stats.TotalQuantity += item.QuantityOrDefault()
		stats.TotalWeight += item.WeightOrZero()
		category := item.Category()
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		stats.Categories = append(stats.Categories, category)
	}

	type pricedItem struct {
		item  domain.SaleItem
		total decimal.Decimal
	}
	ranked := make([]pricedItem, len(items))
	for idx, item := range items {
		ranked[idx] = pricedItem{item: item, total: ItemTotal(item)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].total.LessThan(ranked[j].total)
	})
	cheapest := ranked[0].item.Clone()
	expensive := ranked[len(ranked)-1].item.Clone()
	stats.CheapestItem = &cheapest
	stats.MostExpensiveItem = &expensive
	return stats
}
