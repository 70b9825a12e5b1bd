package services

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
)

func issueCodes(issues []ValidationIssue) []string {
	codes := make([]string, 0, len(issues))
	for _, issue := range issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestValidateItem_Rules(t *testing.T) {
	cfg := DefaultItemValidationConfig()
	optionProduct := &domain.Product{
		ID:      "acai-500",
		Price:   dec("22"),
		Type:    domain.ProductTypeOption,
		Options: domain.OptionLimits{"frutas": 2, "cremes": 2},
	}

	cases := []struct {
		name  string
		item  domain.SaleItem
		codes []string
	}{
		{name: "missing product", item: domain.SaleItem{}, codes: []string{CodeInvalidProduct}},
		{name: "blank product id", item: domain.SaleItem{Product: &domain.Product{ID: " "}}, codes: []string{CodeInvalidProduct}},
		{name: "weight missing", item: domain.SaleItem{Product: weightProduct("kg", "47", "acai")}, codes: []string{CodeWeightRequired}},
		{name: "weight zero", item: domain.SaleItem{Product: weightProduct("kg", "47", "acai"), Weight: floatPtr(0)}, codes: []string{CodeWeightRequired}},
		{name: "weight too low", item: domain.SaleItem{Product: weightProduct("kg", "47", "acai"), Weight: floatPtr(0.5)}, codes: []string{CodeValidation}},
		{name: "weight too high", item: domain.SaleItem{Product: weightProduct("kg", "47", "acai"), Weight: floatPtr(10001)}, codes: []string{CodeValidation}},
		{name: "weight ok", item: domain.SaleItem{Product: weightProduct("kg", "47", "acai"), Weight: floatPtr(350)}, codes: []string{}},
		{name: "quantity zero", item: domain.SaleItem{Product: unitProduct("p", "4", "picoles"), Quantity: intPtr(0)}, codes: []string{CodeInvalidQuantity}},
		{name: "quantity too high", item: domain.SaleItem{Product: unitProduct("p", "4", "picoles"), Quantity: intPtr(1000)}, codes: []string{CodeInvalidQuantity}},
		{name: "quantity absent", item: domain.SaleItem{Product: unitProduct("p", "4", "picoles")}, codes: []string{}},
		{
			name:  "option limit",
			item:  domain.SaleItem{Product: optionProduct, Quantity: intPtr(1), SelectedOptions: domain.SelectedOptions{"frutas": {"morango", "banana", "kiwi"}}},
			codes: []string{CodeOptionLimitExceeded},
		},
		{
			name:  "unknown option category",
			item:  domain.SaleItem{Product: optionProduct, Quantity: intPtr(1), SelectedOptions: domain.SelectedOptions{"caldas": {"chocolate"}}},
			codes: []string{CodeOptionLimitExceeded},
		},
		{
			name:  "addon of wrong type",
			item:  domain.SaleItem{Product: optionProduct, Quantity: intPtr(1), Addons: []domain.Product{{ID: "copo", Type: domain.ProductTypeUnit}}},
			codes: []string{CodeInvalidAddon},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateItem(tc.item, cfg)
			if got := issueCodes(result.Errors); !reflect.DeepEqual(got, tc.codes) {
				t.Fatalf("expected codes %v, got %v", tc.codes, got)
			}
			if result.IsValid != (len(tc.codes) == 0) {
				t.Fatalf("expected valid=%v, got %v", len(tc.codes) == 0, result.IsValid)
			}
		})
	}
}

func TestValidateItem_SkipWeightRule(t *testing.T) {
	cfg := DefaultItemValidationConfig()
	cfg.SkipWeightRule = true
	result := ValidateItem(domain.SaleItem{Product: weightProduct("kg", "47", "acai")}, cfg)
	if !result.IsValid {
		t.Fatalf("expected weight rule to be skipped, got %v", result.Errors)
	}
}

func TestValidateItem_CustomValidatorsAndWarnings(t *testing.T) {
	cfg := DefaultItemValidationConfig()
	cfg.CustomValidators = []ItemValidator{
		nil,
		func(item domain.SaleItem) []ValidationIssue {
			if item.Product.Category == "sorvetes" {
				return []ValidationIssue{{Code: "OUT_OF_SEASON", Message: "sorvetes unavailable"}}
			}
			return nil
		},
	}

	result := ValidateItem(domain.SaleItem{Product: unitProduct("casquinha", "0", "sorvetes"), Quantity: intPtr(1)}, cfg)
	if result.IsValid {
		t.Fatalf("expected custom validator to block item")
	}
	if got := issueCodes(result.Errors); !reflect.DeepEqual(got, []string{"OUT_OF_SEASON"}) {
		t.Fatalf("unexpected errors %v", got)
	}
	if got := issueCodes(result.Warnings); !reflect.DeepEqual(got, []string{"ZERO_PRICE"}) {
		t.Fatalf("expected zero price warning, got %v", got)
	}
	if err := result.FirstError(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected custom issue to map to ErrValidation, got %v", err)
	}
}

func TestComputeCartStatistics_Empty(t *testing.T) {
	stats := ComputeCartStatistics(nil, dec("0.1"))
	if stats.UniqueItems != 0 || stats.TotalQuantity != 0 || stats.TotalWeight != 0 {
		t.Fatalf("expected zero counts, got %+v", stats)
	}
	for label, value := range map[string]decimal.Decimal{
		"subtotal": stats.Subtotal, "tax": stats.TotalTax, "total": stats.Total, "average": stats.AverageItemValue,
	} {
		if !value.IsZero() {
			t.Fatalf("expected %s to be zero, got %s", label, value)
		}
	}
	if stats.Categories == nil || len(stats.Categories) != 0 {
		t.Fatalf("expected empty categories, got %#v", stats.Categories)
	}
	if stats.CheapestItem != nil || stats.MostExpensiveItem != nil {
		t.Fatalf("expected no extreme items on empty cart")
	}
}

func TestComputeCartStatistics_Aggregates(t *testing.T) {
	items := []domain.SaleItem{
		{Product: unitProduct("picole-a", "4.5", "picoles"), Quantity: intPtr(2)},
		{Product: weightProduct("acai-kg", "47", "acai"), Weight: floatPtr(500)},
		{Product: unitProduct("picole-b", "9", "picoles"), Quantity: intPtr(1)},
		{Product: unitProduct("agua", "3", "bebidas"), Quantity: intPtr(1)},
	}

	stats := ComputeCartStatistics(items, dec("0.1"))

	if stats.UniqueItems != 4 {
		t.Fatalf("expected 4 unique items, got %d", stats.UniqueItems)
	}
	if stats.TotalQuantity != 5 {
		t.Fatalf("expected total quantity 5, got %d", stats.TotalQuantity)
	}
	if stats.TotalWeight != 500 {
		t.Fatalf("expected total weight 500, got %v", stats.TotalWeight)
	}
	assertDecimal(t, "subtotal", stats.Subtotal, "44.5")
	assertDecimal(t, "tax", stats.TotalTax, "4.45")
	assertDecimal(t, "total", stats.Total, "48.95")
	assertDecimal(t, "average", stats.AverageItemValue, "11.125")
	if want := []string{"picoles", "acai", "bebidas"}; !reflect.DeepEqual(stats.Categories, want) {
		t.Fatalf("expected categories %v, got %v", want, stats.Categories)
	}
	if stats.CheapestItem == nil || stats.CheapestItem.Product.ID != "agua" {
		t.Fatalf("expected cheapest agua, got %+v", stats.CheapestItem)
	}
	if stats.MostExpensiveItem == nil || stats.MostExpensiveItem.Product.ID != "acai-kg" {
		t.Fatalf("expected most expensive acai-kg, got %+v", stats.MostExpensiveItem)
	}
}

func TestComputeCartStatistics_StableTieBreak(t *testing.T) {
	items := []domain.SaleItem{
		{Product: unitProduct("first", "5", "a"), Quantity: intPtr(1)},
		{Product: unitProduct("second", "5", "a"), Quantity: intPtr(1)},
		{Product: unitProduct("third", "5", "a"), Quantity: intPtr(1)},
	}
	stats := ComputeCartStatistics(items, decimal.Zero)
	if stats.CheapestItem.Product.ID != "first" {
		t.Fatalf("expected first as cheapest on tie, got %s", stats.CheapestItem.Product.ID)
	}
	if stats.MostExpensiveItem.Product.ID != "third" {
		t.Fatalf("expected third as most expensive on tie, got %s", stats.MostExpensiveItem.Product.ID)
	}
}
