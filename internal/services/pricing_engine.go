package services

import (
	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
)

var gramsPerKilogram = decimal.NewFromInt(1000)

// linePricer prices the base part of a line item, excluding add-ons.
type linePricer interface {
	base(item domain.SaleItem) decimal.Decimal
}

// unitPricer multiplies the unit price by the line quantity.
type unitPricer struct{}

func (unitPricer) base(item domain.SaleItem) decimal.Decimal {
	return item.Product.Price.Mul(decimal.NewFromInt(int64(item.QuantityOrDefault())))
}

// weightPricer treats the price as per kilogram and the weight as grams.
type weightPricer struct{}

func (weightPricer) base(item domain.SaleItem) decimal.Decimal {
	grams := decimal.NewFromFloat(item.WeightOrZero())
	return item.Product.Price.Mul(grams).Div(gramsPerKilogram)
}

func pricerFor(kind domain.ProductType) linePricer {
	if kind.SoldByWeight() {
		return weightPricer{}
	}
	return unitPricer{}
}

// ItemTotal returns the monetary total of one line item. Add-ons are scaled by the line
// quantity, which defaults to one for weight items. A missing product totals zero.
func ItemTotal(item domain.SaleItem) decimal.Decimal {
	if item.Product == nil {
		return decimal.Zero
	}
	total := pricerFor(item.Product.Type).base(item)
	if len(item.Addons) == 0 {
		return total
	}
	addons := decimal.Zero
	for _, addon := range item.Addons {
		addons = addons.Add(addon.Price)
	}
	return total.Add(addons.Mul(decimal.NewFromInt(int64(item.QuantityOrDefault()))))
}

// CollectionTotal sums ItemTotal over items. No rounding is applied.
func CollectionTotal(items []domain.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(ItemTotal(item))
	}
	return total
}
