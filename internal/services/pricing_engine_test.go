package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func unitProduct(id, price, category string) *domain.Product {
	return &domain.Product{ID: id, Name: id, Price: dec(price), Category: category, Type: domain.ProductTypeUnit}
}

func weightProduct(id, price, category string) *domain.Product {
	return &domain.Product{ID: id, Name: id, Price: dec(price), Category: category, Type: domain.ProductTypeWeight}
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("expected %s %s, got %s", label, want, got)
	}
}

func TestItemTotal_Scenarios(t *testing.T) {
	cases := []struct {
		name string
		item domain.SaleItem
		want string
	}{
		{
			name: "unit quantity",
			item: domain.SaleItem{Product: unitProduct("picole", "4.5", "picoles"), Quantity: intPtr(3)},
			want: "13.5",
		},
		{
			name: "weight grams",
			item: domain.SaleItem{Product: weightProduct("acai-kg", "47", "acai"), Weight: floatPtr(500)},
			want: "23.5",
		},
		{
			name: "unit with addon",
			item: domain.SaleItem{
				Product:  unitProduct("picole", "4.5", "picoles"),
				Quantity: intPtr(2),
				Addons:   []domain.Product{{ID: "leite-ninho", Price: dec("3.0"), Type: domain.ProductTypeAddon}},
			},
			want: "15",
		},
		{
			name: "missing quantity defaults to one",
			item: domain.SaleItem{Product: unitProduct("copo", "12", "acai")},
			want: "12",
		},
		{
			name: "weight addon priced once",
			item: domain.SaleItem{
				Product: weightProduct("acai-kg", "50", "acai"),
				Weight:  floatPtr(200),
				Addons:  []domain.Product{{ID: "granola", Price: dec("2"), Type: domain.ProductTypeAddon}},
			},
			want: "12",
		},
		{
			name: "missing product",
			item: domain.SaleItem{Quantity: intPtr(4)},
			want: "0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertDecimal(t, "item total", ItemTotal(tc.item), tc.want)
		})
	}
}

func TestItemTotal_WeightIsLinear(t *testing.T) {
	product := weightProduct("acai-kg", "47", "acai")
	perGram := dec("0.047")
	for _, grams := range []float64{1, 250, 333.3, 500, 1000, 1234.5} {
		total := ItemTotal(domain.SaleItem{Product: product, Weight: floatPtr(grams)})
		ratio := total.Div(decimal.NewFromFloat(grams))
		if !ratio.Equal(perGram) {
			t.Fatalf("expected constant price per gram %s at %vg, got %s", perGram, grams, ratio)
		}
	}
}

func TestCollectionTotal(t *testing.T) {
	items := []domain.SaleItem{
		{Product: unitProduct("picole", "4.5", "picoles"), Quantity: intPtr(3)},
		{Product: weightProduct("acai-kg", "47", "acai"), Weight: floatPtr(500)},
		{},
	}
	assertDecimal(t, "collection total", CollectionTotal(items), "37")
	assertDecimal(t, "empty total", CollectionTotal(nil), "0")
}
