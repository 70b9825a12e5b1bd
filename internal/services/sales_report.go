package services

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/platform/textutil"
)

const (
	defaultTopProducts = 10
	otherBucket        = "other"
)

type reportOptions struct {
	topLimit int
	location *time.Location
}

// ReportOption customises BuildReport.
type ReportOption func(*reportOptions)

// WithTopLimit caps the top-products ranking. Non-positive values keep the default.
func WithTopLimit(limit int) ReportOption {
	return func(o *reportOptions) {
		if limit > 0 {
			o.topLimit = limit
		}
	}
}

// WithLocation sets the zone used for hour buckets.
func WithLocation(loc *time.Location) ReportOption {
	return func(o *reportOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// BuildReport aggregates the sales that completed within [from, to]. The input is not modified.
func BuildReport(sales []domain.CompletedSale, from, to time.Time, opts ...ReportOption) domain.SalesReport {
	options := reportOptions{topLimit: defaultTopProducts, location: time.Local}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	window := FilterByPeriod(sales, from, to)
	report := domain.SalesReport{
		From:                 from,
		To:                   to,
		TotalRevenue:         decimal.Zero,
		AverageTicket:        decimal.Zero,
		SalesByPaymentMethod: map[string]decimal.Decimal{},
		SalesByCategory:      map[string]int{},
		SalesByHour:          map[int]decimal.Decimal{},
		TopProducts:          []domain.ProductSales{},
	}

	report.TotalSales = len(window)
	report.TotalRevenue = sumTotals(window)
	report.AverageTicket = averageTicket(report.TotalRevenue, report.TotalSales)

	for _, sale := range window {
		method := textutil.NormalizeKey(string(sale.PaymentMethod))
		if method == "" {
			method = otherBucket
		}
		report.SalesByPaymentMethod[method] = report.SalesByPaymentMethod[method].Add(sale.Total)

		hour := saleInstant(sale).In(options.location).Hour()
		report.SalesByHour[hour] = report.SalesByHour[hour].Add(sale.Total)

		for _, item := range sale.Items {
			qty := item.QuantityOrDefault()
			report.TotalItems += qty
			report.SalesByCategory[categoryKey(item)] += qty
		}
	}

	report.TopProducts = topProducts(window, options.topLimit)
	return report
}

// FilterByPeriod keeps sales whose completion instant, or creation instant when completion is
// unset, lies within [from, to] inclusive.
func FilterByPeriod(sales []domain.CompletedSale, from, to time.Time) []domain.CompletedSale {
	out := make([]domain.CompletedSale, 0, len(sales))
	for _, sale := range sales {
		at := saleInstant(sale)
		if at.Before(from) || at.After(to) {
			continue
		}
		out = append(out, sale)
	}
	return out
}

func saleInstant(sale domain.CompletedSale) time.Time {
	if !sale.CompletedAt.IsZero() {
		return sale.CompletedAt
	}
	return sale.CreatedAt
}

func categoryKey(item domain.SaleItem) string {
	category := strings.TrimSpace(norm.NFC.String(item.Category()))
	if category == "" {
		return otherBucket
	}
	return category
}

func topProducts(sales []domain.CompletedSale, limit int) []domain.ProductSales {
	index := map[string]int{}
	rows := []domain.ProductSales{}
	for _, sale := range sales {
		for _, item := range sale.Items {
			if item.Product == nil {
				continue
			}
			qty := item.QuantityOrDefault()
			pos, ok := index[item.Product.ID]
			if !ok {
				pos = len(rows)
				index[item.Product.ID] = pos
				rows = append(rows, domain.ProductSales{
					ProductID: item.Product.ID,
					Name:      item.Product.Name,
					Revenue:   decimal.Zero,
				})
			}
			rows[pos].Quantity += qty
			rows[pos].Revenue = rows[pos].Revenue.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(qty))))
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Revenue.GreaterThan(rows[j].Revenue)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
