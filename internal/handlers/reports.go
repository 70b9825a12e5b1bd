package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/platform/httpx"
	"github.com/acai-counter/pos/internal/services"
)

const dateLayout = "2006-01-02"

// SalesSource supplies the ledger snapshot to aggregate.
type SalesSource interface {
	CompletedSales() []domain.CompletedSale
}

// ReportHandlersDeps wires the report endpoints.
type ReportHandlersDeps struct {
	Sales    SalesSource
	TopLimit int
	Location *time.Location
	Clock    func() time.Time
}

// ReportHandlers serves sales reports.
type ReportHandlers struct {
	sales    SalesSource
	topLimit int
	location *time.Location
	now      func() time.Time
}

// NewReportHandlers constructs report handlers. The location defaults to time.Local.
func NewReportHandlers(deps ReportHandlersDeps) *ReportHandlers {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ReportHandlers{sales: deps.Sales, topLimit: deps.TopLimit, location: loc, now: clock}
}

// Routes wires the /reports endpoints.
func (h *ReportHandlers) Routes(r chi.Router) {
	r.Get("/sales", h.salesReport)
}

// salesReport accepts from/to as RFC 3339 instants or calendar dates. A date bound covers the
// whole day. Without bounds the report covers today so far.
func (h *ReportHandlers) salesReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sales are unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	now := h.now().In(h.location)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location)

	from, err := h.parseBound(query.Get("from"), startOfDay, false)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	to, err := h.parseBound(query.Get("to"), now, true)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if to.Before(from) {
		writeBadRequest(ctx, w, fmt.Errorf("to %s is before from %s", to.Format(time.RFC3339), from.Format(time.RFC3339)))
		return
	}

	limit := h.topLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(ctx, w, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	report := services.BuildReport(h.sales.CompletedSales(), from, to,
		services.WithTopLimit(limit),
		services.WithLocation(h.location),
	)
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *ReportHandlers) parseBound(raw string, fallback time.Time, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, h.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use RFC 3339 or YYYY-MM-DD", raw)
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}
