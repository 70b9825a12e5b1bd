package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/platform/httpx"
	"github.com/acai-counter/pos/internal/services"
)

// SaleLedger is the completed-sales ledger.
type SaleLedger interface {
	CompletedSales() []domain.CompletedSale
	GetSale(id string) (domain.CompletedSale, bool)
	CancelSale(ctx context.Context, id string) error
	TotalRevenue() decimal.Decimal
	AverageTicket() decimal.Decimal
	Err() error
}

// SalesHandlers exposes the ledger.
type SalesHandlers struct {
	ledger SaleLedger
}

// NewSalesHandlers constructs sales handlers.
func NewSalesHandlers(ledger SaleLedger) *SalesHandlers {
	return &SalesHandlers{ledger: ledger}
}

// Routes wires the /sales endpoints.
func (h *SalesHandlers) Routes(r chi.Router) {
	r.Get("/", h.listSales)
	r.Get("/{saleID}", h.getSale)
	r.Post("/{saleID}/cancel", h.cancelSale)
}

func (h *SalesHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.ledger == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("sales_unavailable", "sales are unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *SalesHandlers) listSales(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	sales := h.ledger.CompletedSales()
	httpx.WriteJSON(w, http.StatusOK, storageWarning(map[string]any{
		"sales":         sales,
		"totalSales":    len(sales),
		"totalRevenue":  h.ledger.TotalRevenue(),
		"averageTicket": h.ledger.AverageTicket(),
	}, h.ledger.Err()))
}

func (h *SalesHandlers) getSale(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	sale, ok := h.ledger.GetSale(chi.URLParam(r, "saleID"))
	if !ok {
		writeServiceError(r.Context(), w, services.ErrSaleNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sale)
}

func (h *SalesHandlers) cancelSale(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.ledger.CancelSale(r.Context(), chi.URLParam(r, "saleID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
