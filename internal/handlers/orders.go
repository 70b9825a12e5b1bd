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

// OrderManager is the comanda store used by the order endpoints.
type OrderManager interface {
	AddOrder(ctx context.Context, draft services.OrderDraft) (domain.Order, error)
	UpdateOrder(ctx context.Context, id string, update services.OrderUpdate) (domain.Order, error)
	AddItems(ctx context.Context, id string, items []domain.SaleItem) (domain.Order, error)
	RemoveItemAt(ctx context.Context, id string, index int) (domain.Order, error)
	RemoveOrder(ctx context.Context, id string) error
	GetOrder(id string) (domain.Order, bool)
	Orders() []domain.Order
	TotalValue() decimal.Decimal
	Err() error
}

// OrderCompleter finalizes an open comanda into a sale.
type OrderCompleter interface {
	CompleteOrder(ctx context.Context, orderID string, payment services.PaymentRequest) (domain.CompletedSale, error)
}

// OrderHandlersDeps wires the order endpoints.
type OrderHandlersDeps struct {
	Orders     OrderManager
	Finalizer  OrderCompleter
	Catalog    ProductCatalog
	Validate   bool
	Validation services.ItemValidationConfig
}

// OrderHandlers exposes open comandas.
type OrderHandlers struct {
	orders    OrderManager
	finalizer OrderCompleter
	resolver  itemResolver
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	return &OrderHandlers{
		orders:    deps.Orders,
		finalizer: deps.Finalizer,
		resolver: itemResolver{
			catalog:    deps.Catalog,
			validate:   deps.Validate,
			validation: deps.Validation,
		},
	}
}

// Routes wires the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Route("/{orderID}", func(order chi.Router) {
		order.Get("/", h.getOrder)
		order.Patch("/", h.updateOrder)
		order.Delete("/", h.deleteOrder)
		order.Post("/items", h.addItems)
		order.Delete("/items/{index}", h.removeItem)
		order.Post("/complete", h.completeOrder)
	})
}

type orderPayload struct {
	domain.Order
	Items []lineItemPayload `json:"items"`
	Value decimal.Decimal   `json:"value"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	return orderPayload{
		Order: order,
		Items: buildLineItems(order.Items),
		Value: services.OrderValue(order),
	}
}

func (h *OrderHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("orders_unavailable", "orders are unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	orders := h.orders.Orders()
	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, storageWarning(map[string]any{
		"orders":     payload,
		"totalValue": h.orders.TotalValue(),
	}, h.orders.Err()))
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	var req struct {
		CustomerName string        `json:"customerName"`
		Items        []itemRequest `json:"items"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	items, err := h.resolver.saleItems(req.Items)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	order, err := h.orders.AddOrder(ctx, services.OrderDraft{CustomerName: req.CustomerName, Items: items})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	order, ok := h.orders.GetOrder(chi.URLParam(r, "orderID"))
	if !ok {
		writeServiceError(r.Context(), w, services.ErrOrderNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	var req struct {
		CustomerName  *string               `json:"customerName,omitempty"`
		Status        *domain.OrderStatus   `json:"status,omitempty"`
		PaymentMethod *domain.PaymentMethod `json:"paymentMethod,omitempty"`
		Items         *[]itemRequest        `json:"items,omitempty"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	update := services.OrderUpdate{
		CustomerName:  req.CustomerName,
		Status:        req.Status,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Items != nil {
		items, err := h.resolver.saleItems(*req.Items)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		update.Items = &items
	}
	order, err := h.orders.UpdateOrder(ctx, chi.URLParam(r, "orderID"), update)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.orders.RemoveOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) addItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	var req struct {
		Items []itemRequest `json:"items"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	items, err := h.resolver.saleItems(req.Items)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	order, err := h.orders.AddItems(ctx, chi.URLParam(r, "orderID"), items)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	index, err := indexParam(chi.URLParam(r, "index"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	order, err := h.orders.RemoveItemAt(ctx, chi.URLParam(r, "orderID"), index)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.finalizer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sales are unavailable", http.StatusServiceUnavailable))
		return
	}
	var req settlementRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	sale, err := h.finalizer.CompleteOrder(ctx, chi.URLParam(r, "orderID"), services.PaymentRequest{
		PaymentMethod: req.PaymentMethod,
		CashAmount:    req.CashAmount,
		Discount:      req.Discount,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}
