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

// CartProvider hands out the cart of a POS session.
type CartProvider interface {
	Cart(ctx context.Context, session string) *services.CartStore
}

// SaleCompleter finalizes item lists into ledger entries.
type SaleCompleter interface {
	CompleteSale(ctx context.Context, req services.SaleRequest) (domain.CompletedSale, error)
}

// OrderOpener opens comandas.
type OrderOpener interface {
	AddOrder(ctx context.Context, draft services.OrderDraft) (domain.Order, error)
}

// CartHandlers exposes the per-session cart.
type CartHandlers struct {
	carts    CartProvider
	sales    SaleCompleter
	orders   OrderOpener
	resolver itemResolver
}

// CartHandlersDeps wires the cart endpoints.
type CartHandlersDeps struct {
	Carts   CartProvider
	Sales   SaleCompleter
	Orders  OrderOpener
	Catalog ProductCatalog
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(deps CartHandlersDeps) *CartHandlers {
	return &CartHandlers{
		carts:    deps.Carts,
		sales:    deps.Sales,
		orders:   deps.Orders,
		resolver: itemResolver{catalog: deps.Catalog},
	}
}

// Routes wires the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Get("/statistics", h.statistics)
	r.Post("/items", h.addItem)
	r.Post("/items/batch", h.addItems)
	r.Patch("/items/batch", h.updateItems)
	r.Post("/items/remove", h.removeItems)
	r.Patch("/items/{index}", h.updateItem)
	r.Delete("/items/{index}", h.removeItem)
	r.Post("/checkout", h.checkout)
	r.Post("/order", h.openOrder)
}

type cartPayload struct {
	Session    string                  `json:"session"`
	Items      []lineItemPayload       `json:"items"`
	TotalItems int                     `json:"totalItems"`
	TotalValue decimal.Decimal         `json:"totalValue"`
	Validation services.CartValidation `json:"validation"`
	StorageErr string                  `json:"storageError,omitempty"`
}

type batchResultPayload struct {
	Index int              `json:"index"`
	Item  *lineItemPayload `json:"item,omitempty"`
	Error string           `json:"error,omitempty"`
	Code  string           `json:"code,omitempty"`
}

type settlementRequest struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	CashAmount    *decimal.Decimal     `json:"cashAmount,omitempty"`
	Discount      *decimal.Decimal     `json:"discount,omitempty"`
}

type paymentRequest struct {
	CustomerName string `json:"customerName"`
	settlementRequest
}

func (h *CartHandlers) cart(w http.ResponseWriter, r *http.Request) (*services.CartStore, string, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return nil, "", false
	}
	session := sessionFrom(r)
	return h.carts.Cart(r.Context(), session), session, true
}

func buildCartPayload(session string, cart *services.CartStore) cartPayload {
	payload := cartPayload{
		Session:    session,
		Items:      buildLineItems(cart.Items()),
		TotalItems: cart.TotalItems(),
		TotalValue: cart.TotalValue(),
		Validation: cart.Validation(),
	}
	if err := cart.Err(); err != nil {
		payload.StorageErr = err.Error()
	}
	return payload
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	cart, session, ok := h.cart(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(session, cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	cart, session, ok := h.cart(w, r)
	if !ok {
		return
	}
	if err := cart.ClearCart(r.Context()); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(session, cart))
}

func (h *CartHandlers) statistics(w http.ResponseWriter, r *http.Request) {
	cart, _, ok := h.cart(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cart.Statistics())
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, session, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	add, err := h.resolver.addRequest(req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if _, err := cart.AddItem(ctx, add.Product, add.Options); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCartPayload(session, cart))
}

func (h *CartHandlers) addItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, _, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req struct {
		Items []itemRequest `json:"items"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	results := make([]batchResultPayload, len(req.Items))
	var adds []services.AddItemRequest
	var positions []int
	for idx, itemReq := range req.Items {
		add, err := h.resolver.addRequest(itemReq)
		if err != nil {
			results[idx] = batchResultPayload{Index: idx, Error: err.Error(), Code: services.CodeOf(err)}
			continue
		}
		adds = append(adds, add)
		positions = append(positions, idx)
	}
	for pos, res := range cart.AddMultipleItems(ctx, adds) {
		results[positions[pos]] = batchResult(positions[pos], res)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *CartHandlers) updateItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, _, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req struct {
		Updates []struct {
			Index int `json:"index"`
			itemPatchRequest
		} `json:"updates"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	results := make([]batchResultPayload, len(req.Updates))
	var updates []services.IndexedUpdate
	var positions []int
	for idx, entry := range req.Updates {
		update, err := h.resolver.itemUpdate(entry.itemPatchRequest)
		if err != nil {
			results[idx] = batchResultPayload{Index: entry.Index, Error: err.Error(), Code: services.CodeOf(err)}
			continue
		}
		updates = append(updates, services.IndexedUpdate{Index: entry.Index, Update: update})
		positions = append(positions, idx)
	}
	for pos, res := range cart.UpdateMultipleItems(ctx, updates) {
		results[positions[pos]] = batchResult(res.Index, res)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *CartHandlers) removeItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, _, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req struct {
		Indices []int `json:"indices"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	raw := cart.RemoveMultipleItems(ctx, req.Indices)
	results := make([]batchResultPayload, len(raw))
	for idx, res := range raw {
		results[idx] = batchResult(res.Index, res)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func batchResult(index int, res services.ItemResult) batchResultPayload {
	out := batchResultPayload{Index: index}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.Code = services.CodeOf(res.Err)
		return out
	}
	if res.Item != nil {
		line := lineItemPayload{SaleItem: *res.Item, Total: services.ItemTotal(*res.Item)}
		out.Item = &line
	}
	return out
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, session, ok := h.cart(w, r)
	if !ok {
		return
	}
	index, err := indexParam(chi.URLParam(r, "index"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	var req itemPatchRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	update, err := h.resolver.itemUpdate(req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if _, err := cart.UpdateItem(ctx, index, update); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(session, cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, session, ok := h.cart(w, r)
	if !ok {
		return
	}
	index, err := indexParam(chi.URLParam(r, "index"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if err := cart.RemoveItem(ctx, index); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(session, cart))
}

// checkout finalizes the cart as a direct sale and empties it in one step.
func (h *CartHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, _, ok := h.cart(w, r)
	if !ok {
		return
	}
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sales are unavailable", http.StatusServiceUnavailable))
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	var sale domain.CompletedSale
	err := cart.Settle(ctx, func(items []domain.SaleItem) error {
		completed, err := h.sales.CompleteSale(ctx, services.SaleRequest{
			CustomerName:  req.CustomerName,
			Items:         items,
			PaymentMethod: req.PaymentMethod,
			CashAmount:    req.CashAmount,
			Discount:      req.Discount,
		})
		sale = completed
		return err
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, storageWarning(map[string]any{"sale": sale}, cart.Err()))
}

// openOrder moves the cart contents into a new open comanda.
func (h *CartHandlers) openOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, _, ok := h.cart(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "orders are unavailable", http.StatusServiceUnavailable))
		return
	}
	var req struct {
		CustomerName string `json:"customerName"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	var order domain.Order
	err := cart.Settle(ctx, func(items []domain.SaleItem) error {
		opened, err := h.orders.AddOrder(ctx, services.OrderDraft{CustomerName: req.CustomerName, Items: items})
		order = opened
		return err
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, storageWarning(map[string]any{"order": order}, cart.Err()))
}
