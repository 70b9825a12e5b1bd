package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/services"
)

func TestCartHandlersAddAndGet(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango", "quantity": 3})
	expectStatus(t, rec, http.StatusCreated)
	rec = srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "acai-kg", "weight": 500})
	expectStatus(t, rec, http.StatusCreated)

	rec = srv.do(t, http.MethodGet, "/api/v1/cart/", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["session"] != "counter" {
		t.Fatalf("expected default session, got %v", body["session"])
	}
	if body["totalValue"] != "37" {
		t.Fatalf("expected total 37, got %v", body["totalValue"])
	}
	items := body["items"].([]any)
	first := items[0].(map[string]any)
	if first["total"] != "13.5" {
		t.Fatalf("expected first line 13.5, got %v", first["total"])
	}
}

func TestCartHandlersSessionsAreIsolated(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango"}, SessionHeader, "caixa-2")
	expectStatus(t, rec, http.StatusCreated)

	rec = srv.do(t, http.MethodGet, "/api/v1/cart/", nil)
	if got := decodeBody(t, rec)["totalItems"]; got != float64(0) {
		t.Fatalf("expected counter cart to stay empty, got %v", got)
	}
	rec = srv.do(t, http.MethodGet, "/api/v1/cart/", nil, SessionHeader, "caixa-2")
	if got := decodeBody(t, rec)["totalItems"]; got != float64(1) {
		t.Fatalf("expected caixa-2 cart to hold 1 item, got %v", got)
	}
}

func TestCartHandlersRejections(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"unknown product", map[string]any{"productId": "tapioca"}, http.StatusBadRequest, "INVALID_PRODUCT"},
		{"weight missing", map[string]any{"productId": "acai-kg"}, http.StatusBadRequest, "WEIGHT_REQUIRED"},
		{"zero quantity", map[string]any{"productId": "picole-morango", "quantity": 0}, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"addon not addon", map[string]any{"productId": "copo-500", "addonIds": []string{"picole-morango"}}, http.StatusBadRequest, "INVALID_ADDON"},
		{"too many options", map[string]any{
			"productId":       "copo-500",
			"selectedOptions": map[string][]string{"frutas": {"morango", "banana", "kiwi"}},
		}, http.StatusBadRequest, "OPTION_LIMIT_EXCEEDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/cart/items", tc.body)
			expectErrorCode(t, rec, tc.status, tc.code)
		})
	}

	rec := srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"produto": "x"})
	expectErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestCartHandlersUpdateAndRemove(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango"})
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "copo-500", "addonIds": []string{"granola"}})

	rec := srv.do(t, http.MethodPatch, "/api/v1/cart/items/0", map[string]any{"quantity": 4})
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody(t, rec)["totalValue"]; got != "42" {
		t.Fatalf("expected 4*4.5 + 22 + 2 = 42, got %v", got)
	}

	rec = srv.do(t, http.MethodPatch, "/api/v1/cart/items/0", map[string]any{"quantity": -1})
	expectErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = srv.do(t, http.MethodDelete, "/api/v1/cart/items/9", nil)
	expectErrorCode(t, rec, http.StatusNotFound, "ITEM_NOT_FOUND")

	rec = srv.do(t, http.MethodDelete, "/api/v1/cart/items/abc", nil)
	expectErrorCode(t, rec, http.StatusNotFound, "ITEM_NOT_FOUND")

	rec = srv.do(t, http.MethodDelete, "/api/v1/cart/items/0", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody(t, rec)["totalItems"]; got != float64(1) {
		t.Fatalf("expected one item left, got %v", got)
	}
}

func TestCartHandlersBatch(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/cart/items/batch", map[string]any{"items": []map[string]any{
		{"productId": "picole-morango"},
		{"productId": "tapioca"},
		{"productId": "agua-500", "quantity": 2},
	}})
	expectStatus(t, rec, http.StatusOK)
	results := decodeBody(t, rec)["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].(map[string]any)["code"] != "INVALID_PRODUCT" {
		t.Fatalf("expected second entry rejected, got %+v", results[1])
	}
	if results[2].(map[string]any)["item"] == nil {
		t.Fatalf("expected third entry added, got %+v", results[2])
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/cart/items/remove", map[string]any{"indices": []int{0, 0, 1}})
	expectStatus(t, rec, http.StatusOK)
	results = decodeBody(t, rec)["results"].([]any)
	if results[1].(map[string]any)["code"] != "ITEM_NOT_FOUND" {
		t.Fatalf("expected duplicate index to fail, got %+v", results[1])
	}
	if srv.carts.Cart(context.Background(), "counter").TotalItems() != 0 {
		t.Fatalf("expected cart emptied by batch remove")
	}
}

func TestCartHandlersCheckout(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango", "quantity": 2})

	rec := srv.do(t, http.MethodPost, "/api/v1/cart/checkout", map[string]any{
		"customerName": "Ana", "paymentMethod": "cash", "cashAmount": 5,
	})
	expectErrorCode(t, rec, http.StatusUnprocessableEntity, "INSUFFICIENT_CASH")
	if srv.carts.Cart(context.Background(), "counter").IsEmpty() {
		t.Fatalf("expected cart kept after failed checkout")
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/cart/checkout", map[string]any{
		"customerName": "Ana", "paymentMethod": "cash", "cashAmount": "20.00",
	})
	expectStatus(t, rec, http.StatusCreated)
	sale := decodeBody(t, rec)["sale"].(map[string]any)
	if sale["change"] != "11" || sale["total"] != "9" {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if !srv.carts.Cart(context.Background(), "counter").IsEmpty() {
		t.Fatalf("expected cart cleared after checkout")
	}
	if srv.finalizer.TotalSales() != 1 {
		t.Fatalf("expected one sale in ledger")
	}
}

func TestCartHandlersOpenOrder(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "copo-300"})

	rec := srv.do(t, http.MethodPost, "/api/v1/cart/order", map[string]any{"customerName": ""})
	expectErrorCode(t, rec, http.StatusBadRequest, "CUSTOMER_NAME_REQUIRED")

	rec = srv.do(t, http.MethodPost, "/api/v1/cart/order", map[string]any{"customerName": "Bruno"})
	expectStatus(t, rec, http.StatusCreated)
	if srv.orders.OrderCount() != 1 {
		t.Fatalf("expected one open order")
	}
	if !srv.carts.Cart(context.Background(), "counter").IsEmpty() {
		t.Fatalf("expected cart moved into the order")
	}
}

func TestCartHandlersStatistics(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango", "quantity": 2})

	rec := srv.do(t, http.MethodGet, "/api/v1/cart/statistics", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody(t, rec)["totalQuantity"]; got != float64(2) {
		t.Fatalf("expected totalQuantity 2, got %v", got)
	}
}

type interleavingSales struct {
	next   SaleCompleter
	during func()
}

func (s interleavingSales) CompleteSale(ctx context.Context, req services.SaleRequest) (domain.CompletedSale, error) {
	s.during()
	return s.next.CompleteSale(ctx, req)
}

type interleavingOrders struct {
	next   OrderOpener
	during func()
}

func (o interleavingOrders) AddOrder(ctx context.Context, draft services.OrderDraft) (domain.Order, error) {
	o.during()
	return o.next.AddOrder(ctx, draft)
}

// addDuring fires an add-item request at handler and gives it time to reach the cart before
// returning. The response arrives on the returned channel.
func addDuring(handler http.Handler, body string) (func(), <-chan int) {
	statuses := make(chan int, 1)
	return func() {
		go func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewReader([]byte(body)))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			statuses <- rec.Code
		}()
		time.Sleep(50 * time.Millisecond)
	}, statuses
}

func TestCartHandlersCheckoutKeepsItemsAddedMidway(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango", "quantity": 2})

	var router http.Handler
	during, added := addDuring(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r)
	}), `{"productId":"acai-kg","weight":300}`)
	router = NewRouter(
		WithMiddlewares(SessionMiddleware),
		WithCartRoutes(NewCartHandlers(CartHandlersDeps{
			Carts:   srv.carts,
			Sales:   interleavingSales{next: srv.finalizer, during: during},
			Orders:  srv.orders,
			Catalog: srv.menu,
		}).Routes),
	)

	body := []byte(`{"customerName":"Ana","paymentMethod":"pix"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusCreated)
	if total := decodeBody(t, rec)["sale"].(map[string]any)["total"]; total != "9" {
		t.Fatalf("expected only the items present at checkout to be sold, got total %v", total)
	}

	if status := <-added; status != http.StatusCreated {
		t.Fatalf("expected midway add to succeed, got %d", status)
	}
	items := srv.carts.Cart(context.Background(), "counter").Items()
	if len(items) != 1 || items[0].Product.ID != "acai-kg" {
		t.Fatalf("expected the midway add to stay in the cart, got %+v", items)
	}
}

func TestCartHandlersOpenOrderKeepsItemsAddedMidway(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": "picole-morango", "quantity": 2})

	var router http.Handler
	during, added := addDuring(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r)
	}), `{"productId":"acai-kg","weight":300}`)
	router = NewRouter(
		WithMiddlewares(SessionMiddleware),
		WithCartRoutes(NewCartHandlers(CartHandlersDeps{
			Carts:   srv.carts,
			Sales:   srv.finalizer,
			Orders:  interleavingOrders{next: srv.orders, during: during},
			Catalog: srv.menu,
		}).Routes),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/order", bytes.NewReader([]byte(`{"customerName":"Bruno"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusCreated)

	if status := <-added; status != http.StatusCreated {
		t.Fatalf("expected midway add to succeed, got %d", status)
	}
	orders := srv.orders.Orders()
	if len(orders) != 1 || len(orders[0].Items) != 1 || orders[0].Items[0].Product.ID != "picole-morango" {
		t.Fatalf("expected the order to hold only the original item, got %+v", orders)
	}
	items := srv.carts.Cart(context.Background(), "counter").Items()
	if len(items) != 1 || items[0].Product.ID != "acai-kg" {
		t.Fatalf("expected the midway add to stay in the cart, got %+v", items)
	}
}
