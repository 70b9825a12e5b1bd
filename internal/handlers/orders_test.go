package handlers

import (
	"net/http"
	"testing"
)

func createOrder(t *testing.T, srv *testServer, name string, items ...map[string]any) string {
	t.Helper()
	rec := srv.do(t, http.MethodPost, "/api/v1/orders/", map[string]any{"customerName": name, "items": items})
	expectStatus(t, rec, http.StatusCreated)
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatalf("expected order id in response")
	}
	return id
}

func TestOrderHandlersLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv, "Carla", map[string]any{"productId": "picole-morango", "quantity": 2})

	rec := srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/items", map[string]any{"items": []map[string]any{
		{"productId": "acai-kg", "weight": 300},
	}})
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["value"] != "23.1" {
		t.Fatalf("expected 9 + 14.1 = 23.1, got %v", body["value"])
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/orders/"+id+"/items/1", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = srv.do(t, http.MethodPatch, "/api/v1/orders/"+id, map[string]any{"customerName": "Carla Souza"})
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["customerName"] != "Carla Souza" {
		t.Fatalf("expected rename to apply")
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/orders/", nil)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["totalValue"] != "9" {
		t.Fatalf("expected open orders total 9")
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/orders/"+id, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = srv.do(t, http.MethodGet, "/api/v1/orders/"+id, nil)
	expectErrorCode(t, rec, http.StatusNotFound, "ORDER_NOT_FOUND")
}

func TestOrderHandlersValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/orders/", map[string]any{"customerName": "  "})
	expectErrorCode(t, rec, http.StatusBadRequest, "CUSTOMER_NAME_REQUIRED")

	rec = srv.do(t, http.MethodPost, "/api/v1/orders/", map[string]any{
		"customerName": "Davi",
		"items":        []map[string]any{{"productId": "acai-kg", "weight": 20000}},
	})
	expectErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	id := createOrder(t, srv, "Davi")
	rec = srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/items", map[string]any{"items": []map[string]any{}})
	expectErrorCode(t, rec, http.StatusBadRequest, "NO_ITEMS")

	rec = srv.do(t, http.MethodPatch, "/api/v1/orders/"+id, map[string]any{"status": "completed"})
	expectStatus(t, rec, http.StatusOK)
	rec = srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/items", map[string]any{"items": []map[string]any{{"productId": "agua-500"}}})
	expectErrorCode(t, rec, http.StatusConflict, "ORDER_NOT_OPEN")
}

func TestOrderHandlersComplete(t *testing.T) {
	srv := newTestServer(t)
	id := createOrder(t, srv, "Eva", map[string]any{"productId": "picole-morango", "quantity": 2})

	rec := srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/complete", map[string]any{"paymentMethod": "cash", "cashAmount": 5})
	expectErrorCode(t, rec, http.StatusUnprocessableEntity, "INSUFFICIENT_CASH")
	if srv.orders.OrderCount() != 1 {
		t.Fatalf("expected order kept after failed payment")
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/complete", map[string]any{"paymentMethod": "debit", "discount": 2})
	expectErrorCode(t, rec, http.StatusUnprocessableEntity, "ADJUSTMENT_OUT_OF_BOUNDS")

	rec = srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/complete", map[string]any{"paymentMethod": "cash", "cashAmount": 20})
	expectStatus(t, rec, http.StatusCreated)
	sale := decodeBody(t, rec)["sale"].(map[string]any)
	if sale["orderId"] != id || sale["change"] != "11" {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if srv.orders.OrderCount() != 0 || srv.finalizer.TotalSales() != 1 {
		t.Fatalf("expected order moved into the ledger")
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/complete", map[string]any{"paymentMethod": "pix"})
	expectErrorCode(t, rec, http.StatusNotFound, "ORDER_NOT_FOUND")

	rec = srv.do(t, http.MethodPost, "/api/v1/orders/"+id+"/complete", map[string]any{"customerName": "X", "paymentMethod": "pix"})
	expectErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}
