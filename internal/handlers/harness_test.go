package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acai-counter/pos/internal/catalog"
	"github.com/acai-counter/pos/internal/services"
)

type testServer struct {
	router    chi.Router
	menu      *catalog.Catalog
	carts     *services.CartSessions
	orders    *services.OrderStore
	finalizer *services.SaleFinalizer
}

var testNow = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	menu, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	clock := func() time.Time { return testNow }
	orders := services.NewOrderStore(services.OrderStoreDeps{Clock: clock})
	finalizer := services.NewSaleFinalizer(services.SaleFinalizerDeps{Orders: orders, Clock: clock})
	carts := services.NewCartSessions(services.CartStoreDeps{})

	router := NewRouter(
		WithMiddlewares(SessionMiddleware),
		WithCatalogRoutes(NewCatalogHandlers(menu).Routes),
		WithCartRoutes(NewCartHandlers(CartHandlersDeps{Carts: carts, Sales: finalizer, Orders: orders, Catalog: menu}).Routes),
		WithOrderRoutes(NewOrderHandlers(OrderHandlersDeps{Orders: orders, Finalizer: finalizer, Catalog: menu, Validate: true}).Routes),
		WithSalesRoutes(NewSalesHandlers(finalizer).Routes),
		WithReportRoutes(NewReportHandlers(ReportHandlersDeps{Sales: finalizer, Location: time.UTC, Clock: clock}).Routes),
	)
	return &testServer{router: router, menu: menu, carts: carts, orders: orders, finalizer: finalizer}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rec, status)
	if got := decodeBody(t, rec)["error"]; got != code {
		t.Fatalf("expected error code %s, got %v", code, got)
	}
}
