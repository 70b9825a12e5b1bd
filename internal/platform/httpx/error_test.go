package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acai-counter/pos/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("INSUFFICIENT_CASH", "insufficient\ncash", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"field": "cashAmount"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "INSUFFICIENT_CASH" || body["message"] != "insufficient cash" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body["trace_id"] != "trace-1" || body["field"] != "cashAmount" {
		t.Fatalf("expected trace id and details, got %+v", body)
	}
}
