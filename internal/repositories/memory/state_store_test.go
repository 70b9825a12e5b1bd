package memory

import (
	"context"
	"testing"
)

func TestStateStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()

	if _, ok, err := store.Get(ctx, "orders"); err != nil || ok {
		t.Fatalf("expected miss on empty store, got ok=%v err=%v", ok, err)
	}

	payload := []byte(`[{"id":"01"}]`)
	if err := store.Set(ctx, "orders", payload); err != nil {
		t.Fatalf("Set: %v", err)
	}
	payload[0] = 'x'

	got, ok, err := store.Get(ctx, "orders")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `[{"id":"01"}]` {
		t.Fatalf("expected stored copy to be isolated from caller, got %s", got)
	}

	got[0] = 'y'
	again, _, _ := store.Get(ctx, "orders")
	if again[0] != '[' {
		t.Fatalf("expected returned slice to be a copy")
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != "orders" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestStateStore_Records(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()

	if err := store.PutRecord(ctx, "sales", "b", []byte(`{"id":"b"}`)); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	if err := store.PutRecord(ctx, "sales", "a", []byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	if err := store.PutRecord(ctx, "orders", "a", []byte(`{"id":"order"}`)); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	sales, err := store.ListRecords(ctx, "sales")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(sales) != 2 || string(sales[0]) != `{"id":"a"}` || string(sales[1]) != `{"id":"b"}` {
		t.Fatalf("unexpected sales records %q", sales)
	}

	if err := store.DeleteRecord(ctx, "sales", "a"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := store.DeleteRecord(ctx, "sales", "missing"); err != nil {
		t.Fatalf("expected deleting a missing record to succeed, got %v", err)
	}
	sales, _ = store.ListRecords(ctx, "sales")
	if len(sales) != 1 || string(sales[0]) != `{"id":"b"}` {
		t.Fatalf("unexpected records after delete %q", sales)
	}
	orders, _ := store.ListRecords(ctx, "orders")
	if len(orders) != 1 {
		t.Fatalf("expected collections to stay separate, got %d orders", len(orders))
	}
	if empty, err := store.ListRecords(ctx, "unknown"); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list for unknown collection, got %q err=%v", empty, err)
	}
}
