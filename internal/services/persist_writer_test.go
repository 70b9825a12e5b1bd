package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPersistWriter_CoalescesPerKey(t *testing.T) {
	ctx := context.Background()
	writer := newPersistWriter("test.persist_failed", time.Second, func(context.Context, string, map[string]any) {})

	release := make(chan struct{})
	var mu sync.Mutex
	var written []string
	record := func(value string) func(context.Context) error {
		return func(context.Context) error {
			if value == "a1" {
				<-release
			}
			mu.Lock()
			defer mu.Unlock()
			written = append(written, value)
			return nil
		}
	}

	writer.submit(ctx, "a", "put", record("a1"))
	time.Sleep(20 * time.Millisecond)
	writer.submit(ctx, "a", "put", record("a2"))
	writer.submit(ctx, "b", "put", record("b1"))
	writer.submit(ctx, "a", "put", record("a3"))
	close(release)

	if err := writer.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(written) != 3 || written[0] != "a1" || written[1] != "a3" || written[2] != "b1" {
		t.Fatalf("expected a1 then the latest a and b, got %v", written)
	}
}

func TestPersistWriter_FailuresClearPerKey(t *testing.T) {
	ctx := context.Background()
	logs := &captureLogger{}
	writer := newPersistWriter("test.persist_failed", time.Second, logs.log)

	boom := errors.New("boom")
	writer.submit(ctx, "a", "put", func(context.Context) error { return boom })
	if err := writer.Flush(ctx); !errors.Is(err, ErrStorage) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if !logs.has("test.persist_failed") {
		t.Fatalf("expected failure to be logged")
	}

	writer.submit(ctx, "b", "put", func(context.Context) error { return nil })
	if err := writer.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected failure on another key to stay, got %v", err)
	}
	writer.submit(ctx, "a", "put", func(context.Context) error { return nil })
	if err := writer.Flush(ctx); err != nil {
		t.Fatalf("expected a later success on the key to clear it, got %v", err)
	}

	writer.submit(ctx, "c", "put", func(context.Context) error { return boom })
	_ = writer.Flush(ctx)
	writer.reset()
	if err := writer.Err(); err != nil {
		t.Fatalf("expected reset to forget failures, got %v", err)
	}
}

func TestPersistWriter_DetachesFromCallerContext(t *testing.T) {
	writer := newPersistWriter("test.persist_failed", time.Second, func(context.Context, string, map[string]any) {})
	ctx, cancel := context.WithCancel(context.Background())
	writer.submit(ctx, "a", "put", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return ctx.Err()
	})
	cancel()

	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("expected the write to outlive the request context, got %v", err)
	}
}

func TestPersistWriter_FlushHonoursContext(t *testing.T) {
	writer := newPersistWriter("test.persist_failed", time.Second, func(context.Context, string, map[string]any) {})
	release := make(chan struct{})
	defer close(release)
	writer.submit(context.Background(), "a", "put", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := writer.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Flush to stop at the deadline, got %v", err)
	}
}

func TestPersistWriter_NilIsInert(t *testing.T) {
	var writer *persistWriter
	writer.reset()
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("expected nil writer to flush cleanly, got %v", err)
	}
	if err := writer.Err(); err != nil {
		t.Fatalf("expected nil writer to report no error, got %v", err)
	}
}
