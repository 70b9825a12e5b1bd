package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultPersistTimeout = 10 * time.Second

// writeOp is one pending write. apply must not touch the owning store's state; it only
// carries the snapshot captured when the write was queued.
type writeOp struct {
	ctx    context.Context
	action string
	apply  func(ctx context.Context) error
}

type writeFailure struct {
	err error
	seq uint64
}

// persistWriter drains snapshot writes on a single goroutine so store mutations never wait
// on the backend. Writes are coalesced per key: a key queued again before it is written keeps
// only the latest snapshot.
type persistWriter struct {
	event   string
	timeout time.Duration
	logger  func(context.Context, string, map[string]any)

	mu      sync.Mutex
	pending map[string]writeOp
	queue   []string
	failed  map[string]writeFailure
	seq     uint64
	idle    chan struct{}
}

func newPersistWriter(event string, timeout time.Duration, logger func(context.Context, string, map[string]any)) *persistWriter {
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	return &persistWriter{
		event:   event,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]writeOp),
		failed:  make(map[string]writeFailure),
	}
}

// submit queues apply under key and returns immediately.
func (w *persistWriter) submit(ctx context.Context, key, action string, apply func(context.Context) error) {
	op := writeOp{ctx: context.WithoutCancel(ctx), action: action, apply: apply}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, queued := w.pending[key]; !queued {
		w.queue = append(w.queue, key)
	}
	w.pending[key] = op
	if w.idle == nil {
		w.idle = make(chan struct{})
		go w.drain(w.idle)
	}
}

func (w *persistWriter) drain(idle chan struct{}) {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.idle = nil
			w.mu.Unlock()
			close(idle)
			return
		}
		key := w.queue[0]
		w.queue = w.queue[1:]
		op := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(op.ctx, w.timeout)
		err := op.apply(ctx)
		cancel()

		w.mu.Lock()
		if err != nil {
			w.seq++
			w.failed[key] = writeFailure{err: err, seq: w.seq}
		} else {
			delete(w.failed, key)
		}
		w.mu.Unlock()

		if err != nil {
			w.logger(op.ctx, w.event, map[string]any{
				"key":    key,
				"action": op.action,
				"error":  err.Error(),
			})
		}
	}
}

// Flush waits until every write queued so far has been attempted, then reports Err.
func (w *persistWriter) Flush(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return w.Err()
}

// Err returns the most recent failure among keys whose last write did not succeed. A nil
// writer never fails.
func (w *persistWriter) Err() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var latest writeFailure
	for _, failure := range w.failed {
		if failure.seq > latest.seq {
			latest = failure
		}
	}
	if latest.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorage, latest.err)
}

// reset forgets recorded failures. Writes still queued report again when they fail.
func (w *persistWriter) reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failed = make(map[string]writeFailure)
}

func recordKey(collection, id string) string {
	return collection + "/" + id
}
