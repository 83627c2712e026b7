package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log records.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler hands records to background writers through a bounded queue.
// When the queue is full, records below Error are dropped and counted;
// Error and above wait for room so failures are never lost.
type AsyncHandler struct {
	inner slog.Handler
	q     *asyncQueue
}

type asyncQueue struct {
	ch      chan pending
	wg      sync.WaitGroup
	dropped atomic.Int64
}

type pending struct {
	handler slog.Handler
	ctx     context.Context
	rec     slog.Record
}

// NewAsyncHandler starts workers writers draining a queue of size capacity.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	q := &asyncQueue{ch: make(chan pending, capacity)}
	for range max(workers, 1) {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for p := range q.ch {
				_ = p.handler.Handle(p.ctx, p.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues rec. The caller's context is detached: its cancellation must
// not abort a write that happens after the request has finished.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	p := pending{handler: h.inner, ctx: detach(ctx), rec: rec.Clone()}
	if rec.Level >= slog.LevelError {
		h.q.ch <- p
		return nil
	}
	select {
	case h.q.ch <- p:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount reports how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close stops accepting records and waits until the queue is written out.
func (h *AsyncHandler) Close() {
	close(h.q.ch)
	h.q.wg.Wait()
}
