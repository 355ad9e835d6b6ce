// Package handler assembles the live-delivery chain described by the
// pipeline: a failed-stream check in front of SequencedTransactionHandler,
// which wraps FailSafeTransactionHandler, which wraps
// AsyncTransactionHandler. Each layer takes the next layer's
// delivery function as a constructor argument, the same small-interface
// wiring style the teacher uses for its subscriber/session callbacks.
package handler

import (
	"context"
	"sync"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/executor"
)

// FailureRecord is the reason a stream was marked failed.
type FailureRecord struct {
	Category eventsource.CAT
	Err      error
}

// FailedStreamTable is the shared registry of streams a DurableConsumer or
// LiveConsumer has given up on. Entries are never evicted: a failed stream
// stays failed for the lifetime of the owning EventStream.
type FailedStreamTable struct {
	mu     sync.RWMutex
	failed map[eventsource.ID]FailureRecord
}

// NewFailedStreamTable returns an empty table.
func NewFailedStreamTable() *FailedStreamTable {
	return &FailedStreamTable{failed: make(map[eventsource.ID]FailureRecord)}
}

// IsFailed reports whether id has already been marked failed.
func (t *FailedStreamTable) IsFailed(id eventsource.ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.failed[id]
	return ok
}

// MarkFailed records id as failed. The first failure for a stream wins;
// later calls for the same id are no-ops.
func (t *FailedStreamTable) MarkFailed(id eventsource.ID, cat eventsource.CAT, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.failed[id]; ok {
		return
	}
	t.failed[id] = FailureRecord{Category: cat, Err: err}
}

// Snapshot returns a point-in-time copy of id -> failure cause.
func (t *FailedStreamTable) Snapshot() map[eventsource.ID]error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[eventsource.ID]error, len(t.failed))
	for id, rec := range t.failed {
		out[id] = rec.Err
	}
	return out
}

// Len reports how many streams are currently failed.
func (t *FailedStreamTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.failed)
}

// FailureReporter is invoked the moment a stream transitions into the
// failed set, typically wired to the structured logger.
type FailureReporter func(id eventsource.ID, err error)

// DeliverFunc is the shape shared by every layer of the chain: submit t,
// returning a completion handle (nil once delivery already finished
// synchronously) or an immediate error.
type DeliverFunc func(ctx context.Context, t eventsource.Transaction) (*executor.Handle, error)

// FailSafeHandler is C3: before forwarding, it consults the FailedStreamTable
// and drops transactions for streams already marked failed. On a failure —
// whether raised synchronously by next or discovered later via the
// returned handle — it marks the stream failed and reports it, so every
// later transaction for that stream is dropped without touching next again.
type FailSafeHandler struct {
	table  *FailedStreamTable
	next   DeliverFunc
	report FailureReporter
}

// NewFailSafeHandler builds a FailSafeHandler guarding next with table.
// report may be nil.
func NewFailSafeHandler(table *FailedStreamTable, next DeliverFunc, report FailureReporter) *FailSafeHandler {
	return &FailSafeHandler{table: table, next: next, report: report}
}

// Deliver implements DeliverFunc.
func (h *FailSafeHandler) Deliver(ctx context.Context, t eventsource.Transaction) (*executor.Handle, error) {
	if h.table.IsFailed(t.StreamID) {
		return nil, nil
	}
	handle, err := h.next(ctx, t)
	if err != nil {
		h.fail(t, err)
		return nil, err
	}
	if handle != nil {
		go h.watch(t, handle)
	}
	return handle, nil
}

func (h *FailSafeHandler) watch(t eventsource.Transaction, handle *executor.Handle) {
	if err := handle.Wait(context.Background()); err != nil {
		h.fail(t, err)
	}
}

func (h *FailSafeHandler) fail(t eventsource.Transaction, err error) {
	h.table.MarkFailed(t.StreamID, t.Category, err)
	if h.report != nil {
		h.report(t.StreamID, err)
	}
}
