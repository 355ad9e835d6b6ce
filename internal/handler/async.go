package handler

import (
	"context"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/executor"
)

// ConsumeFunc is the terminal step of the live chain: a consumer's
// ConsumeLive (or ConsumeReplay, for the replay path), already bound to a
// concrete DurableConsumer/LiveConsumer.
type ConsumeFunc func(ctx context.Context, t eventsource.Transaction) error

// AsyncHandler is C4: it submits each transaction to the hash-partitioned
// executor, keyed by stream ID, so per-stream order is preserved while
// distinct streams run concurrently.
type AsyncHandler struct {
	ex      *executor.Executor
	consume ConsumeFunc
}

// NewAsyncHandler builds an AsyncHandler dispatching onto ex.
func NewAsyncHandler(ex *executor.Executor, consume ConsumeFunc) *AsyncHandler {
	return &AsyncHandler{ex: ex, consume: consume}
}

// Deliver implements DeliverFunc.
func (h *AsyncHandler) Deliver(ctx context.Context, t eventsource.Transaction) (*executor.Handle, error) {
	return h.ex.Submit(string(t.StreamID), func(taskCtx context.Context) error {
		return h.consume(ctx, t)
	})
}
