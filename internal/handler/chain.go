package handler

import (
	"context"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/executor"
)

// LiveChainConfig wires up the FailSafe . Sequencer . Async chain the live
// cutover path (C6) feeds transactions into.
type LiveChainConfig struct {
	Executor         *executor.Executor
	Table            *FailedStreamTable
	Consume          ConsumeFunc
	ExpectedRevision ExpectedRevisionFunc
	BufferLimit      int
	Gaps             GapObserver
	OnDuplicate      DuplicateObserver
	ReportFailure    FailureReporter
}

// NewLiveChain builds the three-layer handler chain and returns its single
// entry point: a DeliverFunc a live subscription can call per transaction.
// Async sits innermost (dispatches onto the partitioned executor),
// FailSafeHandler wraps it (monitors every actual delivery, whether
// triggered directly or drained out of a sequencer's buffer, and marks the
// stream failed on error), and SequencedHandler wraps that pair, lazily
// installing and tearing down a per-stream sequencer.Sequencer. A final
// pre-check mirrors FailSafeHandler's own guard at the true entry point, so
// a stream already marked failed never burns sequencer buffer space.
func NewLiveChain(cfg LiveChainConfig) func(ctx context.Context, t eventsource.Transaction) error {
	async := NewAsyncHandler(cfg.Executor, cfg.Consume)
	failSafe := NewFailSafeHandler(cfg.Table, async.Deliver, cfg.ReportFailure)
	seq := NewSequencedHandler(failSafe.Deliver, cfg.ExpectedRevision, cfg.BufferLimit, cfg.Gaps, cfg.OnDuplicate)

	return func(ctx context.Context, t eventsource.Transaction) error {
		if cfg.Table.IsFailed(t.StreamID) {
			return nil
		}
		return seq.Handle(ctx, t)
	}
}
