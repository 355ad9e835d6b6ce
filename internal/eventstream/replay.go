package eventstream

import (
	"context"
	"time"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/executor"
	"github.com/cschjolb/scuff/internal/handler"
)

// replayItem pairs a replayed transaction with the completion handle its
// submission onto the partitioned executor returned.
type replayItem struct {
	txn    eventsource.Transaction
	handle *executor.Handle
}

// runReplayPipeline is C5: drive iterates a journal scan (bound by the
// caller to Source.Replay or Source.ReplayFrom), submitting each
// transaction through consumeReplay on ex and handing the resulting
// (transaction, handle) pair off through a bounded queue of depth
// cfg.ReplayBuffer. A producer goroutine feeds the queue and never blocks
// on consumption beyond that bound; an awaiter goroutine drains it,
// awaiting each handle up to cfg.PerTransactionTimeout before marking the
// stream failed and moving on — a single slow or failing stream never
// stalls the rest of the replay. The whole pipeline is itself bounded by
// cfg.MaxReplayConsumptionWait when positive.
//
// It returns the last transaction timestamp observed (epoch ms), or nil if
// the scan produced nothing.
func runReplayPipeline(
	ctx context.Context,
	cfg Config,
	ex *executor.Executor,
	table *handler.FailedStreamTable,
	monitor *AwaitMonitor,
	drive func(handler func(eventsource.Transaction) error) error,
	consumeReplay handler.ConsumeFunc,
) (*int64, error) {
	queue := make(chan replayItem, cfg.ReplayBuffer)
	doneReading := make(chan struct{})
	async := handler.NewAsyncHandler(ex, consumeReplay)

	var driveErr error
	go func() {
		defer close(doneReading)
		driveErr = drive(func(t eventsource.Transaction) error {
			if table.IsFailed(t.StreamID) {
				return nil
			}
			h, err := async.Deliver(ctx, t)
			if err != nil {
				table.MarkFailed(t.StreamID, t.Category, err)
				return nil
			}
			select {
			case queue <- replayItem{txn: t, handle: h}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	resultCh := make(chan *int64, 1)
	go func() {
		var lastTs *int64
		record := func(item replayItem) {
			awaitAndRecord(ctx, cfg, table, monitor, item)
			ms := item.txn.TimestampMillis()
			if lastTs == nil || ms > *lastTs {
				lastTs = &ms
			}
		}

	drainLoop:
		for {
			select {
			case item := <-queue:
				record(item)
			case <-doneReading:
				// The producer only closes doneReading after every push it
				// will ever make has already landed on queue, so draining
				// it here with a non-blocking receive is exhaustive.
				for {
					select {
					case item := <-queue:
						record(item)
					default:
						break drainLoop
					}
				}
			}
		}
		resultCh <- lastTs
	}()

	if cfg.MaxReplayConsumptionWait <= 0 {
		lastTs := <-resultCh
		return lastTs, driveErr
	}

	select {
	case lastTs := <-resultCh:
		return lastTs, driveErr
	case <-time.After(cfg.MaxReplayConsumptionWait):
		return nil, &eventsource.ReplayTimeout{Waited: int(cfg.MaxReplayConsumptionWait / time.Millisecond)}
	}
}

// awaitAndRecord waits for item's completion handle (if any) and, on
// timeout or failure, marks its stream failed in table so the producer
// skips that stream's transactions it has not yet submitted, without the
// rest of replay stalling.
func awaitAndRecord(ctx context.Context, cfg Config, table *handler.FailedStreamTable, monitor *AwaitMonitor, item replayItem) {
	if item.handle == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, cfg.PerTransactionTimeout)
	defer cancel()

	start := time.Now()
	err := item.handle.Wait(waitCtx)
	monitor.Observe(time.Since(start))
	if err == nil {
		return
	}

	var recorded error
	if waitCtx.Err() != nil {
		recorded = &eventsource.ConsumerHangDetected{StreamID: item.txn.StreamID, Revision: item.txn.Revision, Cause: err}
	} else {
		recorded = &eventsource.ConsumerFailure{StreamID: item.txn.StreamID, Txn: item.txn, Cause: err}
	}
	table.MarkFailed(item.txn.StreamID, item.txn.Category, recorded)
}
