package eventsource

import (
	"context"
	"fmt"
)

// Subscription represents a live subscription to an EventSource. Cancel
// terminates delivery; in-flight transactions are allowed to complete.
type Subscription interface {
	Cancel()
}

// Source is the minimal contract the ordered delivery pipeline requires
// from the journal and pub/sub substrate. Storage mechanics (how a
// Transaction is persisted, how categories are indexed) are the concern of
// whatever implements Source, not of this package.
type Source interface {
	// Subscribe attaches sink to the live feed, delivering every
	// transaction whose category passes filter. Subscribe returns once the
	// subscription is active; delivery itself is asynchronous.
	Subscribe(ctx context.Context, filter func(CAT) bool, sink func(Transaction)) (Subscription, error)

	// Replay drives handler over every transaction in the journal,
	// restricted to the supplied categories (no categories means every
	// category), in (timestamp, streamId, revision) order.
	Replay(ctx context.Context, categories []CAT, handler func(Transaction) error) error

	// ReplayFrom behaves like Replay but only visits transactions with
	// Timestamp >= since.
	ReplayFrom(ctx context.Context, since int64, categories []CAT, handler func(Transaction) error) error

	// ReplayStreamRange visits transactions of a single stream with
	// revision in the half-open range [lo, hi), in revision order.
	ReplayStreamRange(ctx context.Context, id ID, lo, hi int32, handler func(Transaction) error) error
}

// DurableConsumer is supplied by the caller of EventStream.Resume. It
// bootstraps replay and hands off to a LiveConsumer once cutover begins.
type DurableConsumer interface {
	// LastTimestamp is the last transaction timestamp (epoch ms) the
	// consumer has durably processed, or nil if it has processed nothing.
	LastTimestamp() *int64

	// CategoryFilter returns the categories this consumer cares about. An
	// empty set means every category.
	CategoryFilter() []CAT

	// ConsumeReplay is invoked serially per stream during replay.
	ConsumeReplay(ctx context.Context, t Transaction) error

	// OnLive returns the live-mode interface once cutover begins.
	OnLive() LiveConsumer
}

// LiveConsumer receives ordered live transactions after cutover.
type LiveConsumer interface {
	// ExpectedRevision seeds the per-stream sequencer for id. Returning
	// eventsource.IgnoreHistory marks the stream as untracked: any
	// revision is accepted as in-sequence and no sequencer is installed.
	ExpectedRevision(id ID) int32

	// ConsumeLive receives a transaction once it is in order for its
	// stream.
	ConsumeLive(ctx context.Context, t Transaction) error
}

// StreamsReplayFailure reports that one or more streams failed during
// replay; Resume refuses to go live while any replay stream is failed.
type StreamsReplayFailure struct {
	Failed map[ID]error
}

func (e *StreamsReplayFailure) Error() string {
	return fmt.Sprintf("replay failed for %d stream(s)", len(e.Failed))
}

// ReplayTimeout reports that maxReplayConsumptionWait elapsed before the
// replay pipeline drained.
type ReplayTimeout struct {
	Waited int
}

func (e *ReplayTimeout) Error() string {
	return "replay consumption timed out"
}

// ConsumerHangDetected reports that a single transaction's completion
// handle did not resolve within the per-transaction await timeout.
type ConsumerHangDetected struct {
	StreamID ID
	Revision int32
	Cause    error
}

func (e *ConsumerHangDetected) Error() string {
	return fmt.Sprintf("consumer hang detected for stream %s revision %d: %v", e.StreamID, e.Revision, e.Cause)
}

func (e *ConsumerHangDetected) Unwrap() error { return e.Cause }

// ConsumerFailure reports that a DurableConsumer/LiveConsumer callback
// returned an error for a specific transaction.
type ConsumerFailure struct {
	StreamID ID
	Txn      Transaction
	Cause    error
}

func (e *ConsumerFailure) Error() string {
	return fmt.Sprintf("consumer failed on stream %s revision %d: %v", e.StreamID, e.Txn.Revision, e.Cause)
}

func (e *ConsumerFailure) Unwrap() error { return e.Cause }
