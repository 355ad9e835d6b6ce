package handler

import (
	"context"
	"sync"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/sequencer"
)

// GapObserver is notified of gap open/close transitions on a per-stream
// basis, used to drive scheduled gap-replay (C6) and metrics.
type GapObserver interface {
	GapDetected(id eventsource.ID, expected, actual int32)
	GapClosed(id eventsource.ID)
}

// DuplicateObserver is notified whenever an offered transaction is a
// duplicate, either below the expected revision or already buffered.
type DuplicateObserver func(id eventsource.ID, kind sequencer.DuplicateKind, revision int32)

// ExpectedRevisionFunc seeds a stream's expected revision. Once the handler
// has delivered a revision of the stream, the larger of this value and the
// revision after the last one delivered is used. Returning
// eventsource.IgnoreHistory marks the stream untracked: every revision is
// accepted as in-sequence and no sequencer is installed for it.
type ExpectedRevisionFunc func(id eventsource.ID) int32

type txnItem struct {
	ctx context.Context
	txn eventsource.Transaction
}

// SequencedHandler is C2: it keeps one sequencer.Sequencer per stream,
// lazily installed on the first out-of-sequence arrival, and removed again
// the moment its gap closes. next is called for every transaction that
// becomes deliverable, whether immediately or after a gap closes, so
// whatever wraps SequencedHandler (FailSafeHandler) observes every
// eventual delivery, not just the one that triggered a given Handle call.
type SequencedHandler struct {
	mu          sync.Mutex
	sequencers  map[eventsource.ID]*sequencer.Sequencer[int32, txnItem]
	delivered   map[eventsource.ID]int32 // revision after the last one passed to next
	next        DeliverFunc
	expected    ExpectedRevisionFunc
	gaps        GapObserver
	onDuplicate DuplicateObserver
	bufferLimit int
}

// NewSequencedHandler builds a SequencedHandler forwarding in-order
// transactions to next. gaps and onDuplicate may be nil. bufferLimit <= 0
// means unlimited per-stream buffering.
func NewSequencedHandler(next DeliverFunc, expected ExpectedRevisionFunc, bufferLimit int, gaps GapObserver, onDuplicate DuplicateObserver) *SequencedHandler {
	return &SequencedHandler{
		sequencers:  make(map[eventsource.ID]*sequencer.Sequencer[int32, txnItem]),
		delivered:   make(map[eventsource.ID]int32),
		next:        next,
		expected:    expected,
		gaps:        gaps,
		onDuplicate: onDuplicate,
		bufferLimit: bufferLimit,
	}
}

// Handle offers t to the per-stream sequencer for t.StreamID, lazily
// installing one on the first out-of-sequence arrival.
func (h *SequencedHandler) Handle(ctx context.Context, t eventsource.Transaction) error {
	id := t.StreamID

	h.mu.Lock()
	seq, exists := h.sequencers[id]
	h.mu.Unlock()

	if exists {
		return seq.Offer(t.Revision, txnItem{ctx, t})
	}

	expected := h.expected(id)
	if expected != eventsource.IgnoreHistory {
		h.mu.Lock()
		if n, ok := h.delivered[id]; ok && n > expected {
			expected = n
		}
		h.mu.Unlock()
	}
	switch {
	case expected == eventsource.IgnoreHistory:
		h.deliverNow(ctx, t)
		return nil

	case t.Revision == expected:
		h.deliverNow(ctx, t)
		return nil

	case t.Revision < expected:
		if h.onDuplicate != nil {
			h.onDuplicate(id, sequencer.DuplicateBelowExpected, t.Revision)
		}
		return nil

	default: // t.Revision > expected: first out-of-sequence arrival for id
		return h.installAndOffer(ctx, id, expected, t)
	}
}

func (h *SequencedHandler) installAndOffer(ctx context.Context, id eventsource.ID, expected int32, t eventsource.Transaction) error {
	h.mu.Lock()
	if existing, ok := h.sequencers[id]; ok {
		// Concurrency assumption: callers serialize per-stream offers, so
		// this only guards against defensive double-construction, not a
		// real race between two concurrent first-arrivals for id.
		h.mu.Unlock()
		return existing.Offer(t.Revision, txnItem{ctx, t})
	}

	seq := sequencer.New[int32, txnItem](
		func(_ int32, item txnItem) { h.deliverNow(item.ctx, item.txn) },
		expected,
		h.bufferLimit,
		&gapBridge{id: id, observer: h.gaps, remove: func() { h.removeSequencer(id) }},
		func(kind sequencer.DuplicateKind, k int32, _ txnItem) {
			if h.onDuplicate != nil {
				h.onDuplicate(id, kind, k)
			}
		},
	)
	h.sequencers[id] = seq
	h.mu.Unlock()

	return seq.Offer(t.Revision, txnItem{ctx, t})
}

func (h *SequencedHandler) deliverNow(ctx context.Context, t eventsource.Transaction) {
	// Fire-and-forget: the live chain does not block the caller on
	// completion. Synchronous errors here are already recorded by the
	// FailSafeHandler layer below; asynchronous ones surface through the
	// handle FailSafeHandler is watching.
	h.mu.Lock()
	h.delivered[t.StreamID] = t.Revision + 1
	h.mu.Unlock()
	_, _ = h.next(ctx, t)
}

func (h *SequencedHandler) removeSequencer(id eventsource.ID) {
	h.mu.Lock()
	delete(h.sequencers, id)
	h.mu.Unlock()
}

// gapBridge adapts the generic sequencer.GapHandler callback into the
// handler-level GapObserver plus sequencer removal. GapClosed runs inside
// the owning Sequencer's own Offer call, i.e. while its internal lock is
// held, so the map entry is removed before any later offer for the same
// stream can observe a stale sequencer.
type gapBridge struct {
	id       eventsource.ID
	observer GapObserver
	remove   func()
}

func (b *gapBridge) GapDetected(expected, actual int32) {
	if b.observer != nil {
		b.observer.GapDetected(b.id, expected, actual)
	}
}

func (b *gapBridge) GapClosed() {
	if b.observer != nil {
		b.observer.GapClosed(b.id)
	}
	b.remove()
}
