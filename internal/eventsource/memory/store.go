// Package memory adapts the teacher's in-process event stream (the
// acknowledging pub/sub subscriber table in events.Stream) and its
// compressed replay journal (internal/replay's snappy/zstd writer and
// gzip-archived loader) into a single eventsource.Source: an in-memory,
// optionally disk-journaled store of Transactions with live subscription
// and sorted replay.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cschjolb/scuff/internal/eventsource"
)

// Store is an in-memory eventsource.Source. Transactions appended to it are
// indexed both per-stream (for ReplayStreamRange) and in global arrival
// order (for Replay/ReplayFrom), and fanned out to live subscribers. A
// Store with a non-nil journal also durably persists every append, the
// same split the teacher keeps between its in-memory Stream log and its
// on-disk replay Writer.
type Store struct {
	mu          sync.Mutex
	byStream    map[eventsource.ID][]eventsource.Transaction
	order       []eventsource.Transaction
	subscribers map[uint64]*subscriberEntry
	nextSubID   uint64

	journal *Journal
}

type subscriberEntry struct {
	filter func(eventsource.CAT) bool
	sink   func(eventsource.Transaction)
}

// subscription implements eventsource.Subscription for a live Store feed.
type subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subscribers, s.id)
		s.store.mu.Unlock()
	})
}

// New constructs an empty Store. If journal is non-nil, every Append is
// durably persisted through it before subscribers are notified.
func New(journal *Journal) *Store {
	return &Store{
		byStream:    make(map[eventsource.ID][]eventsource.Transaction),
		subscribers: make(map[uint64]*subscriberEntry),
		journal:     journal,
	}
}

// Append records t as both a durable event (if a journal is configured)
// and a live one, delivering it to every matching subscriber. Append does
// not itself enforce per-stream revision order — that is the ordered
// delivery pipeline's job; Store is deliberately a dumb, append-only log.
func (st *Store) Append(t eventsource.Transaction) error {
	if st.journal != nil {
		if err := st.journal.Write(t); err != nil {
			return fmt.Errorf("memory: journal append: %w", err)
		}
	}

	st.mu.Lock()
	st.byStream[t.StreamID] = append(st.byStream[t.StreamID], t)
	st.order = append(st.order, t)
	var deliveries []func(eventsource.Transaction)
	for _, sub := range st.subscribers {
		if sub.filter == nil || sub.filter(t.Category) {
			deliveries = append(deliveries, sub.sink)
		}
	}
	st.mu.Unlock()

	for _, sink := range deliveries {
		sink(t)
	}
	return nil
}

// Subscribe implements eventsource.Source.
func (st *Store) Subscribe(ctx context.Context, filter func(eventsource.CAT) bool, sink func(eventsource.Transaction)) (eventsource.Subscription, error) {
	st.mu.Lock()
	id := st.nextSubID
	st.nextSubID++
	st.subscribers[id] = &subscriberEntry{filter: filter, sink: sink}
	st.mu.Unlock()

	sub := &subscription{store: st, id: id}
	go func() {
		<-ctx.Done()
		sub.Cancel()
	}()
	return sub, nil
}

// Replay implements eventsource.Source, visiting transactions in
// (timestamp, streamId, revision) order restricted to categories
// (nil/empty means every category).
func (st *Store) Replay(ctx context.Context, categories []eventsource.CAT, handler func(eventsource.Transaction) error) error {
	return st.replayFrom(ctx, nil, categories, handler)
}

// ReplayFrom implements eventsource.Source.
func (st *Store) ReplayFrom(ctx context.Context, since int64, categories []eventsource.CAT, handler func(eventsource.Transaction) error) error {
	return st.replayFrom(ctx, &since, categories, handler)
}

func (st *Store) replayFrom(ctx context.Context, since *int64, categories []eventsource.CAT, handler func(eventsource.Transaction) error) error {
	allow := categorySet(categories)

	st.mu.Lock()
	snapshot := append([]eventsource.Transaction(nil), st.order...)
	st.mu.Unlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		if snapshot[i].Timestamp.Equal(snapshot[j].Timestamp) {
			if snapshot[i].StreamID == snapshot[j].StreamID {
				return snapshot[i].Revision < snapshot[j].Revision
			}
			return snapshot[i].StreamID < snapshot[j].StreamID
		}
		return snapshot[i].Timestamp.Before(snapshot[j].Timestamp)
	})

	for _, t := range snapshot {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if since != nil && t.TimestampMillis() < *since {
			continue
		}
		if allow != nil && !allow[t.Category] {
			continue
		}
		if err := handler(t); err != nil {
			return err
		}
	}
	return nil
}

// ReplayStreamRange implements eventsource.Source, visiting a single
// stream's transactions with revision in [lo, hi) in revision order.
func (st *Store) ReplayStreamRange(ctx context.Context, id eventsource.ID, lo, hi int32, handler func(eventsource.Transaction) error) error {
	st.mu.Lock()
	txns := append([]eventsource.Transaction(nil), st.byStream[id]...)
	st.mu.Unlock()

	sort.Slice(txns, func(i, j int) bool { return txns[i].Revision < txns[j].Revision })

	for _, t := range txns {
		if t.Revision < lo || t.Revision >= hi {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := handler(t); err != nil {
			return err
		}
	}
	return nil
}

func categorySet(categories []eventsource.CAT) map[eventsource.CAT]bool {
	if len(categories) == 0 {
		return nil
	}
	set := make(map[eventsource.CAT]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return set
}
