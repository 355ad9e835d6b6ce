package eventstream

import (
	"context"
	"sync"
	"time"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/eventsource/memory"
)

func mkTxn(id eventsource.ID, cat eventsource.CAT, revision int32, at time.Time) eventsource.Transaction {
	return eventsource.Transaction{
		Timestamp: at,
		Category:  cat,
		StreamID:  id,
		Revision:  revision,
		Events:    []eventsource.Event{{Type: "created", Payload: []byte("{}")}},
	}
}

func newTestSource() *memory.Store {
	return memory.New(nil)
}

// fakeConsumer is a DurableConsumer/LiveConsumer wired to itself: it tracks
// the next expected revision per stream purely from what it has already
// consumed, the same bookkeeping a real consumer's own durable store would
// provide.
type fakeConsumer struct {
	mu         sync.Mutex
	categories []eventsource.CAT
	lastTs     *int64
	expected   map[eventsource.ID]int32
	replayed   []eventsource.Transaction
	live       []eventsource.Transaction

	failReplayRevision map[eventsource.ID]int32
}

func newFakeConsumer(categories ...eventsource.CAT) *fakeConsumer {
	return &fakeConsumer{
		categories: categories,
		expected:   make(map[eventsource.ID]int32),
	}
}

func (c *fakeConsumer) LastTimestamp() *int64             { return c.lastTs }
func (c *fakeConsumer) CategoryFilter() []eventsource.CAT { return c.categories }

func (c *fakeConsumer) ConsumeReplay(_ context.Context, t eventsource.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rev, ok := c.failReplayRevision[t.StreamID]; ok && rev == t.Revision {
		return errSentinel
	}
	c.replayed = append(c.replayed, t)
	c.expected[t.StreamID] = t.Revision + 1
	ms := t.TimestampMillis()
	if c.lastTs == nil || ms > *c.lastTs {
		c.lastTs = &ms
	}
	return nil
}

func (c *fakeConsumer) OnLive() eventsource.LiveConsumer { return c }

func (c *fakeConsumer) ExpectedRevision(id eventsource.ID) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rev, ok := c.expected[id]; ok {
		return rev
	}
	return 0
}

func (c *fakeConsumer) ConsumeLive(_ context.Context, t eventsource.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = append(c.live, t)
	c.expected[t.StreamID] = t.Revision + 1
	return nil
}

func (c *fakeConsumer) snapshotLive() []eventsource.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]eventsource.Transaction, len(c.live))
	copy(out, c.live)
	return out
}

func (c *fakeConsumer) snapshotReplayed() []eventsource.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]eventsource.Transaction, len(c.replayed))
	copy(out, c.replayed)
	return out
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errSentinel = sentinelError("replay consumer rejected transaction")
