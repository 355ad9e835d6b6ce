package main

import (
	"context"
	"sync"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/logging"
)

// loggingConsumer is a minimal DurableConsumer/LiveConsumer that logs every
// transaction it receives in order, standing in for a real downstream
// projection. It starts with no replay history, so Resume always replays
// the full journal before cutting over to live delivery.
type loggingConsumer struct {
	log *logging.Logger

	mu       sync.Mutex
	expected map[eventsource.ID]int32
}

func newLoggingConsumer(log *logging.Logger) *loggingConsumer {
	return &loggingConsumer{
		log:      log.With(logging.String("component", "consumer")),
		expected: make(map[eventsource.ID]int32),
	}
}

func (c *loggingConsumer) LastTimestamp() *int64 { return nil }

func (c *loggingConsumer) CategoryFilter() []eventsource.CAT { return nil }

func (c *loggingConsumer) ConsumeReplay(ctx context.Context, t eventsource.Transaction) error {
	c.mu.Lock()
	c.expected[t.StreamID] = t.Revision + 1
	c.mu.Unlock()
	c.log.Debug("replayed transaction",
		logging.StreamID(t.StreamID),
		logging.Revision(t.Revision))
	return nil
}

func (c *loggingConsumer) OnLive() eventsource.LiveConsumer { return c }

func (c *loggingConsumer) ExpectedRevision(id eventsource.ID) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expected[id]
}

func (c *loggingConsumer) ConsumeLive(ctx context.Context, t eventsource.Transaction) error {
	c.mu.Lock()
	c.expected[t.StreamID] = t.Revision + 1
	c.mu.Unlock()
	c.log.Info("live transaction",
		logging.StreamID(t.StreamID),
		logging.Revision(t.Revision))
	return nil
}
