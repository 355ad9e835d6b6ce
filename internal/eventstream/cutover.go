package eventstream

import (
	"context"
	"time"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/handler"
	"github.com/cschjolb/scuff/internal/logging"
	"github.com/cschjolb/scuff/internal/sequencer"
)

// Resume is C6: it replays consumer up to the present, then bridges the
// gap between the end of that replay and the live subscription it opens,
// so no transaction committed during the switchover is ever missed or
// delivered twice.
//
// The steps, in order: pick a replay source from consumer.LastTimestamp();
// run the replay pipeline; refuse to go live if any stream failed during
// replay; build the live handler chain around consumer.OnLive(); subscribe
// to the live feed; and finally bridge-replay from just before the point
// replay left off (or, if replay saw nothing at all, from just before this
// call started) through that same live chain. Bridging after the
// subscription is what closes the race: any transaction published between
// the end of replay and the subscription taking effect arrives twice, once
// live and once from the bridge, and the live chain's sequencer drops the
// second as a duplicate.
func (s *EventStream) Resume(ctx context.Context, consumer eventsource.DurableConsumer) (eventsource.Subscription, error) {
	startingMs := time.Now().UnixMilli()
	categories := consumer.CategoryFilter()
	skewMs := s.cfg.MaxClockSkew.Milliseconds()

	drive := s.replaySource(ctx, consumer.LastTimestamp(), categories, skewMs)
	lastReplayTs, err := runReplayPipeline(ctx, s.cfg, s.executor, s.table, s.monitor, drive, consumer.ConsumeReplay)
	if err != nil {
		return nil, err
	}
	if s.table.Len() > 0 {
		return nil, &eventsource.StreamsReplayFailure{Failed: s.table.Snapshot()}
	}

	live := consumer.OnLive()
	gaps := &gapScheduler{stream: s}
	chain := handler.NewLiveChain(handler.LiveChainConfig{
		Executor:         s.executor,
		Table:            s.table,
		Consume:          live.ConsumeLive,
		ExpectedRevision: live.ExpectedRevision,
		BufferLimit:      s.cfg.SequencerBufferLimit,
		Gaps:             gaps,
		OnDuplicate:      s.logDuplicate,
		ReportFailure:    s.logFailure,
	})
	gaps.chain = chain

	sub, err := s.source.Subscribe(ctx, categoryFilter(categories), func(t eventsource.Transaction) {
		if err := chain(ctx, t); err != nil {
			s.log.Warn("live delivery rejected", logging.StreamID(t.StreamID), logging.Revision(t.Revision), logging.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	bridgeFrom := startingMs
	if lastReplayTs != nil {
		bridgeFrom = *lastReplayTs
	}
	bridgeFrom -= skewMs

	if err := s.source.ReplayFrom(ctx, bridgeFrom, categories, func(t eventsource.Transaction) error {
		return chain(ctx, t)
	}); err != nil {
		sub.Cancel()
		return nil, err
	}

	return sub, nil
}

// replaySource picks a full Replay or a ReplayFrom(since - maxClockSkew)
// depending on whether consumer has a durable checkpoint.
func (s *EventStream) replaySource(ctx context.Context, since *int64, categories []eventsource.CAT, skewMs int64) func(func(eventsource.Transaction) error) error {
	if since == nil {
		return func(h func(eventsource.Transaction) error) error {
			return s.source.Replay(ctx, categories, h)
		}
	}
	from := *since - skewMs
	return func(h func(eventsource.Transaction) error) error {
		return s.source.ReplayFrom(ctx, from, categories, h)
	}
}

func (s *EventStream) logFailure(id eventsource.ID, err error) {
	s.log.Warn("stream marked failed", logging.StreamID(id), logging.Error(err))
}

func (s *EventStream) logDuplicate(id eventsource.ID, kind sequencer.DuplicateKind, revision int32) {
	s.log.Debug("duplicate transaction dropped",
		logging.StreamID(id),
		logging.Revision(revision),
		logging.String("kind", kind.String()),
	)
}

// categoryFilter builds a Source.Subscribe filter from a DurableConsumer's
// CategoryFilter result; an empty set passes every category.
func categoryFilter(categories []eventsource.CAT) func(eventsource.CAT) bool {
	if len(categories) == 0 {
		return func(eventsource.CAT) bool { return true }
	}
	allow := make(map[eventsource.CAT]bool, len(categories))
	for _, c := range categories {
		allow[c] = true
	}
	return func(c eventsource.CAT) bool { return allow[c] }
}

// gapScheduler implements handler.GapObserver, turning a live sequencer's
// gap notifications into the scheduled range-replay of §4.6: a gap waits
// cfg.GapReplayDelay in case the missing revisions arrive on their own
// before spending a journal scan on them, and a gap that closes early
// cancels its scheduled replay outright.
type gapScheduler struct {
	stream *EventStream
	chain  func(ctx context.Context, t eventsource.Transaction) error
}

func (g *gapScheduler) GapDetected(id eventsource.ID, expected, actual int32) {
	taskCtx, cancel := context.WithCancel(context.Background())
	if !g.stream.pending.putIfAbsent(id, cancel) {
		// A replay is already scheduled for id; the existing task wins and
		// this later one is dropped.
		cancel()
		return
	}
	go g.run(taskCtx, id, expected, actual)
}

func (g *gapScheduler) GapClosed(id eventsource.ID) {
	g.stream.pending.cancelAndRemove(id)
}

func (g *gapScheduler) run(taskCtx context.Context, id eventsource.ID, lo, hi int32) {
	select {
	case <-taskCtx.Done():
		return
	case <-time.After(g.stream.cfg.GapReplayDelay):
	}
	g.stream.pending.remove(id)

	err := g.stream.source.ReplayStreamRange(taskCtx, id, lo, hi, func(t eventsource.Transaction) error {
		return g.chain(taskCtx, t)
	})
	if err != nil {
		g.stream.log.Warn("scheduled gap replay failed",
			logging.StreamID(id),
			logging.Int64("lo", int64(lo)),
			logging.Int64("hi", int64(hi)),
			logging.Error(err),
		)
	}
}
