// Package eventstream is the architectural core of the ordered delivery
// pipeline: it wires the per-stream sequencer (internal/sequencer), the
// live handler chain (internal/handler) and the hash-partitioned executor
// (internal/executor) around an eventsource.Source to provide the two
// operations callers actually need — a bounded replay pipeline (C5) and
// a race-safe replay-to-live cutover (C6).
package eventstream

import (
	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/executor"
	"github.com/cschjolb/scuff/internal/handler"
	"github.com/cschjolb/scuff/internal/logging"
)

// EventStream is a single Resume-able pipeline bound to one Source. It owns
// the partitioned executor and the FailedStreamTable every stream in this
// pipeline shares, so construct one EventStream per logical consumer
// group, not one per call to Resume.
type EventStream struct {
	source   eventsource.Source
	cfg      Config
	executor *executor.Executor
	table    *handler.FailedStreamTable
	pending  *pendingReplayTable
	monitor  *AwaitMonitor
	log      *logging.Logger
}

// New builds an EventStream reading from source. log may be nil, in which
// case a discarding test logger is used.
func New(source eventsource.Source, cfg Config, log *logging.Logger) *EventStream {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.NewTestLogger()
	}
	return &EventStream{
		source:   source,
		cfg:      cfg,
		executor: executor.New(cfg.Workers, cfg.ExecutorQueueDepth),
		table:    handler.NewFailedStreamTable(),
		pending:  newPendingReplayTable(),
		monitor:  NewAwaitMonitor(),
		log:      log.With(logging.String("component", "eventstream")),
	}
}

// Close stops the partitioned executor, waiting for in-flight deliveries to
// drain. No further Resume calls should be made afterwards.
func (s *EventStream) Close() {
	s.executor.Stop()
}

// FailedStreams returns a snapshot of every stream this EventStream has
// given up on, across every Resume call made against it.
func (s *EventStream) FailedStreams() map[eventsource.ID]error {
	return s.table.Snapshot()
}

// AwaitStats reports replay-handle await timing, useful for alerting on a
// consumer drifting towards ConsumerHangDetected before it actually hangs.
func (s *EventStream) AwaitStats() AwaitSnapshot {
	return s.monitor.Snapshot()
}
