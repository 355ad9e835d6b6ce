package eventstream

import (
	"sync"

	"github.com/cschjolb/scuff/internal/eventsource"
)

// pendingReplayTable is the PendingReplayTable of §3/§4.6: one cancellable
// scheduled gap-replay task per stream, created on first gap and cleared
// on gap closure or cancellation.
type pendingReplayTable struct {
	mu    sync.Mutex
	tasks map[eventsource.ID]func()
}

func newPendingReplayTable() *pendingReplayTable {
	return &pendingReplayTable{tasks: make(map[eventsource.ID]func())}
}

// putIfAbsent registers cancel for id and reports true if it was the first
// registration. If an entry already exists, the caller's new task must be
// cancelled immediately and dropped — the existing scheduled replay wins.
func (p *pendingReplayTable) putIfAbsent(id eventsource.ID, cancel func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tasks[id]; exists {
		return false
	}
	p.tasks[id] = cancel
	return true
}

// remove clears id's entry without invoking its cancel func, used once a
// scheduled task has fired on its own.
func (p *pendingReplayTable) remove(id eventsource.ID) {
	p.mu.Lock()
	delete(p.tasks, id)
	p.mu.Unlock()
}

// cancelAndRemove cancels id's pending task (if any) and removes it. Used
// on gapClosed.
func (p *pendingReplayTable) cancelAndRemove(id eventsource.ID) {
	p.mu.Lock()
	cancel, exists := p.tasks[id]
	delete(p.tasks, id)
	p.mu.Unlock()
	if exists {
		cancel()
	}
}
