package httpapi

import (
	"sync"
	"time"
)

// window is a sliding count of event timestamps bounded to a duration.
type window struct {
	limit  int
	span   time.Duration
	events []time.Time
}

func (w *window) allow(now time.Time) bool {
	cutoff := now.Add(-w.span)
	kept := w.events[:0]
	for _, ts := range w.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.events = kept
	if len(w.events) >= w.limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// SlidingWindowLimiter enforces a maximum number of events per window,
// tracked independently per key. Subscribers key by the category set (or
// stream ID) a request concerns, so a reconnect storm against one noisy
// eventsource.CAT cannot exhaust the budget a quiet category would
// otherwise get on its own.
type SlidingWindowLimiter struct {
	span  time.Duration
	limit int
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewSlidingWindowLimiter constructs a limiter allowing up to limit events
// per window, independently for every key passed to AllowKey.
func NewSlidingWindowLimiter(span time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{
		span:    span,
		limit:   limit,
		now:     timeSource,
		windows: make(map[string]*window),
	}
}

// Allow reports whether an unkeyed caller may proceed, i.e. one shared
// budget across every request. Equivalent to AllowKey("").
func (l *SlidingWindowLimiter) Allow() bool {
	return l.AllowKey("")
}

// AllowKey reports whether a caller scoped to key may proceed under its own
// sliding window, independent of every other key's budget.
func (l *SlidingWindowLimiter) AllowKey(key string) bool {
	if l == nil || l.limit <= 0 || l.span <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil {
		w = &window{limit: l.limit, span: l.span}
		l.windows[key] = w
	}
	return w.allow(l.now())
}
