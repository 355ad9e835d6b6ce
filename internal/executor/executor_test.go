package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSameKeySerialized(t *testing.T) {
	e := New(4, 8)
	defer e.Stop()

	var running int32
	var maxConcurrent int32
	release := make(chan struct{})

	track := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil
	}

	var handles []*Handle
	for i := 0; i < 4; i++ {
		h, err := e.Submit("same-stream", track)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		handles = append(handles, h)
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&running); got != 1 {
		t.Fatalf("expected exactly 1 task running for the same key, got %d", got)
	}
	close(release)
	for _, h := range handles {
		if err := h.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
}

func TestDeterministicPartition(t *testing.T) {
	e := New(8, 1)
	defer e.Stop()

	for _, key := range []string{"alpha", "beta", "gamma"} {
		first := e.Partition(key)
		for i := 0; i < 5; i++ {
			if got := e.Partition(key); got != first {
				t.Fatalf("partition for %q was not stable: %d vs %d", key, first, got)
			}
		}
	}
}

func TestOrderingPreservedPerKey(t *testing.T) {
	e := New(4, 16)
	defer e.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		if _, err := e.Submit("ordered-stream", func(context.Context) error {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("expected in-order execution, got %v", order)
		}
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	e := New(1, 1)
	e.Stop()
	if _, err := e.Submit("x", func(context.Context) error { return nil }); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
