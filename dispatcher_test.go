package neurobus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func subWith(id SubscriptionID, priority int, filter Filter, h Handler) *Subscription {
	return &Subscription{id: id, priority: priority, filter: filter, handler: h, mode: ModeLiteralOrWildcard}
}

func TestDispatcherFilterGate(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EnableParallelDispatch: true, EnableErrorIsolation: true})

	var filteredCalls, openCalls int32
	filtered := subWith(1, 0, func(e *Event) bool { return e.Data()["urgent"] == true }, func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&filteredCalls, 1)
		return nil
	})
	open := subWith(2, 0, nil, func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&openCalls, 1)
		return nil
	})

	subs := []*Subscription{filtered, open}

	e1 := MustNew("message", WithData(map[string]any{"urgent": true}))
	e2 := MustNew("message", WithData(map[string]any{"urgent": false}))

	d.Dispatch(context.Background(), e1, subs, true)
	d.Dispatch(context.Background(), e2, subs, true)

	if filteredCalls != 1 {
		t.Errorf("filtered handler called %d times, want 1", filteredCalls)
	}
	if openCalls != 2 {
		t.Errorf("unfiltered handler called %d times, want 2", openCalls)
	}
}

func TestDispatcherPriorityOrderSequential(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EnableParallelDispatch: false, EnableErrorIsolation: true})

	var mu sync.Mutex
	var order []int

	mk := func(p int) *Subscription {
		return subWith(SubscriptionID(p), p, nil, func(ctx context.Context, e *Event) error {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			return nil
		})
	}

	subs := []*Subscription{mk(1), mk(50), mk(100)}
	sortByPriorityStable(subs)

	e := MustNew("task")
	d.Dispatch(context.Background(), e, subs, false)

	want := []int{100, 50, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, w := range want {
		if order[i] != w {
			t.Errorf("position %d: got %d, want %d", i, order[i], w)
		}
	}
}

func TestDispatcherErrorIsolation(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EnableParallelDispatch: true, EnableErrorIsolation: true})

	var calls int32
	failing := subWith(1, 0, nil, func(ctx context.Context, e *Event) error {
		return errors.New("boom")
	})
	ok1 := subWith(2, 0, nil, func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	ok2 := subWith(3, 0, nil, func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	result := d.Dispatch(context.Background(), MustNew("task"), []*Subscription{failing, ok1, ok2}, true)

	if calls != 2 {
		t.Errorf("sibling handlers invoked %d times, want 2", calls)
	}
	if result.State != StatePartiallyFailed {
		t.Errorf("state = %v, want partially_failed", result.State)
	}
	if result.FailedCount() != 1 {
		t.Errorf("FailedCount() = %d, want 1", result.FailedCount())
	}
}

func TestDispatcherParallelStartIsConcurrent(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EnableParallelDispatch: true, EnableErrorIsolation: true})

	mk := func(id SubscriptionID) *Subscription {
		return subWith(id, 0, nil, func(ctx context.Context, e *Event) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	d.Dispatch(context.Background(), MustNew("task"), []*Subscription{mk(1), mk(2)}, true)
	elapsed := time.Since(start)

	if elapsed >= 300*time.Millisecond {
		t.Errorf("elapsed = %v, want < 300ms (handlers should overlap)", elapsed)
	}
}

func TestDispatcherHandlerTimeout(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EnableParallelDispatch: true, EnableErrorIsolation: true, HandlerTimeout: 20 * time.Millisecond})

	slow := subWith(1, 0, nil, func(ctx context.Context, e *Event) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	result := d.Dispatch(context.Background(), MustNew("task"), []*Subscription{slow}, true)
	if len(result.Outcomes) != 1 || !result.Outcomes[0].TimedOut {
		t.Fatalf("expected a timed-out outcome, got %+v", result.Outcomes)
	}
}

func TestDispatcherMaxConcurrentHandlers(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EnableParallelDispatch: true, EnableErrorIsolation: true, MaxConcurrentHandlers: 1})

	var concurrent int32
	var maxObserved int32
	mk := func(id SubscriptionID) *Subscription {
		return subWith(id, 0, nil, func(ctx context.Context, e *Event) error {
			cur := atomic.AddInt32(&concurrent, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return nil
		})
	}

	d.Dispatch(context.Background(), MustNew("task"), []*Subscription{mk(1), mk(2), mk(3)}, true)

	if maxObserved > 1 {
		t.Errorf("observed %d concurrent handlers, want at most 1", maxObserved)
	}
}
