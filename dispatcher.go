package neurobus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/TIVerse/neurobus/internal/metrics"
	"github.com/TIVerse/neurobus/pkg/cmap"
)

// DispatchState models the state machine of §4.C: scheduled -> matching ->
// filtering -> running -> {completed, timed_out, partially_failed}.
type DispatchState int

const (
	StateScheduled DispatchState = iota
	StateMatching
	StateFiltering
	StateRunning
	StateCompleted
	StateTimedOut
	StatePartiallyFailed
)

func (s DispatchState) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateMatching:
		return "matching"
	case StateFiltering:
		return "filtering"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StatePartiallyFailed:
		return "partially_failed"
	default:
		return "unknown"
	}
}

// HandlerOutcome records the per-handler result of one dispatch.
type HandlerOutcome struct {
	SubscriptionID SubscriptionID
	Err            error
	TimedOut       bool
	Duration       time.Duration
}

// DispatchResult is the terminal record of a single publish's fan-out.
type DispatchResult struct {
	Event    *Event
	State    DispatchState
	Outcomes []HandlerOutcome
}

// FailedCount returns the number of per-handler outcomes that recorded an
// error (including timeouts).
func (r *DispatchResult) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// FailureReporter is the error-reporting seam of §7: HandlerFailure and
// SeamFailure outcomes are surfaced here (log/metric/optional callback),
// never re-raised to the publisher.
type FailureReporter interface {
	ReportHandlerFailure(subID SubscriptionID, e *Event, err error)
	// ReportSeamFailure records an optional-subsystem failure (context
	// enrichment, temporal log, cluster relay, semantic routing) that was
	// swallowed rather than allowed to block or fail the publish.
	ReportSeamFailure(seam string, e *Event, err error)
}

// noopFailureReporter discards every report. It is the Dispatcher's
// default so FailureReporter is always non-nil.
type noopFailureReporter struct{}

func (noopFailureReporter) ReportHandlerFailure(SubscriptionID, *Event, error) {}
func (noopFailureReporter) ReportSeamFailure(string, *Event, error)            {}

// DispatcherConfig configures one Dispatcher instance; the fields mirror
// the recognized options table in §6.
type DispatcherConfig struct {
	// EnableParallelDispatch is the default "parallel" flag for dispatches
	// (§4.C item 2).
	EnableParallelDispatch bool
	// MaxConcurrentHandlers bounds how many handlers run in parallel across
	// one dispatch (§4.C item 5). Zero means unbounded.
	MaxConcurrentHandlers int64
	// HandlerTimeout bounds a single handler invocation. Zero means
	// unbounded.
	HandlerTimeout time.Duration
	// DispatchTimeout bounds the overall dispatch. Zero means unbounded.
	DispatchTimeout time.Duration
	// EnableErrorIsolation, when false, makes the first handler failure
	// abort the remaining handlers (§7: testing only).
	EnableErrorIsolation bool
	// Reporter receives HandlerFailure reports. Defaults to a no-op.
	Reporter FailureReporter
	// Metrics receives panic counts from invoke. Defaults to a no-op.
	Metrics metrics.Collector
}

// Dispatcher invokes matched subscriptions for one event with explicit
// ordering, isolation, filtering, and priority guarantees (§4.C).
type Dispatcher struct {
	cfg      DispatcherConfig
	sem      *semaphore.Weighted
	reporter FailureReporter
	metrics  metrics.Collector
	outcomes *cmap.CMap[int64] // "completed" | "failed" | "timed_out" -> count
}

// NewDispatcher builds a Dispatcher from cfg.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		reporter: cfg.Reporter,
		metrics:  cfg.Metrics,
		outcomes: cmap.New[int64](),
	}
	if d.reporter == nil {
		d.reporter = noopFailureReporter{}
	}
	if d.metrics == nil {
		d.metrics = metrics.NoopCollector{}
	}
	if cfg.MaxConcurrentHandlers > 0 {
		d.sem = semaphore.NewWeighted(cfg.MaxConcurrentHandlers)
	}
	return d
}

// Stats returns a snapshot of dispatch outcome counters.
func (d *Dispatcher) Stats() map[string]int64 {
	return d.outcomes.Snapshot()
}

// Dispatch runs the filter → running stages of §4.C for matched (already
// priority-sorted by the registry) against e, honoring parallel. It blocks
// until the dispatch reaches a terminal state: all handlers completed, or
// DispatchTimeout elapsed (in which case still-running handlers are left to
// finish or be forcibly abandoned — cancellation is cooperative, per §5).
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event, matched []*Subscription, parallel bool) *DispatchResult {
	result := &DispatchResult{Event: e, State: StateFiltering}

	survivors := make([]*Subscription, 0, len(matched))
	for _, s := range matched {
		if s.passesFilter(e) {
			survivors = append(survivors, s)
		}
	}

	result.State = StateRunning

	dctx := ctx
	if d.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, d.cfg.DispatchTimeout)
		defer cancel()
	}

	var mu sync.Mutex
	var outcomes []HandlerOutcome
	record := func(o HandlerOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
		if o.Err != nil {
			d.reporter.ReportHandlerFailure(o.SubscriptionID, e, o.Err)
		}
		kind := "completed"
		switch {
		case o.TimedOut:
			kind = "timed_out"
		case o.Err != nil:
			kind = "failed"
		}
		cmap.Add(d.outcomes, kind, 1)
	}

	done := make(chan struct{})
	go func() {
		if parallel {
			d.runParallel(dctx, e, survivors, record)
		} else {
			d.runSequential(dctx, e, survivors, record)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-dctx.Done():
		// dispatch_timeout exceeded, or the parent ctx (e.g. Bus.Stop's
		// drain deadline) was canceled. Still-running handlers receive the
		// cancellation signal via dctx but are not waited on further —
		// cancellation is cooperative (§5).
	}

	mu.Lock()
	result.Outcomes = append([]HandlerOutcome(nil), outcomes...)
	mu.Unlock()

	switch {
	case dctx.Err() != nil && len(result.Outcomes) < len(survivors):
		result.State = StateTimedOut
	case result.FailedCount() > 0:
		result.State = StatePartiallyFailed
	default:
		result.State = StateCompleted
	}

	return result
}

// runParallel starts surviving handlers concurrently, in priority order,
// bounded by d.sem. semaphore.Weighted.Acquire serves callers in FIFO
// order, so acquiring synchronously before each goroutine launch preserves
// the priority-ordered "start" contract even under contention (§4.C item 2,
// §5).
func (d *Dispatcher) runParallel(ctx context.Context, e *Event, subs []*Subscription, record func(HandlerOutcome)) {
	var wg sync.WaitGroup
	var aborted atomic.Bool

	for _, s := range subs {
		if !d.cfg.EnableErrorIsolation && aborted.Load() {
			break
		}

		if d.sem != nil {
			if err := d.sem.Acquire(ctx, 1); err != nil {
				// ctx already canceled/expired: stop starting new handlers.
				return
			}
		}

		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			if d.sem != nil {
				defer d.sem.Release(1)
			}
			outcome := d.invoke(ctx, s, e)
			record(outcome)
			if outcome.Err != nil {
				aborted.Store(true)
			}
		}(s)
	}

	wg.Wait()
}

// runSequential runs surviving handlers one at a time, in priority order;
// each must complete (or time out) before the next starts (§4.C item 2).
func (d *Dispatcher) runSequential(ctx context.Context, e *Event, subs []*Subscription, record func(HandlerOutcome)) {
	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}

		outcome := d.invoke(ctx, s, e)
		record(outcome)

		if !d.cfg.EnableErrorIsolation && outcome.Err != nil {
			return
		}
	}
}

// invoke runs a single handler under HandlerTimeout, isolating panics and
// errors per §4.C item 3. The matcher itself never suspends; only this
// call site does.
func (d *Dispatcher) invoke(ctx context.Context, s *Subscription, e *Event) HandlerOutcome {
	hctx := ctx
	var cancel context.CancelFunc
	if d.cfg.HandlerTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, d.cfg.HandlerTimeout)
		defer cancel()
	}

	start := time.Now()
	resultCh := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.metrics.RecordPanic(strconv.FormatUint(uint64(s.id), 10))
				resultCh <- fmt.Errorf("%w: handler panic: %v", ErrHandlerFailure, r)
			}
		}()
		resultCh <- s.handler(hctx, e)
	}()

	select {
	case err := <-resultCh:
		if err != nil {
			return HandlerOutcome{SubscriptionID: s.id, Err: fmt.Errorf("%w: %v", ErrHandlerFailure, err), Duration: time.Since(start)}
		}
		return HandlerOutcome{SubscriptionID: s.id, Duration: time.Since(start)}
	case <-hctx.Done():
		return HandlerOutcome{
			SubscriptionID: s.id,
			Err:            fmt.Errorf("%w", ErrHandlerTimeout),
			TimedOut:       true,
			Duration:       time.Since(start),
		}
	}
}
