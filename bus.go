package neurobus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TIVerse/neurobus/internal/metrics"
	"github.com/TIVerse/neurobus/internal/obslog"
)

// ContextEnricher is the optional hierarchical-scope seam of §4.E. Enrich
// returns a new Event (never mutates e) with context merged in from
// whatever scopes the implementation tracks (global, session, user, ...).
// A nil return with a nil error leaves e unchanged.
type ContextEnricher interface {
	Enrich(ctx context.Context, e *Event) (*Event, error)
}

// TemporalLog is the optional event-history seam of §4.F. Append records e
// for later replay/range queries; it never blocks publish beyond Append's
// own call.
type TemporalLog interface {
	Append(ctx context.Context, e *Event) error
}

// ClusterRelay is the optional cross-process fan-out seam of §4.F.
// Broadcast ships e to peer buses; implementations are responsible for
// loop prevention (e.g. tagging e.Metadata()["_neurobus_origin"]).
type ClusterRelay interface {
	Broadcast(ctx context.Context, e *Event) error
}

// SemanticMatch pairs a ModeSemantic subscription with its relevance score.
type SemanticMatch struct {
	Subscription *Subscription
	Score        float64
}

// SemanticRouter is the optional content-based routing seam of §4.G. Route
// evaluates e against candidates (every live ModeSemantic subscription) and
// returns those clearing their own threshold.
type SemanticRouter interface {
	Route(ctx context.Context, e *Event, candidates []*Subscription) ([]SemanticMatch, error)
}

// ReasoningHook is the optional pattern-keyed model bridge of §4.G. Handle
// runs fire-and-forget after an event is scheduled for dispatch; it must
// never block or influence delivery to ordinary handlers.
type ReasoningHook interface {
	Handle(ctx context.Context, e *Event)
}

type nopContextEnricher struct{}

func (nopContextEnricher) Enrich(context.Context, *Event) (*Event, error) { return nil, nil }

type nopTemporalLog struct{}

func (nopTemporalLog) Append(context.Context, *Event) error { return nil }

type nopClusterRelay struct{}

func (nopClusterRelay) Broadcast(context.Context, *Event) error { return nil }

type nopSemanticRouter struct{}

func (nopSemanticRouter) Route(context.Context, *Event, []*Subscription) ([]SemanticMatch, error) {
	return nil, nil
}

type nopReasoningHook struct{}

func (nopReasoningHook) Handle(context.Context, *Event) {}

// busState is the lifecycle of §4.D: not_started -> started -> stopped.
// Once stopped, a Bus never restarts; build a new one instead.
type busState int32

const (
	busNotStarted busState = iota
	busStarted
	busStopped
)

// Config configures a Bus. The zero value is valid but disables every
// optional seam and leaves dispatch unbounded; see DefaultConfig for a
// more realistic starting point.
type Config struct {
	MaxSubscriptions       int
	DispatchTimeout        time.Duration
	HandlerTimeout         time.Duration
	EnableErrorIsolation   bool
	EnableParallelDispatch bool
	MaxConcurrentHandlers  int64

	ContextEnricher ContextEnricher
	TemporalLog     TemporalLog
	ClusterRelay    ClusterRelay
	SemanticRouter  SemanticRouter
	ReasoningHook   ReasoningHook
	Reporter        FailureReporter

	// Metrics receives publish/process counters and latency histograms.
	// Defaults to a no-op collector; pass metrics.NewPrometheusCollector
	// for a scrapeable one.
	Metrics metrics.Collector
}

// DefaultConfig returns the recognized-options defaults of §6: error
// isolation and parallel dispatch on, no bound on concurrency or timeouts,
// every seam a no-op.
func DefaultConfig() Config {
	return Config{
		EnableErrorIsolation:   true,
		EnableParallelDispatch: true,
	}
}

// DispatchHandle is returned by Publish. Wait blocks until the dispatch
// that handle represents reaches a terminal state.
type DispatchHandle struct {
	done   chan struct{}
	result *DispatchResult
}

// Wait blocks until dispatch completes and returns its terminal result.
func (h *DispatchHandle) Wait() *DispatchResult {
	<-h.done
	return h.result
}

// BusStats aggregates registry and dispatch counters for get_stats.
type BusStats struct {
	Registry RegistryStats
	Dispatch map[string]int64
}

// Bus is the façade of §4.D: it owns the registry and dispatcher, wires the
// optional seams, and exposes the lifecycle-gated publish/subscribe API.
type Bus struct {
	state atomic.Int32

	registry   *Registry
	dispatcher *Dispatcher

	enricher  ContextEnricher
	temporal  TemporalLog
	relay     ClusterRelay
	mu        sync.RWMutex // guards semantic, swapped in by EnableSemantic
	semantic  SemanticRouter
	reasoning ReasoningHook
	reporter  FailureReporter
	metrics   metrics.Collector

	cfg Config

	wg          sync.WaitGroup // in-flight Publish goroutines, drained by Stop
	inFlight    atomic.Int64   // mirrors wg's count for the queue-size gauge
	rootCtx     context.Context
	rootCancel  context.CancelFunc
}

// New builds a Bus from cfg. It must be started with Start before Publish
// or Subscribe will accept calls.
func New(cfg Config) *Bus {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = noopFailureReporter{}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NoopCollector{}
	}

	b := &Bus{
		registry: NewRegistry(cfg.MaxSubscriptions),
		dispatcher: NewDispatcher(DispatcherConfig{
			EnableParallelDispatch: cfg.EnableParallelDispatch,
			MaxConcurrentHandlers:  cfg.MaxConcurrentHandlers,
			HandlerTimeout:         cfg.HandlerTimeout,
			DispatchTimeout:        cfg.DispatchTimeout,
			EnableErrorIsolation:   cfg.EnableErrorIsolation,
			Reporter:               reporter,
			Metrics:                collector,
		}),
		enricher:  cfg.ContextEnricher,
		temporal:  cfg.TemporalLog,
		relay:     cfg.ClusterRelay,
		semantic:  cfg.SemanticRouter,
		reasoning: cfg.ReasoningHook,
		reporter:  reporter,
		metrics:   collector,
		cfg:       cfg,
	}
	if b.enricher == nil {
		b.enricher = nopContextEnricher{}
	}
	if b.temporal == nil {
		b.temporal = nopTemporalLog{}
	}
	if b.relay == nil {
		b.relay = nopClusterRelay{}
	}
	if b.semantic == nil {
		b.semantic = nopSemanticRouter{}
	}
	if b.reasoning == nil {
		b.reasoning = nopReasoningHook{}
	}
	b.state.Store(int32(busNotStarted))
	return b
}

// Start transitions the Bus into the started state. It is idempotent: a
// second call on an already-started Bus is a no-op. Starting a stopped Bus
// fails with ErrBusStopped.
//
// rootCtx/rootCancel are assigned before the atomic state transition to
// busStarted, not after: a concurrent Publish only proceeds once it
// observes busStarted via an atomic load, and the happens-before edge that
// load establishes with this store covers everything sequenced before the
// store in this goroutine, including the rootCtx assignment below. Storing
// busStarted first and assigning rootCtx afterward (the previous ordering)
// left a window where a concurrent Publish could observe busStarted and
// call Dispatch with a still-nil rootCtx.
func (b *Bus) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch busState(b.state.Load()) {
	case busStarted:
		return nil
	case busStopped:
		return ErrBusStopped
	}

	b.rootCtx, b.rootCancel = context.WithCancel(context.Background())
	b.state.Store(int32(busStarted))
	obslog.Info("bus started")
	return nil
}

// Stop transitions the Bus into the terminal stopped state, waits for
// outstanding Publish calls to drain, bounded by ctx or cfg.DispatchTimeout
// (falling back to 5s if neither is set), and then cancels the dispatches'
// root context so any handler still running receives the cancellation
// signal. It is idempotent.
func (b *Bus) Stop(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(busStarted), int32(busStopped)) {
		if busState(b.state.Load()) == busStopped {
			return nil
		}
		// was never started; still mark stopped so Start now rejects.
		b.state.Store(int32(busStopped))
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timeout := b.cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(timeout):
		obslog.Warn("bus stop: drain deadline exceeded, abandoning in-flight dispatches")
	}

	if b.rootCancel != nil {
		b.rootCancel()
	}

	obslog.Info("bus stopped")
	return nil
}

// Run provides the scoped-acquisition protocol of §4.D: it starts b,
// invokes fn, and guarantees Stop runs on every exit path, including a
// panic unwinding through fn (Stop still runs during unwind; the panic
// continues propagating afterward).
func Run(ctx context.Context, cfg Config, fn func(*Bus) error) (err error) {
	b := New(cfg)
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := b.Stop(ctx); err == nil {
			err = stopErr
		}
	}()
	return fn(b)
}

// Publish enriches, persists, relays, matches, and schedules e for
// dispatch, returning a handle the caller may Wait on. It never blocks for
// the full dispatch; scheduling failures from optional seams are reported
// via FailureReporter.ReportSeamFailure and otherwise swallowed (§4.E/F/G).
func (b *Bus) Publish(ctx context.Context, e *Event) (*DispatchHandle, error) {
	if busState(b.state.Load()) != busStarted {
		return nil, ErrBusNotStarted
	}

	enriched := e
	if en, err := b.enricher.Enrich(ctx, e); err != nil {
		b.reporter.ReportSeamFailure("context_enricher", e, err)
	} else if en != nil {
		enriched = en
	}

	if err := b.temporal.Append(ctx, enriched); err != nil {
		b.reporter.ReportSeamFailure("temporal_log", enriched, err)
	}

	if err := b.relay.Broadcast(ctx, enriched); err != nil {
		b.reporter.ReportSeamFailure("cluster_relay", enriched, err)
	}

	matched := b.registry.FindMatches(enriched.Topic())

	b.mu.RLock()
	router := b.semantic
	b.mu.RUnlock()
	if semCandidates := b.registry.SemanticSubscriptions(); len(semCandidates) > 0 {
		semMatches, err := router.Route(ctx, enriched, semCandidates)
		if err != nil {
			b.reporter.ReportSeamFailure("semantic_router", enriched, err)
		} else if len(semMatches) > 0 {
			matched = mergeSemanticMatches(matched, semMatches)
		}
	}

	handle := &DispatchHandle{done: make(chan struct{})}

	topicStr := enriched.Topic()
	b.metrics.RecordEventPublished(topicStr)
	b.metrics.UpdateEventQueueSize(b.inFlight.Add(1))

	b.wg.Add(1)
	go func() {
		start := time.Now()
		defer b.wg.Done()
		defer close(handle.done)
		defer func() {
			b.metrics.UpdateEventQueueSize(b.inFlight.Add(-1))
			b.metrics.RecordEventProcessed(topicStr, handle.result.State.String(), time.Since(start))
		}()
		handle.result = b.dispatcher.Dispatch(b.rootCtx, enriched, matched, b.cfg.EnableParallelDispatch)
		go b.reasoning.Handle(b.rootCtx, enriched)
	}()

	return handle, nil
}

// mergeSemanticMatches folds semantic router results into the
// registry-ordered match list, preferring the registry's own result for
// any subscription matched both ways, then re-sorts by priority with a
// stable tie-break (§4.B, §4.G).
func mergeSemanticMatches(registryMatches []*Subscription, semantic []SemanticMatch) []*Subscription {
	seen := make(map[SubscriptionID]bool, len(registryMatches))
	for _, s := range registryMatches {
		seen[s.id] = true
	}

	merged := append([]*Subscription(nil), registryMatches...)
	for _, sm := range semantic {
		if sm.Subscription == nil || sm.Score < sm.Subscription.threshold {
			continue
		}
		if seen[sm.Subscription.id] {
			continue
		}
		seen[sm.Subscription.id] = true
		merged = append(merged, sm.Subscription)
	}

	sortByPriorityStable(merged)
	return merged
}

// SubscribeOption customizes a subscription at creation time.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	priority  int
	filter    Filter
	mode      RoutingMode
	threshold float64
}

// WithPriority sets the subscription's dispatch priority (higher runs
// earlier; default 0).
func WithPriority(p int) SubscribeOption {
	return func(o *subscribeOptions) { o.priority = p }
}

// WithSubscriptionFilter attaches a delivery gate evaluated before the
// handler runs.
func WithSubscriptionFilter(f Filter) SubscribeOption {
	return func(o *subscribeOptions) { o.filter = f }
}

// Semantic switches the subscription to content-based routing with the
// given acceptance threshold in [0,1], delegated to the Bus's
// SemanticRouter (§4.G). Pattern is then treated as free text.
func Semantic(threshold float64) SubscribeOption {
	return func(o *subscribeOptions) {
		o.mode = ModeSemantic
		o.threshold = threshold
	}
}

// Subscribe registers handler against pattern and returns the live
// Subscription. The Bus must be started.
func (b *Bus) Subscribe(pattern string, handler Handler, opts ...SubscribeOption) (*Subscription, error) {
	if busState(b.state.Load()) != busStarted {
		return nil, ErrBusNotStarted
	}

	o := subscribeOptions{mode: ModeLiteralOrWildcard}
	for _, opt := range opts {
		opt(&o)
	}

	return b.registry.Add(pattern, o.mode, handler, o.filter, o.priority, o.threshold)
}

// On returns a decorator: call it with a Handler to subscribe it to
// pattern with the given opts. Useful when the handler is defined after
// the subscribe call site (mirrors a decorator-style registration).
func (b *Bus) On(pattern string, opts ...SubscribeOption) func(Handler) (*Subscription, error) {
	return func(h Handler) (*Subscription, error) {
		return b.Subscribe(pattern, h, opts...)
	}
}

// Unsubscribe removes the subscription with id. It is idempotent: removing
// an already-gone id returns false without error.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	return b.registry.Remove(id)
}

// ClearSubscriptions removes every live subscription.
func (b *Bus) ClearSubscriptions() {
	b.registry.Clear()
}

// GetSubscriptions returns every live subscription.
func (b *Bus) GetSubscriptions() []*Subscription {
	return b.registry.All()
}

// GetStats returns a snapshot of registry and dispatch counters.
func (b *Bus) GetStats() BusStats {
	return BusStats{
		Registry: b.registry.Stats(),
		Dispatch: b.dispatcher.Stats(),
	}
}

// EnableSemantic installs or replaces the semantic router seam at
// runtime, letting a bus start without one and gain content-based routing
// later (§4.G).
func (b *Bus) EnableSemantic(router SemanticRouter) {
	if router == nil {
		router = nopSemanticRouter{}
	}
	b.mu.Lock()
	b.semantic = router
	b.mu.Unlock()
}
