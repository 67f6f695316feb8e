package neurobus

import (
	"context"

	"github.com/TIVerse/neurobus/internal/topic"
)

// SubscriptionID uniquely identifies a live subscription for the lifetime of
// the registry that issued it.
type SubscriptionID uint64

// RoutingMode selects how a subscription's pattern is interpreted.
type RoutingMode int

const (
	// ModeLiteralOrWildcard interprets Pattern as a dot-segmented topic
	// pattern per internal/topic (literal or '*'/'**' wildcard).
	ModeLiteralOrWildcard RoutingMode = iota
	// ModeSemantic delegates matching to the semantic router seam; Pattern
	// is treated as free text describing the subscriber's interest and
	// Threshold gates acceptance.
	ModeSemantic
)

func (m RoutingMode) String() string {
	if m == ModeSemantic {
		return "semantic"
	}
	return "literal_or_wildcard"
}

// Handler processes a matched event. It may suspend (perform I/O); the
// dispatcher always awaits whatever it returns. A non-nil error marks the
// invocation as a HandlerFailure, isolated from sibling handlers.
type Handler func(ctx context.Context, e *Event) error

// Filter synchronously gates delivery to a subscription. A filter that
// panics is treated as returning false; filter failures are never fatal and
// never propagated (§4.C item 1).
type Filter func(e *Event) bool

// Subscription binds a pattern, handler, optional filter, priority, and
// routing mode. Subscriptions are immutable after creation; to change
// behavior, unsubscribe and subscribe again (§3).
type Subscription struct {
	id        SubscriptionID
	pattern   string
	compiled  topic.Pattern
	mode      RoutingMode
	handler   Handler
	filter    Filter
	priority  int
	threshold float64
	seq       uint64 // insertion sequence, equal to id; the tie-break sorts on id
}

// newSubscription validates and builds a Subscription. id and seq are
// assigned by the registry at insertion time.
func newSubscription(pattern string, mode RoutingMode, handler Handler, filter Filter, priority int, threshold float64) (*Subscription, error) {
	if pattern == "" {
		return nil, validationErrorf("subscription pattern must not be empty")
	}
	if handler == nil {
		return nil, validationErrorf("subscription handler must not be nil")
	}
	if threshold < 0 || threshold > 1 {
		return nil, validationErrorf("subscription threshold %v out of range [0,1]", threshold)
	}

	s := &Subscription{
		pattern:   pattern,
		mode:      mode,
		handler:   handler,
		filter:    filter,
		priority:  priority,
		threshold: threshold,
	}

	if mode == ModeLiteralOrWildcard {
		compiled, err := topic.Compile(pattern)
		if err != nil {
			return nil, validationErrorf("%s", err.Error())
		}
		s.compiled = compiled
	}

	return s, nil
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() SubscriptionID { return s.id }

// Pattern returns the raw pattern string.
func (s *Subscription) Pattern() string { return s.pattern }

// Mode returns the subscription's routing mode.
func (s *Subscription) Mode() RoutingMode { return s.mode }

// Priority returns the subscription's priority; higher runs earlier.
func (s *Subscription) Priority() int { return s.priority }

// Threshold returns the subscription's semantic acceptance threshold.
// Meaningful only when Mode() == ModeSemantic.
func (s *Subscription) Threshold() float64 { return s.threshold }

// IsLiteral reports whether the subscription's pattern contains no
// wildcard segment. Always false for semantic subscriptions.
func (s *Subscription) IsLiteral() bool {
	return s.mode == ModeLiteralOrWildcard && s.compiled.IsLiteral()
}

// matchesTopic reports whether the subscription's pattern matches topic
// under the literal/wildcard rules of §4.A. Always false for semantic
// subscriptions (resolved separately by the semantic router seam).
func (s *Subscription) matchesTopic(t string) bool {
	if s.mode != ModeLiteralOrWildcard {
		return false
	}
	return s.compiled.Match(t)
}

// passesFilter evaluates the subscription's filter, if any, containing
// panics per §4.C item 1: a filter that panics is treated as false.
func (s *Subscription) passesFilter(e *Event) (pass bool) {
	if s.filter == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			pass = false
		}
	}()
	return s.filter(e)
}
