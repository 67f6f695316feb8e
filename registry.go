package neurobus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/TIVerse/neurobus/pkg/cmap"
)

// RegistryStats summarizes the registry's live subscriptions (§4.B stats()).
type RegistryStats struct {
	Total    int
	Capacity int
	Literal  int
	Wildcard int
	Semantic int
}

// Registry is the indexed store of subscriptions described in §3/§4.B. All
// operations are safe for concurrent use by multiple publishers and
// subscribers; readers observe a consistent snapshot via a single
// writer/multi-reader lock, adapted from the teacher's Hub (which guards
// its own indices the same way).
type Registry struct {
	mu sync.RWMutex
	// seq is both the subscription id source and, by construction, the
	// insertion-order tie-break key find_matches relies on (see sublist.go).
	seq atomic.Uint64

	capacity int

	exact    map[string]*sublist // literal pattern -> subscriptions
	wildcard *sublist
	semantic *sublist
	byID     map[SubscriptionID]*Subscription

	kindCounts *cmap.CMap[int] // "literal" | "wildcard" | "semantic" -> count
}

// NewRegistry builds an empty Registry with the given capacity. A capacity
// of 0 means unlimited.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity:   capacity,
		exact:      make(map[string]*sublist),
		wildcard:   &sublist{},
		semantic:   &sublist{},
		byID:       make(map[SubscriptionID]*Subscription),
		kindCounts: cmap.New[int](),
	}
}

// Add validates and inserts a new subscription, assigning it an id. It
// fails with ErrRegistryFull if capacity is reached, without mutating the
// registry.
func (r *Registry) Add(pattern string, mode RoutingMode, handler Handler, filter Filter, priority int, threshold float64) (*Subscription, error) {
	s, err := newSubscription(pattern, mode, handler, filter, priority, threshold)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity > 0 && len(r.byID) >= r.capacity {
		return nil, fmt.Errorf("%w: capacity %d reached", ErrRegistryFull, r.capacity)
	}

	s.id = SubscriptionID(r.seq.Add(1))
	s.seq = uint64(s.id)

	r.byID[s.id] = s

	switch {
	case mode == ModeSemantic:
		r.semantic.add(s)
		cmap.Add(r.kindCounts, "semantic", 1)
	case s.IsLiteral():
		sl, ok := r.exact[pattern]
		if !ok {
			sl = &sublist{}
			r.exact[pattern] = sl
		}
		sl.add(s)
		cmap.Add(r.kindCounts, "literal", 1)
	default:
		r.wildcard.add(s)
		cmap.Add(r.kindCounts, "wildcard", 1)
	}

	return s, nil
}

// Remove deletes the subscription with the given id. It is idempotent on
// absent ids: it never fails, returning whether a subscription was
// actually removed.
func (r *Registry) Remove(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id SubscriptionID) bool {
	s, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	switch {
	case s.mode == ModeSemantic:
		r.semantic.remove(id)
		cmap.Add(r.kindCounts, "semantic", -1)
	case s.IsLiteral():
		if sl, ok := r.exact[s.pattern]; ok {
			sl.remove(id)
			if sl.len() == 0 {
				delete(r.exact, s.pattern)
			}
		}
		cmap.Add(r.kindCounts, "literal", -1)
	default:
		r.wildcard.remove(id)
		cmap.Add(r.kindCounts, "wildcard", -1)
	}

	return true
}

// Get returns the subscription with the given id, or ErrSubscriptionNotFound.
func (r *Registry) Get(id SubscriptionID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrSubscriptionNotFound, id)
	}
	return s, nil
}

// FindMatches returns every literal/wildcard subscription whose pattern
// matches topic, sorted by descending priority with insertion-order ties
// (§4.B). Semantic subscriptions are never included; they're resolved
// separately by the semantic router seam and merged in by Bus.Publish.
func (r *Registry) FindMatches(topicStr string) []*Subscription {
	r.mu.RLock()
	var matches []*Subscription

	if sl, ok := r.exact[topicStr]; ok {
		matches = append(matches, sl.snapshot()...)
	}
	for _, s := range r.wildcard.snapshot() {
		if s.matchesTopic(topicStr) {
			matches = append(matches, s)
		}
	}
	r.mu.RUnlock()

	sortByPriorityStable(matches)
	return matches
}

// FindByPattern returns every subscription sharing the exact pattern
// string, regardless of routing mode.
func (r *Registry) FindByPattern(pattern string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	if sl, ok := r.exact[pattern]; ok {
		out = append(out, sl.snapshot()...)
	}
	for _, s := range r.wildcard.snapshot() {
		if s.pattern == pattern {
			out = append(out, s)
		}
	}
	for _, s := range r.semantic.snapshot() {
		if s.pattern == pattern {
			out = append(out, s)
		}
	}
	return out
}

// SemanticSubscriptions returns a snapshot of all ModeSemantic
// subscriptions, for the semantic router seam to evaluate (§4.G).
func (r *Registry) SemanticSubscriptions() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.semantic.snapshot()
}

// All returns every live subscription across all indices, in no particular
// order (get_subscriptions).
func (r *Registry) All() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact = make(map[string]*sublist)
	r.wildcard = &sublist{}
	r.semantic = &sublist{}
	r.byID = make(map[SubscriptionID]*Subscription)
	r.kindCounts.Clear()
}

// Len returns the current number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Stats returns counts, capacity usage, and pattern-kind breakdown.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lit, _ := r.kindCounts.Get("literal")
	wild, _ := r.kindCounts.Get("wildcard")
	sem, _ := r.kindCounts.Get("semantic")

	return RegistryStats{
		Total:    len(r.byID),
		Capacity: r.capacity,
		Literal:  lit,
		Wildcard: wild,
		Semantic: sem,
	}
}
