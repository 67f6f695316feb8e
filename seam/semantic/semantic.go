// Package semantic implements the content-based routing seam of §4.G: given
// an event and the live ModeSemantic subscriptions, score each by
// similarity to the event and return those clearing their own threshold.
// The default CosineRouter needs no external model — it scores token-set
// overlap between the event's topic/data and a subscription's free-text
// pattern — so a Bus gets semantic routing with zero new infrastructure;
// swapping in an embedding-backed router only requires a different
// neurobus.SemanticRouter implementation.
package semantic

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/TIVerse/neurobus"
)

// CosineRouter scores subscriptions by cosine similarity over bag-of-words
// term-frequency vectors built from lowercased, whitespace-split tokens.
// Vectors are cached per subscription pattern since patterns don't change
// after Subscribe.
type CosineRouter struct {
	mu    sync.Mutex
	cache map[string]map[string]float64
}

// NewCosineRouter builds an empty CosineRouter.
func NewCosineRouter() *CosineRouter {
	return &CosineRouter{cache: make(map[string]map[string]float64)}
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func termFreq(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for k, v := range a {
		dot += v * b[k]
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (r *CosineRouter) vectorFor(pattern string) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[pattern]; ok {
		return v
	}
	v := termFreq(tokenize(pattern))
	r.cache[pattern] = v
	return v
}

// eventText builds the text describing e that candidates are scored
// against: its topic plus every string-valued data field.
func eventText(e *neurobus.Event) string {
	var b strings.Builder
	b.WriteString(e.Topic())
	for _, v := range e.Data() {
		if s, ok := v.(string); ok {
			b.WriteByte(' ')
			b.WriteString(s)
		}
	}
	return b.String()
}

// Route implements neurobus.SemanticRouter.
func (r *CosineRouter) Route(_ context.Context, e *neurobus.Event, candidates []*neurobus.Subscription) ([]neurobus.SemanticMatch, error) {
	evVec := termFreq(tokenize(eventText(e)))

	out := make([]neurobus.SemanticMatch, 0, len(candidates))
	for _, c := range candidates {
		score := cosine(evVec, r.vectorFor(c.Pattern()))
		if score >= c.Threshold() {
			out = append(out, neurobus.SemanticMatch{Subscription: c, Score: score})
		}
	}
	return out, nil
}
