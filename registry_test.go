package neurobus

import (
	"context"
	"testing"
)

func noopHandler(context.Context, *Event) error { return nil }

func TestRegistryAddAndFindMatchesLiteral(t *testing.T) {
	r := NewRegistry(0)
	s, err := r.Add("user.login", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	matches := r.FindMatches("user.login")
	if len(matches) != 1 || matches[0].ID() != s.ID() {
		t.Fatalf("expected literal match, got %+v", matches)
	}

	if len(r.FindMatches("user.logout")) != 0 {
		t.Error("expected no match for different literal topic")
	}
}

func TestRegistryWildcardFanOut(t *testing.T) {
	r := NewRegistry(0)
	h1, _ := r.Add("user.*", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	h2, _ := r.Add("*.error", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)

	cases := map[string][]SubscriptionID{
		"user.login":   {h1.ID()},
		"user.logout":  {h1.ID()},
		"system.error": {h2.ID()},
		"network.error": {h2.ID()},
	}

	for topic, want := range cases {
		got := r.FindMatches(topic)
		if len(got) != len(want) {
			t.Fatalf("topic %q: got %d matches, want %d", topic, len(got), len(want))
		}
		for i, w := range want {
			if got[i].ID() != w {
				t.Errorf("topic %q: match[%d] = %d, want %d", topic, i, got[i].ID(), w)
			}
		}
	}
}

func TestRegistryFindMatchesSortedByPriority(t *testing.T) {
	r := NewRegistry(0)
	low, _ := r.Add("task", ModeLiteralOrWildcard, noopHandler, nil, 1, 0)
	high, _ := r.Add("task", ModeLiteralOrWildcard, noopHandler, nil, 100, 0)
	mid, _ := r.Add("task", ModeLiteralOrWildcard, noopHandler, nil, 50, 0)

	got := r.FindMatches("task")
	want := []SubscriptionID{high.ID(), mid.ID(), low.ID()}
	for i, w := range want {
		if got[i].ID() != w {
			t.Errorf("position %d: id = %d, want %d", i, got[i].ID(), w)
		}
	}
}

func TestRegistryFindMatchesStableTieBreak(t *testing.T) {
	r := NewRegistry(0)
	first, _ := r.Add("task", ModeLiteralOrWildcard, noopHandler, nil, 10, 0)
	second, _ := r.Add("task", ModeLiteralOrWildcard, noopHandler, nil, 10, 0)

	got := r.FindMatches("task")
	if got[0].ID() != first.ID() || got[1].ID() != second.ID() {
		t.Errorf("expected insertion-order tie-break, got %d, %d", got[0].ID(), got[1].ID())
	}
}

func TestRegistryFindMatchesTieBreakAcrossWildcardAndLiteral(t *testing.T) {
	r := NewRegistry(0)
	wildcard, _ := r.Add("user.*", ModeLiteralOrWildcard, noopHandler, nil, 5, 0)
	literal, _ := r.Add("user.login", ModeLiteralOrWildcard, noopHandler, nil, 5, 0)

	got := r.FindMatches("user.login")
	if len(got) != 2 || got[0].ID() != wildcard.ID() || got[1].ID() != literal.ID() {
		t.Fatalf("expected insertion-order tie-break [%d, %d], got %v", wildcard.ID(), literal.ID(), got)
	}
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(1)
	if _, err := r.Add("a", ModeLiteralOrWildcard, noopHandler, nil, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("b", ModeLiteralOrWildcard, noopHandler, nil, 0, 0); err == nil {
		t.Error("expected capacity error")
	}
	if r.Len() != 1 {
		t.Errorf("failed add must not mutate registry: Len() = %d, want 1", r.Len())
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry(0)
	s, _ := r.Add("a", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)

	if !r.Remove(s.ID()) {
		t.Error("expected first remove to return true")
	}
	if r.Remove(s.ID()) {
		t.Error("expected second remove to return false")
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Get(999); err == nil {
		t.Error("expected ErrSubscriptionNotFound")
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry(0)
	r.Add("a", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	r.Add("b.*", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", r.Len())
	}
	stats := r.Stats()
	if stats.Literal != 0 || stats.Wildcard != 0 {
		t.Errorf("expected zeroed stats after Clear(), got %+v", stats)
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(10)
	r.Add("a", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	r.Add("b.*", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	r.Add("semantic topic", ModeSemantic, noopHandler, nil, 0, 0.5)

	stats := r.Stats()
	if stats.Total != 3 || stats.Literal != 1 || stats.Wildcard != 1 || stats.Semantic != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Capacity != 10 {
		t.Errorf("Capacity = %d, want 10", stats.Capacity)
	}
}

func TestRegistryFindByPattern(t *testing.T) {
	r := NewRegistry(0)
	a, _ := r.Add("user.*", ModeLiteralOrWildcard, noopHandler, nil, 0, 0)
	b, _ := r.Add("user.*", ModeLiteralOrWildcard, noopHandler, nil, 5, 0)

	got := r.FindByPattern("user.*")
	if len(got) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(got))
	}
	ids := map[SubscriptionID]bool{a.ID(): true, b.ID(): true}
	for _, s := range got {
		if !ids[s.ID()] {
			t.Errorf("unexpected subscription %d", s.ID())
		}
	}
}
