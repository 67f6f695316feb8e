package semantic

import (
	"context"
	"testing"

	"github.com/TIVerse/neurobus"
)

func newSemanticSub(t *testing.T, pattern string, threshold float64) *neurobus.Subscription {
	t.Helper()
	b := neurobus.New(neurobus.DefaultConfig())
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(pattern, func(context.Context, *neurobus.Event) error { return nil }, neurobus.Semantic(threshold))
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestCosineRouterScoresRelevantHigher(t *testing.T) {
	r := NewCosineRouter()

	refund := newSemanticSub(t, "refund billing payment dispute", 0.1)
	shipping := newSemanticSub(t, "shipping delivery tracking package", 0.1)

	e := neurobus.MustNew("support.ticket", neurobus.WithData(map[string]any{
		"body": "payment dispute refund requested",
	}))

	matches, err := r.Route(context.Background(), e, []*neurobus.Subscription{refund, shipping})
	if err != nil {
		t.Fatal(err)
	}

	scores := map[neurobus.SubscriptionID]float64{}
	for _, m := range matches {
		scores[m.Subscription.ID()] = m.Score
	}

	if scores[refund.ID()] <= scores[shipping.ID()] {
		t.Errorf("refund score %v should exceed shipping score %v", scores[refund.ID()], scores[shipping.ID()])
	}
}

func TestCosineRouterRejectsBelowThreshold(t *testing.T) {
	r := NewCosineRouter()
	sub := newSemanticSub(t, "completely unrelated topic xyz", 0.9)

	e := neurobus.MustNew("support.ticket", neurobus.WithData(map[string]any{"body": "payment dispute"}))

	matches, err := r.Route(context.Background(), e, []*neurobus.Subscription{sub})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches above threshold, got %+v", matches)
	}
}
