package neurobus

import (
	"testing"
	"time"
)

func TestNewEventValidation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestNewEventDefaults(t *testing.T) {
	e, err := New("user.login")
	if err != nil {
		t.Fatal(err)
	}
	if e.ID() == "" {
		t.Error("expected auto-generated id")
	}
	if e.Timestamp().IsZero() {
		t.Error("expected auto-populated timestamp")
	}
	if e.ParentID() != "" {
		t.Error("expected no parent by default")
	}
}

func TestEventChildLineage(t *testing.T) {
	parent := MustNew("order.created", WithContext(map[string]any{"tenant": "acme"}))
	child, err := parent.Child("order.shipped")
	if err != nil {
		t.Fatal(err)
	}

	if child.ParentID() != parent.ID() {
		t.Errorf("child.ParentID() = %q, want %q", child.ParentID(), parent.ID())
	}
	if child.ID() == parent.ID() {
		t.Error("child must have a fresh id")
	}
	childCtx := child.Context()
	if childCtx["tenant"] != "acme" {
		t.Error("child context must be a superset of parent context")
	}
}

func TestEventWithEnrichedContextDoesNotMutate(t *testing.T) {
	e := MustNew("t", WithContext(map[string]any{"a": 1}))
	enriched := e.WithEnrichedContext(map[string]any{"a": 1, "b": 2})

	if enriched.ID() != e.ID() {
		t.Error("enrichment must preserve the event id")
	}
	if _, ok := e.Context()["b"]; ok {
		t.Error("enrichment must not mutate the original event")
	}
	if _, ok := enriched.Context()["b"]; !ok {
		t.Error("enriched event must carry the new context key")
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	orig := MustNew("user.login",
		WithData(map[string]any{"user_id": "alice"}),
		WithContext(map[string]any{"session_id": "s1"}),
		WithMetadata(map[string]any{"level": "info"}),
	)

	raw, err := orig.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	got, err := FromJSON(raw)
	if err != nil {
		t.Fatal(err)
	}

	if got.ID() != orig.ID() {
		t.Errorf("id mismatch: got %q want %q", got.ID(), orig.ID())
	}
	if got.Topic() != orig.Topic() {
		t.Errorf("topic mismatch: got %q want %q", got.Topic(), orig.Topic())
	}
	if !got.Timestamp().Equal(orig.Timestamp()) {
		t.Errorf("timestamp mismatch: got %v want %v", got.Timestamp(), orig.Timestamp())
	}
	if got.Data()["user_id"] != "alice" {
		t.Error("data did not round-trip")
	}
	if got.Context()["session_id"] != "s1" {
		t.Error("context did not round-trip")
	}
	if got.Metadata()["level"] != "info" {
		t.Error("metadata did not round-trip")
	}
}

func TestEventFromJSONToleratesMissingOptionalFields(t *testing.T) {
	got, err := FromJSON([]byte(`{"topic":"t"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() == "" {
		t.Error("expected regenerated id")
	}
	if got.Timestamp().IsZero() {
		t.Error("expected regenerated timestamp")
	}
}

func TestEventFromJSONRejectsEmptyTopic(t *testing.T) {
	if _, err := FromJSON([]byte(`{}`)); err == nil {
		t.Error("expected error for missing topic")
	}
}

func TestEventFromJSONExplicitTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := []byte(`{"topic":"t","timestamp":"` + ts.Format(time.RFC3339Nano) + `"}`)
	got, err := FromJSON(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Timestamp().Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp(), ts)
	}
}
