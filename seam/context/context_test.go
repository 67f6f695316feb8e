package context

import (
	"context"
	"testing"
	"time"

	"github.com/TIVerse/neurobus"
)

func TestStoreMergedPrecedence(t *testing.T) {
	st := NewStore(0)
	st.SetGlobal("tier", "free")
	st.SetSession("sess-1", "tier", "pro")
	st.SetUser("user-1", "region", "eu")

	merged := st.Merged("sess-1", "user-1")
	if merged["tier"] != "pro" {
		t.Errorf("tier = %v, want pro (session overrides global)", merged["tier"])
	}
	if merged["region"] != "eu" {
		t.Errorf("region = %v, want eu", merged["region"])
	}
}

func TestStoreTTLExpiry(t *testing.T) {
	st := NewStore(10 * time.Millisecond)
	st.SetGlobal("flag", true)

	if v := st.Merged("", "")["flag"]; v != true {
		t.Fatalf("flag = %v before expiry, want true", v)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := st.Merged("", "")["flag"]; ok {
		t.Error("expected flag to be expired and absent")
	}
}

func TestStoreDropSession(t *testing.T) {
	st := NewStore(0)
	st.SetSession("sess-1", "k", "v")
	st.DropSession("sess-1")

	if _, ok := st.Merged("sess-1", "")["k"]; ok {
		t.Error("expected dropped session scope to be empty")
	}
}

func TestEnricherMergesUnderEventContext(t *testing.T) {
	st := NewStore(0)
	st.SetGlobal("env", "prod")
	st.SetUser("user-1", "plan", "enterprise")

	en := NewEnricher(st, "session_id", "user_id")

	e := neurobus.MustNew("order.created", neurobus.WithContext(map[string]any{
		"user_id": "user-1",
		"env":     "staging",
	}))

	enriched, err := en.Enrich(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}

	got := enriched.Context()
	if got["env"] != "staging" {
		t.Errorf("env = %v, want staging (event context wins)", got["env"])
	}
	if got["plan"] != "enterprise" {
		t.Errorf("plan = %v, want enterprise", got["plan"])
	}
	if enriched.ID() != e.ID() {
		t.Error("enrichment must preserve event id")
	}
}
