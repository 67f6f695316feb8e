package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/TIVerse/neurobus"
)

type capturingSink struct {
	pages [][]*neurobus.Event
}

func (s *capturingSink) Archive(page []*neurobus.Event) error {
	s.pages = append(s.pages, page)
	return nil
}

func TestMemoryLogAppendAndQuery(t *testing.T) {
	l := NewMemoryLog(0, 0, nil)
	ctx := context.Background()

	e1 := neurobus.MustNew("order.created")
	e2 := neurobus.MustNew("order.shipped")
	l.Append(ctx, e1)
	l.Append(ctx, e2)

	if got := l.QueryByTopic("order.created"); len(got) != 1 || got[0].ID() != e1.ID() {
		t.Errorf("QueryByTopic(order.created) = %+v, want [e1]", got)
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestMemoryLogRetentionEvictsAndArchives(t *testing.T) {
	sink := &capturingSink{}
	l := NewMemoryLog(10*time.Millisecond, 0, sink)
	ctx := context.Background()

	l.Append(ctx, neurobus.MustNew("stale"))
	time.Sleep(30 * time.Millisecond)
	l.Append(ctx, neurobus.MustNew("fresh"))

	if l.Len() != 1 {
		t.Errorf("Len() after eviction = %d, want 1", l.Len())
	}
	if len(sink.pages) != 1 || len(sink.pages[0]) != 1 {
		t.Errorf("expected exactly one archived page of one event, got %+v", sink.pages)
	}
}

func TestMemoryLogMaxEventsEvictsOldestFIFO(t *testing.T) {
	sink := &capturingSink{}
	l := NewMemoryLog(0, 5, sink)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.Append(ctx, neurobus.MustNew("event"))
	}

	if l.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", l.Len())
	}

	var archived int
	for _, page := range sink.pages {
		archived += len(page)
	}
	if archived != 5 {
		t.Errorf("archived %d events, want 5 (the 5 oldest evicted FIFO)", archived)
	}
}

func TestMemoryLogReplayStopsEarly(t *testing.T) {
	l := NewMemoryLog(0, 0, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.Append(ctx, neurobus.MustNew("tick"))
	}

	var seen int
	l.Replay(time.Now().Add(-time.Hour), time.Now().Add(time.Hour), func(*neurobus.Event) bool {
		seen++
		return seen < 2
	})

	if seen != 2 {
		t.Errorf("seen = %d, want 2 (Replay should stop when fn returns false)", seen)
	}
}
