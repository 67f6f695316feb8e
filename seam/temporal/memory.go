// Package temporal implements the event-log seam of §4.F: every published
// event is appended to a replayable history, queryable by time range or
// topic, with old entries evicted once they age past a retention window.
// Grounded on bitechdev/pkg/eventbroker's Provider shape (Store/List/
// Stream), generalized here to an in-process ring plus an optional
// JetStream-backed implementation for cross-process durability.
package temporal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TIVerse/neurobus"
)

// ArchiveSink receives pages of evicted events for out-of-band archival
// (e.g. compaction to cold storage). Archive must not block eviction for
// long; implementations should buffer/queue internally.
type ArchiveSink interface {
	Archive(page []*neurobus.Event) error
}

// DiscardSink drops evicted pages. The MemoryLog's default.
type DiscardSink struct{}

func (DiscardSink) Archive([]*neurobus.Event) error { return nil }

type entry struct {
	event    *neurobus.Event
	recorded time.Time
}

// MemoryLog is an in-process, retention-bounded event log implementing
// neurobus.TemporalLog plus the query/replay surface of §4.F. Retention is
// enforced two ways, either of which may be disabled: entries older than
// the age-based TTL are evicted, and once the log holds maxEvents entries
// the oldest are evicted FIFO to keep it at or under that count.
type MemoryLog struct {
	mu        sync.RWMutex
	entries   []entry
	retention time.Duration
	maxEvents int
	sink      ArchiveSink
}

// NewMemoryLog builds a MemoryLog. retention <= 0 means entries are never
// evicted by age. maxEvents <= 0 means no count cap. sink may be nil
// (defaults to DiscardSink).
func NewMemoryLog(retention time.Duration, maxEvents int, sink ArchiveSink) *MemoryLog {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &MemoryLog{retention: retention, maxEvents: maxEvents, sink: sink}
}

// Append records e and opportunistically evicts entries past the age-based
// retention window or the count-based cap (oldest first), handing evicted
// pages to the ArchiveSink (§4.F).
func (l *MemoryLog) Append(_ context.Context, e *neurobus.Event) error {
	l.mu.Lock()
	l.entries = append(l.entries, entry{event: e, recorded: time.Now()})
	var evicted []*neurobus.Event

	if l.retention > 0 {
		cutoff := time.Now().Add(-l.retention)
		i := 0
		for i < len(l.entries) && l.entries[i].recorded.Before(cutoff) {
			evicted = append(evicted, l.entries[i].event)
			i++
		}
		if i > 0 {
			l.entries = l.entries[i:]
		}
	}

	if l.maxEvents > 0 && len(l.entries) > l.maxEvents {
		overflow := len(l.entries) - l.maxEvents
		for _, en := range l.entries[:overflow] {
			evicted = append(evicted, en.event)
		}
		l.entries = l.entries[overflow:]
	}

	l.mu.Unlock()

	if len(evicted) > 0 {
		return l.sink.Archive(evicted)
	}
	return nil
}

// QueryTimeRange returns every recorded event whose Timestamp falls within
// [from, to], ordered oldest-first.
func (l *MemoryLog) QueryTimeRange(from, to time.Time) []*neurobus.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*neurobus.Event
	for _, en := range l.entries {
		ts := en.event.Timestamp()
		if (ts.Equal(from) || ts.After(from)) && (ts.Equal(to) || ts.Before(to)) {
			out = append(out, en.event)
		}
	}
	return out
}

// QueryByTopic returns every recorded event on topic, oldest-first.
func (l *MemoryLog) QueryByTopic(topicStr string) []*neurobus.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*neurobus.Event
	for _, en := range l.entries {
		if en.event.Topic() == topicStr {
			out = append(out, en.event)
		}
	}
	return out
}

// Replay invokes fn for every recorded event between from and to
// (inclusive), in chronological order, stopping early if fn returns false.
// It is synchronous: the caller drives its own pacing.
func (l *MemoryLog) Replay(from, to time.Time, fn func(*neurobus.Event) bool) {
	events := l.QueryTimeRange(from, to)
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp().Before(events[j].Timestamp()) })
	for _, e := range events {
		if !fn(e) {
			return
		}
	}
}

// Len returns the number of currently retained entries.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
