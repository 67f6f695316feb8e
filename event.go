package neurobus

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Event is an immutable record flowing through the bus. Every modifier
// returns a new Event; the zero value is never valid outside this package.
type Event struct {
	id        string
	topic     string
	timestamp time.Time
	data      map[string]any
	context   map[string]any
	metadata  map[string]any
	parentID  string
}

// EventOption customizes an Event at construction time.
type EventOption func(*Event)

// WithData attaches the opaque data payload.
func WithData(data map[string]any) EventOption {
	return func(e *Event) { e.data = cloneAnyMap(data) }
}

// WithContext attaches the initial context map (the enrichment surface).
func WithContext(ctx map[string]any) EventOption {
	return func(e *Event) { e.context = cloneAnyMap(ctx) }
}

// WithMetadata attaches operational tags (e.g. level).
func WithMetadata(meta map[string]any) EventOption {
	return func(e *Event) { e.metadata = cloneAnyMap(meta) }
}

// WithID overrides the auto-generated id. Intended for deserialization.
func WithID(id string) EventOption {
	return func(e *Event) { e.id = id }
}

// WithTimestamp overrides the auto-populated creation instant. Intended for
// deserialization.
func WithTimestamp(ts time.Time) EventOption {
	return func(e *Event) { e.timestamp = ts }
}

// WithParentID sets the lineage back-reference directly. Prefer (*Event).Child
// for normal use; this exists for deserialization.
func WithParentID(parentID string) EventOption {
	return func(e *Event) { e.parentID = parentID }
}

// New constructs an Event for topic, applying opts in order. topic must be
// non-empty or New returns ErrValidation.
func New(topic string, opts ...EventOption) (*Event, error) {
	if topic == "" {
		return nil, validationErrorf("event topic must not be empty")
	}

	e := &Event{
		id:        uuid.NewString(),
		topic:     topic,
		timestamp: time.Now(),
		data:      map[string]any{},
		context:   map[string]any{},
		metadata:  map[string]any{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.data == nil {
		e.data = map[string]any{}
	}
	if e.context == nil {
		e.context = map[string]any{}
	}
	if e.metadata == nil {
		e.metadata = map[string]any{}
	}

	return e, nil
}

// MustNew is New, panicking on error. Intended for tests and initialization.
func MustNew(topic string, opts ...EventOption) *Event {
	e, err := New(topic, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// ID returns the event's unique identifier.
func (e *Event) ID() string { return e.id }

// Topic returns the event's routing key.
func (e *Event) Topic() string { return e.topic }

// Timestamp returns the event's creation instant.
func (e *Event) Timestamp() time.Time { return e.timestamp }

// ParentID returns the referenced parent event's id, or "" if this event has
// no parent.
func (e *Event) ParentID() string { return e.parentID }

// Data returns a copy of the event's opaque data payload. Mutating the
// returned map does not affect the event.
func (e *Event) Data() map[string]any { return cloneAnyMap(e.data) }

// Context returns a copy of the event's context map. Mutating the returned
// map does not affect the event.
func (e *Event) Context() map[string]any { return cloneAnyMap(e.context) }

// Metadata returns a copy of the event's metadata map. Mutating the
// returned map does not affect the event.
func (e *Event) Metadata() map[string]any { return cloneAnyMap(e.metadata) }

// clone returns a shallow structural copy sharing no mutable map with e.
func (e *Event) clone() *Event {
	return &Event{
		id:        e.id,
		topic:     e.topic,
		timestamp: e.timestamp,
		data:      cloneAnyMap(e.data),
		context:   cloneAnyMap(e.context),
		metadata:  cloneAnyMap(e.metadata),
		parentID:  e.parentID,
	}
}

// WithEnrichedContext returns a copy of e whose context is replaced by ctx.
// Used by the context-enricher seam; it never mutates e in place and the
// returned event keeps e's id (§8 invariant).
func (e *Event) WithEnrichedContext(ctx map[string]any) *Event {
	n := e.clone()
	n.context = cloneAnyMap(ctx)
	return n
}

// Child constructs a new event on topic whose parent_id references e and
// whose context is copied from e (later overridden by opts, if any supply
// WithContext). Data, id, and timestamp are always fresh.
func (e *Event) Child(topic string, opts ...EventOption) (*Event, error) {
	all := append([]EventOption{WithContext(e.context), WithParentID(e.id)}, opts...)
	return New(topic, all...)
}

// ToJSON serializes the event per §6: {id, topic, timestamp, data, context,
// metadata, parent_id}, with parent_id written only when the event has a
// parent. Fields are written incrementally with
// sjson rather than a single json.Marshal call, so a future field addition
// never requires touching every call site that builds the payload.
func (e *Event) ToJSON() ([]byte, error) {
	buf := []byte("{}")
	var err error

	for _, kv := range []struct {
		path string
		val  any
	}{
		{"id", e.id},
		{"topic", e.topic},
		{"timestamp", e.timestamp.Format(time.RFC3339Nano)},
		{"data", e.data},
		{"context", e.context},
		{"metadata", e.metadata},
	} {
		buf, err = sjson.SetBytes(buf, kv.path, kv.val)
		if err != nil {
			return nil, err
		}
	}

	if e.parentID != "" {
		buf, err = sjson.SetBytes(buf, "parent_id", e.parentID)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// FromJSON deserializes an event per §6, tolerating missing optional
// fields. A missing/empty id or timestamp is regenerated rather than
// rejected.
func FromJSON(b []byte) (*Event, error) {
	if !gjson.ValidBytes(b) {
		return nil, validationErrorf("invalid event JSON")
	}

	root := gjson.ParseBytes(b)

	topicVal := root.Get("topic").String()
	if topicVal == "" {
		return nil, validationErrorf("event topic must not be empty")
	}

	opts := []EventOption{}

	if id := root.Get("id").String(); id != "" {
		opts = append(opts, WithID(id))
	}
	if ts := root.Get("timestamp").String(); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			opts = append(opts, WithTimestamp(parsed))
		}
	}
	if data, ok := root.Get("data").Value().(map[string]any); ok {
		opts = append(opts, WithData(data))
	}
	if ctx, ok := root.Get("context").Value().(map[string]any); ok {
		opts = append(opts, WithContext(ctx))
	}
	if meta, ok := root.Get("metadata").Value().(map[string]any); ok {
		opts = append(opts, WithMetadata(meta))
	}
	if parentID := root.Get("parent_id").String(); parentID != "" {
		opts = append(opts, WithParentID(parentID))
	}

	return New(topicVal, opts...)
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
