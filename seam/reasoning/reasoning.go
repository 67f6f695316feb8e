// Package reasoning implements the external model bridge seam of §4.G: a
// pattern-keyed hook that, when an event's topic matches one of its
// registered patterns, formats a prompt from the event and ships it to an
// external model server over a persistent websocket connection. It never
// blocks dispatch — Handle is always invoked in its own goroutine by the
// Bus, and every send here is itself asynchronous and isolated from
// whatever happens to the response.
package reasoning

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/TIVerse/neurobus"
	"github.com/TIVerse/neurobus/internal/obslog"
	"github.com/TIVerse/neurobus/internal/topic"
)

// Vars flattens an event's topic, data, and context to string key/value
// pairs, so a PromptTemplate can pull values with Get regardless of the
// event's original Go types.
type Vars map[string]string

// Get returns the value for key, or "" if absent.
func (v Vars) Get(key string) string { return v[key] }

// PromptTemplate renders a prompt string for a matched event.
type PromptTemplate func(vars Vars) (string, error)

// ResponseHandler is invoked with the raw bytes of each message the model
// server sends back, outside of any dispatch context.
type ResponseHandler func(topicStr string, message []byte)

type binding struct {
	pattern  topic.Pattern
	template PromptTemplate
}

// Hook implements neurobus.ReasoningHook over a websocket connection to an
// external model server. Register binds a topic pattern to a
// PromptTemplate; Handle matches an event's topic against every registered
// pattern and sends the first template that matches.
type Hook struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	bindings []binding
	onReply  ResponseHandler
}

// Dial opens a websocket connection to url and starts a background reader
// forwarding every incoming message to onReply (which may be nil to
// discard replies).
func Dial(url string, onReply ResponseHandler) (*Hook, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	h := &Hook{conn: conn, onReply: onReply}
	go h.readLoop()
	return h, nil
}

func (h *Hook) readLoop() {
	for {
		_, msg, err := h.conn.ReadMessage()
		if err != nil {
			obslog.Warn("reasoning hook: connection closed: %v", err)
			return
		}
		if h.onReply != nil {
			h.onReply("", msg)
		}
	}
}

// Register binds pattern (matched with the same literal/wildcard rules as
// ordinary subscriptions) to a prompt template. Patterns are tried in
// registration order; the first match wins.
func (h *Hook) Register(pattern string, tmpl PromptTemplate) error {
	compiled, err := topic.Compile(pattern)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.bindings = append(h.bindings, binding{pattern: compiled, template: tmpl})
	h.mu.Unlock()
	return nil
}

// eventVars flattens e's topic, data, and context into Vars for template
// rendering.
func eventVars(e *neurobus.Event) Vars {
	vars := make(Vars, 2+len(e.Data())+len(e.Context()))
	vars["topic"] = e.Topic()
	vars["event_id"] = e.ID()
	for k, v := range e.Data() {
		vars["data."+k] = toStringLoose(v)
	}
	for k, v := range e.Context() {
		vars["context."+k] = toStringLoose(v)
	}
	return vars
}

func toStringLoose(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}

// Handle implements neurobus.ReasoningHook. It matches e's topic against
// every registered binding and, on the first match, renders and sends a
// prompt. Errors (no match, template failure, send failure) are logged and
// otherwise swallowed — this seam never surfaces errors to a publisher.
func (h *Hook) Handle(ctx context.Context, e *neurobus.Event) {
	h.mu.Lock()
	bindings := append([]binding(nil), h.bindings...)
	h.mu.Unlock()

	for _, b := range bindings {
		if !b.pattern.Match(e.Topic()) {
			continue
		}

		prompt, err := b.template(eventVars(e))
		if err != nil {
			obslog.Warn("reasoning hook: template for pattern %q failed: %v", b.pattern, err)
			return
		}

		h.mu.Lock()
		err = h.conn.WriteMessage(websocket.TextMessage, []byte(prompt))
		h.mu.Unlock()
		if err != nil {
			obslog.Warn("reasoning hook: send failed: %v", err)
		}
		return
	}
}

// Close closes the websocket connection.
func (h *Hook) Close() error {
	return h.conn.Close()
}
