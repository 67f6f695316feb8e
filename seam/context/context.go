// Package context implements the hierarchical scope-store seam of §4.E: a
// global -> session -> user -> event chain of key/value scopes, merged
// (later scopes override earlier ones) into an Event's context map at
// publish time. Grounded on the teacher pack's cmap for the per-scope
// store and on pkg/kv's Merge precedence rule, generalized from two levels
// to four and from string-only values to any.
package context

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/TIVerse/neurobus"
	"github.com/TIVerse/neurobus/pkg/cmap"
)

type entry struct {
	value   any
	expires time.Time // zero means no expiry
}

// scope is a single level of the hierarchy: a flat key/value store with
// optional per-key TTL and lazy expiry (expired keys are dropped the next
// time they are read or the scope is swept).
type scope struct {
	mu   sync.RWMutex
	data map[string]entry
}

func newScope() *scope {
	return &scope{data: make(map[string]entry)}
}

func (s *scope) set(key string, value any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = entry{value: value, expires: exp}
	s.mu.Unlock()
}

func (s *scope) snapshot() map[string]any {
	now := time.Now()
	out := make(map[string]any)

	s.mu.Lock()
	for k, e := range s.data {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(s.data, k)
			continue
		}
		out[k] = e.value
	}
	s.mu.Unlock()

	return out
}

func (s *scope) delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

// Store is the four-level scope hierarchy: global, per-session, per-user,
// and a transient event-local overlay supplied at Enrich time.
type Store struct {
	global   *scope
	sessions *cmap.CMap[*scope]
	users    *cmap.CMap[*scope]
	ttl      time.Duration
}

// NewStore builds an empty Store. defaultTTL applies to every Set call
// (the Set methods take no TTL of their own); zero means no expiry.
func NewStore(defaultTTL time.Duration) *Store {
	return &Store{
		global:   newScope(),
		sessions: cmap.New[*scope](),
		users:    cmap.New[*scope](),
		ttl:      defaultTTL,
	}
}

func (st *Store) sessionScope(id string) *scope {
	if s, ok := st.sessions.Get(id); ok {
		return s
	}
	s := newScope()
	st.sessions.Set(id, s)
	return s
}

func (st *Store) userScope(id string) *scope {
	if s, ok := st.users.Get(id); ok {
		return s
	}
	s := newScope()
	st.users.Set(id, s)
	return s
}

// SetGlobal stores a value visible to every session and user.
func (st *Store) SetGlobal(key string, value any) { st.global.set(key, value, st.ttl) }

// SetSession stores a value scoped to sessionID, overriding global keys of
// the same name during merge.
func (st *Store) SetSession(sessionID, key string, value any) {
	st.sessionScope(sessionID).set(key, value, st.ttl)
}

// SetUser stores a value scoped to userID, overriding global and session
// keys of the same name during merge.
func (st *Store) SetUser(userID, key string, value any) {
	st.userScope(userID).set(key, value, st.ttl)
}

// DropSession evicts an entire session scope, e.g. on logout.
func (st *Store) DropSession(sessionID string) { st.sessions.Delete(sessionID) }

// DropUser evicts an entire user scope.
func (st *Store) DropUser(userID string) { st.users.Delete(userID) }

// Merged returns global, session, and user scopes flattened into one map
// with later scopes overriding earlier ones, per §4.E's precedence rule.
// Either id may be empty to skip that level.
func (st *Store) Merged(sessionID, userID string) map[string]any {
	out := st.global.snapshot()

	if sessionID != "" {
		if s, ok := st.sessions.Get(sessionID); ok {
			for k, v := range s.snapshot() {
				out[k] = v
			}
		}
	}
	if userID != "" {
		if s, ok := st.users.Get(userID); ok {
			for k, v := range s.snapshot() {
				out[k] = v
			}
		}
	}

	return out
}

// GetString coerces a merged value with spf13/cast, tolerating any
// underlying concrete type (int, bool, time.Time, ...).
func GetString(merged map[string]any, key string) string {
	return cast.ToString(merged[key])
}

// Enricher implements neurobus.ContextEnricher over a Store. sessionKey and
// userKey name the Event-context fields read to pick the session/user
// scopes to merge in.
type Enricher struct {
	store     *Store
	sessionKey string
	userKey    string
}

// NewEnricher builds an Enricher. Empty keys default to "session_id" and
// "user_id".
func NewEnricher(store *Store, sessionKey, userKey string) *Enricher {
	if sessionKey == "" {
		sessionKey = "session_id"
	}
	if userKey == "" {
		userKey = "user_id"
	}
	return &Enricher{store: store, sessionKey: sessionKey, userKey: userKey}
}

// Enrich implements neurobus.ContextEnricher: it merges the store's
// global/session/user scopes under the event's own context (the event's
// own keys win, per §4.E: later/more-specific always overrides) and
// returns a new Event carrying the merged context.
func (en *Enricher) Enrich(_ context.Context, e *neurobus.Event) (*neurobus.Event, error) {
	evCtx := e.Context()

	sessionID := cast.ToString(evCtx[en.sessionKey])
	userID := cast.ToString(evCtx[en.userKey])

	merged := en.store.Merged(sessionID, userID)
	for k, v := range evCtx {
		merged[k] = v
	}
	return e.WithEnrichedContext(merged), nil
}
