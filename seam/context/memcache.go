package context

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/spf13/cast"

	"github.com/TIVerse/neurobus"
)

// MemcacheStore is a memcache-backed alternative to Store, for deployments
// that share scope state across multiple process instances. Each scope
// (global, one per session, one per user) is kept as a single
// JSON-encoded blob under its own key, since memcache has no native key
// enumeration — a per-field key scheme would make Merged an unbounded scan.
type MemcacheStore struct {
	client    *memcache.Client
	keyPrefix string
	ttl       int32 // seconds; memcache's own native expiry, 0 = no expiry
}

// NewMemcacheStore builds a MemcacheStore over servers (host:port pairs).
func NewMemcacheStore(servers []string, keyPrefix string, ttlSeconds int32) *MemcacheStore {
	if keyPrefix == "" {
		keyPrefix = "neurobus:ctx"
	}
	return &MemcacheStore{client: memcache.New(servers...), keyPrefix: keyPrefix, ttl: ttlSeconds}
}

func (s *MemcacheStore) scopeKey(scope string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, scope)
}

func (s *MemcacheStore) readScope(key string) (map[string]any, error) {
	item, err := s.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(item.Value, &out); err != nil {
		return nil, fmt.Errorf("neurobus/context: decoding memcache scope %q: %w", key, err)
	}
	return out, nil
}

func (s *MemcacheStore) writeScope(key string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("neurobus/context: encoding memcache scope %q: %w", key, err)
	}
	return s.client.Set(&memcache.Item{Key: key, Value: b, Expiration: s.ttl})
}

// SetGlobal stores a value visible to every session and user.
func (s *MemcacheStore) SetGlobal(key string, value any) error {
	return s.setScopeKey(s.scopeKey("global"), key, value)
}

// SetSession stores a value scoped to sessionID.
func (s *MemcacheStore) SetSession(sessionID, key string, value any) error {
	return s.setScopeKey(s.scopeKey("session:"+sessionID), key, value)
}

// SetUser stores a value scoped to userID.
func (s *MemcacheStore) SetUser(userID, key string, value any) error {
	return s.setScopeKey(s.scopeKey("user:"+userID), key, value)
}

func (s *MemcacheStore) setScopeKey(scopeKey, key string, value any) error {
	data, err := s.readScope(scopeKey)
	if err != nil {
		return err
	}
	data[key] = value
	return s.writeScope(scopeKey, data)
}

// Merged fetches and flattens the global, session, and user scopes, later
// scopes overriding earlier ones, matching Store.Merged's precedence.
func (s *MemcacheStore) Merged(sessionID, userID string) (map[string]any, error) {
	global, err := s.readScope(s.scopeKey("global"))
	if err != nil {
		return nil, err
	}
	out := global

	if sessionID != "" {
		session, err := s.readScope(s.scopeKey("session:" + sessionID))
		if err != nil {
			return nil, err
		}
		for k, v := range session {
			out[k] = v
		}
	}
	if userID != "" {
		user, err := s.readScope(s.scopeKey("user:" + userID))
		if err != nil {
			return nil, err
		}
		for k, v := range user {
			out[k] = v
		}
	}

	return out, nil
}

// MemcacheEnricher implements neurobus.ContextEnricher over a
// MemcacheStore, mirroring Enricher's session/user key lookup.
type MemcacheEnricher struct {
	store      *MemcacheStore
	sessionKey string
	userKey    string
}

// NewMemcacheEnricher builds a MemcacheEnricher. Empty keys default to
// "session_id" and "user_id".
func NewMemcacheEnricher(store *MemcacheStore, sessionKey, userKey string) *MemcacheEnricher {
	if sessionKey == "" {
		sessionKey = "session_id"
	}
	if userKey == "" {
		userKey = "user_id"
	}
	return &MemcacheEnricher{store: store, sessionKey: sessionKey, userKey: userKey}
}

func (en *MemcacheEnricher) Enrich(_ context.Context, e *neurobus.Event) (*neurobus.Event, error) {
	evCtx := e.Context()

	sessionID := cast.ToString(evCtx[en.sessionKey])
	userID := cast.ToString(evCtx[en.userKey])

	merged, err := en.store.Merged(sessionID, userID)
	if err != nil {
		return nil, err
	}
	for k, v := range evCtx {
		merged[k] = v
	}
	return e.WithEnrichedContext(merged), nil
}
