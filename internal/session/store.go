package session

import (
	"context"
	"time"
)

// Store is a transient key/value store. Implementations must treat an entry
// past its TTL as absent on read, whether or not it has been purged yet.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Scope namespaces a Store to one user session.
type Scope struct {
	store     Store
	sessionID string
}

func NewScope(store Store, sessionID string) Scope {
	return Scope{store: store, sessionID: sessionID}
}

func (s Scope) SessionID() string { return s.sessionID }

func (s Scope) key(name string) string {
	return "session:" + s.sessionID + ":" + name
}

func (s Scope) Get(ctx context.Context, name string) ([]byte, bool, error) {
	return s.store.Get(ctx, s.key(name))
}

func (s Scope) Set(ctx context.Context, name string, value []byte, ttl time.Duration) error {
	return s.store.Set(ctx, s.key(name), value, ttl)
}

func (s Scope) Remove(ctx context.Context, name string) error {
	return s.store.Remove(ctx, s.key(name))
}
