package agent

import (
	"context"
	"errors"
	"time"
)

var errNoSessionKey = errors.New("session id not found in context")

type sessionKeyContext struct{}

// WithSessionID routes store operations in ctx to the given session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKeyContext{}, id)
}

// SessionIDFromContext gets the routing key from the context.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyContext{}).(string)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Store namespaces a Cache and resolves its key from the context.
type Store[S any] struct {
	core      Cache[S]
	namespace string
	keyFn     func(ctx context.Context) (string, bool)
}

func NewStore[S any](core Cache[S], namespace string, keyFn func(ctx context.Context) (string, bool)) Store[S] {
	return Store[S]{
		core:      core,
		namespace: namespace,
		keyFn:     keyFn,
	}
}

func (c Store[S]) key(ctx context.Context) (string, bool) {
	key, exist := c.keyFn(ctx)
	if !exist {
		return "", false
	}
	return c.namespace + ":" + key, true
}

func (c Store[S]) Set(ctx context.Context, val S) error {
	key, ok := c.key(ctx)
	if !ok {
		return errNoSessionKey
	}
	return c.core.Set(ctx, key, val)
}

func (c Store[S]) Get(ctx context.Context) (S, bool, error) {
	key, ok := c.key(ctx)
	if !ok {
		var zero S
		return zero, false, errNoSessionKey
	}
	return c.core.Get(ctx, key)
}

func (c Store[S]) Del(ctx context.Context) error {
	key, ok := c.key(ctx)
	if !ok {
		return errNoSessionKey
	}
	return c.core.Del(ctx, key)
}

// StateStore keeps one State per session.
type StateStore struct {
	store Store[State]
}

func NewStateStore(core Cache[State]) *StateStore {
	return &StateStore{store: NewStore(core, "leadagent:state", SessionIDFromContext)}
}

// NewMemoryStateStore keeps states in process for ttl; zero means no expiry.
func NewMemoryStateStore(ttl time.Duration) *StateStore {
	return NewStateStore(NewMemoryCache[State](ttl))
}

// Load returns a private copy of the session state.
func (s *StateStore) Load(ctx context.Context) (*State, bool, error) {
	st, ok, err := s.store.Get(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return st.Clone(), true, nil
}

func (s *StateStore) Save(ctx context.Context, st *State) error {
	if st == nil {
		return errors.New("nil state")
	}
	return s.store.Set(ctx, *st.Clone())
}

func (s *StateStore) Delete(ctx context.Context) error {
	return s.store.Del(ctx)
}
