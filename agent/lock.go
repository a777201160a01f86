package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes turns of the same session. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

type memoryLockEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a per-key mutex for a single process.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryLockEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: map[string]*memoryLockEntry{}}
}

func (l *MemoryLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[sessionID]
	if !ok {
		e = &memoryLockEntry{ch: make(chan struct{}, 1)}
		l.entries[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, e)
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(sessionID, e)
		})
	}, nil
}

func (l *MemoryLocker) release(sessionID string, e *memoryLockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, sessionID)
	}
	l.mu.Unlock()
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker holds a SET NX PX lock with a random token and releases it
// only if the token still matches.
type RedisLocker struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	retry     time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{
		client:    client,
		namespace: "leadagent:lock",
		ttl:       ttl,
		retry:     50 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := l.namespace + ":" + sessionID
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// ctx may already be done when the turn finishes.
					_ = l.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{key}, token).Err()
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
		case <-ticker.C:
		}
	}
}

var (
	_ Locker = (*MemoryLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
