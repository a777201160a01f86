package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/tbxark/leadagent/types"
)

// HistoryStore is the append-only transcript of a session, routed by the
// session id in ctx. Ordinals are assigned on append and start at 1.
type HistoryStore interface {
	Load(ctx context.Context) ([]types.Turn, error)
	Append(ctx context.Context, turns ...types.Turn) ([]types.Turn, error)
	Clear(ctx context.Context) error
}

type MemoryHistory struct {
	mu    sync.RWMutex
	turns map[string][]types.Turn
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{turns: map[string][]types.Turn{}}
}

func (m *MemoryHistory) Load(ctx context.Context) ([]types.Turn, error) {
	id, ok := SessionIDFromContext(ctx)
	if !ok {
		return nil, errNoSessionKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Turn(nil), m.turns[id]...), nil
}

func (m *MemoryHistory) Append(ctx context.Context, turns ...types.Turn) ([]types.Turn, error) {
	id, ok := SessionIDFromContext(ctx)
	if !ok {
		return nil, errNoSessionKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.turns[id]
	appended := numberTurns(turns, len(existing))
	m.turns[id] = append(existing, appended...)
	return appended, nil
}

func (m *MemoryHistory) Clear(ctx context.Context) error {
	id, ok := SessionIDFromContext(ctx)
	if !ok {
		return errNoSessionKey
	}
	m.mu.Lock()
	delete(m.turns, id)
	m.mu.Unlock()
	return nil
}

// RedisHistory keeps each session's turns in a Redis list. The ordinal of a
// turn is its list position, so it is never stored.
type RedisHistory struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedisHistory(client redis.UniversalClient, ttl time.Duration) *RedisHistory {
	return &RedisHistory{client: client, namespace: "leadagent:history", ttl: ttl}
}

func (r *RedisHistory) key(ctx context.Context) (string, error) {
	id, ok := SessionIDFromContext(ctx)
	if !ok {
		return "", errNoSessionKey
	}
	return r.namespace + ":" + id, nil
}

func (r *RedisHistory) Load(ctx context.Context) ([]types.Turn, error) {
	key, err := r.key(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	turns := make([]types.Turn, 0, len(raw))
	for i, item := range raw {
		var t types.Turn
		if err := sonic.UnmarshalString(item, &t); err != nil {
			return nil, fmt.Errorf("decode turn %d of %s: %w", i, key, err)
		}
		t.Ordinal = i + 1
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *RedisHistory) Append(ctx context.Context, turns ...types.Turn) ([]types.Turn, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	key, err := r.key(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(turns))
	for _, t := range turns {
		t.Ordinal = 0
		raw, err := sonic.MarshalString(t)
		if err != nil {
			return nil, fmt.Errorf("encode turn: %w", err)
		}
		values = append(values, raw)
	}

	pipe := r.client.TxPipeline()
	push := pipe.RPush(ctx, key, values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return numberTurns(turns, int(push.Val())-len(turns)), nil
}

func (r *RedisHistory) Clear(ctx context.Context) error {
	key, err := r.key(ctx)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func numberTurns(turns []types.Turn, offset int) []types.Turn {
	out := make([]types.Turn, len(turns))
	for i, t := range turns {
		t.Ordinal = offset + i + 1
		out[i] = t
	}
	return out
}

var (
	_ HistoryStore = (*MemoryHistory)(nil)
	_ HistoryStore = (*RedisHistory)(nil)
)
