// README: One-shot latches backed by Redis SETNX; guard duplicate firing of timer-driven effects.
package latch

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Latch acquires a named one-shot flag. Exactly one caller wins per key; the
// key expires so stale cycles cannot pin memory forever. Callers still check
// persisted state before acting — the latch only suppresses duplicate work,
// it is not the correctness guard.
type Latch interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// Keys outlive any plausible cycle but not a restart week.
const keyTTL = 24 * time.Hour

type RedisLatch struct {
	redis *redis.Client
}

func NewRedisLatch(r *redis.Client) *RedisLatch {
	return &RedisLatch{redis: r}
}

func (l *RedisLatch) Acquire(ctx context.Context, key string) (bool, error) {
	return l.redis.SetNX(ctx, key, "1", keyTTL).Result()
}

// Memory is an in-process latch for tests and single-node setups.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Acquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}
