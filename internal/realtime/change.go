// README: Change events published by services so tablets can re-sync shared state.
package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"expo/internal/types"
)

const Channel = "expo:changes"

// Change identifies a mutated entity. Clients treat any change as a cue to
// refresh their filtered views; the payload carries no entity state on purpose.
type Change struct {
	Entity  string   `json:"entity"` // "order" or "item"
	ID      types.ID `json:"id"`
	OrderID types.ID `json:"order_id,omitempty"`
}

// Publisher is what services see; failures to publish are logged, never returned,
// because a missed change event degrades to the clients' next poll.
type Publisher interface {
	Publish(ctx context.Context, ch Change)
}

type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(r *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: r}
}

func (p *RedisPublisher) Publish(ctx context.Context, ch Change) {
	data, err := json.Marshal(ch)
	if err != nil {
		log.Printf("realtime: marshal change: %v", err)
		return
	}
	if err := p.redis.Publish(ctx, Channel, data).Err(); err != nil {
		log.Printf("realtime: publish change: %v", err)
	}
}

// NopPublisher is used in tests and when the change feed is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Change) {}
