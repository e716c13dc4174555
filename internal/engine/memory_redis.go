package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const contextKeyPrefix = "cobranca:context:"

// RedisContextPersister stores context snapshots in Redis so conversations
// survive process restarts. Entries share the store's TTL; Redis expiry is
// the backstop for contexts the in-memory sweep never sees again.
type RedisContextPersister struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ ContextPersister = (*RedisContextPersister)(nil)

func NewRedisContextPersister(client redis.UniversalClient, ttl time.Duration) *RedisContextPersister {
	if client == nil {
		panic("engine: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisContextPersister{client: client, ttl: ttl}
}

func (p *RedisContextPersister) Load(ctx context.Context, sender string) (*ConversationContext, error) {
	raw, err := p.client.Get(ctx, contextKeyPrefix+sender).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load context %s: %w", sender, err)
	}
	var stored ConversationContext
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("engine: decode context %s: %w", sender, err)
	}
	return &stored, nil
}

func (p *RedisContextPersister) Save(ctx context.Context, snapshot *ConversationContext) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("engine: encode context %s: %w", snapshot.Sender, err)
	}
	if err := p.client.Set(ctx, contextKeyPrefix+snapshot.Sender, raw, p.ttl).Err(); err != nil {
		return fmt.Errorf("engine: save context %s: %w", snapshot.Sender, err)
	}
	return nil
}

func (p *RedisContextPersister) Delete(ctx context.Context, sender string) error {
	if err := p.client.Del(ctx, contextKeyPrefix+sender).Err(); err != nil {
		return fmt.Errorf("engine: delete context %s: %w", sender, err)
	}
	return nil
}
