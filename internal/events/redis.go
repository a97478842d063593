package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisEmitter publishes every Emit to a redis channel, for UIs or
// sibling services running outside this process.
type RedisEmitter struct {
	client  *redis.Client
	channel string
}

// NewRedisEmitter connects to addr and returns a RedisEmitter publishing
// to channel.
func NewRedisEmitter(addr, channel string) *RedisEmitter {
	return &RedisEmitter{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Emit implements Emitter.
func (r *RedisEmitter) Emit(event string, payload any) error {
	data, err := json.Marshal(Message{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshaling payload for event %q: %w", event, err)
	}
	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing event %q to redis: %w", event, err)
	}
	return nil
}

// Close releases the underlying redis connection.
func (r *RedisEmitter) Close() error {
	return r.client.Close()
}
