package messaging

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts *redis.Client to RedisClient.
type GoRedisClient struct {
	client *redis.Client
	subs   []*redis.PubSub
}

// NewGoRedisClient wraps a go-redis client. Close only closes subscriptions;
// the client itself is owned by the caller.
func NewGoRedisClient(client *redis.Client) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Publish implements RedisClient.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, message []byte) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscribe implements RedisClient. The returned channel closes when ctx ends.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	sub := c.client.Subscribe(ctx, channels...)
	// Wait for the subscription confirmation so no early message is lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	c.subs = append(c.subs, sub)

	out := make(chan RedisMessage, 64)
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: m.Channel, Payload: m.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements RedisClient.
func (c *GoRedisClient) Close() error {
	var first error
	for _, s := range c.subs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.subs = nil
	return first
}
