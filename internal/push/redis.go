package push

import (
	"context"
	"encoding/json"
	"fmt"

	"fuel-order-service/internal/redisclient"
	"fuel-order-service/internal/util"

	"go.uber.org/zap"
)

// RedisChannel fans messages out over Redis pub/sub so every API instance can serve
// the live stream of any user.
type RedisChannel struct {
	client *redisclient.Client
	buffer int
	logger *zap.Logger
}

// NewRedisChannel creates a new Redis-backed push channel
func NewRedisChannel(client *redisclient.Client) *RedisChannel {
	return &RedisChannel{client: client, buffer: 32, logger: util.Named("push")}
}

func (r *RedisChannel) PushToUser(ctx context.Context, userID int64, msg Message) error {
	return r.publish(ctx, UserChannel(userID), msg)
}

func (r *RedisChannel) PushToRole(ctx context.Context, role string, msg Message) error {
	return r.publish(ctx, RoleChannel(role), msg)
}

func (r *RedisChannel) publish(ctx context.Context, channel string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}
	if err := r.client.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on the user's channel and the role channel
func (r *RedisChannel) Subscribe(ctx context.Context, userID int64, role string) (<-chan Message, func(), error) {
	pubsub := r.client.Subscribe(ctx, UserChannel(userID), RoleChannel(role))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Message, r.buffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					r.logger.Warn("Dropping malformed push message",
						zap.String("channel", raw.Channel),
						zap.Error(err))
					continue
				}
				select {
				case out <- msg:
				default:
					// slow reader; at-most-once delivery allows the drop
				}
			}
		}
	}()

	return out, cancel, nil
}
