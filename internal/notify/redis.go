package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ledger/internal/log"
	"ledger/internal/store"
)

// RedisNotifier publishes ledger changes on a Redis pub/sub channel. Pub/sub
// is fire and forget: subscribers that are offline miss messages, so
// consumers should also re-evaluate periodically.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	logger  *log.Logger
}

var _ Bus = (*RedisNotifier)(nil)

// NewRedisNotifier connects to addr and checks the connection with PING.
func NewRedisNotifier(ctx context.Context, addr, channel string, logger *log.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisNotifierWithClient(client, channel, logger), nil
}

func NewRedisNotifierWithClient(client redis.UniversalClient, channel string, logger *log.Logger) *RedisNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger.WithComponent(log.ComponentRedis)}
}

func (r *RedisNotifier) Publish(ctx context.Context, change store.Change) error {
	body, err := NewLedgerChangedMessage(change).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Consume subscribes to the channel and hands every message to handler.
// Handler errors are logged; pub/sub has no redelivery.
func (r *RedisNotifier) Consume(ctx context.Context, handler Handler) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "Subscribed to ledger changes", "channel", r.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			msg, err := LedgerChangedMessageFromJSON([]byte(m.Payload))
			if err != nil {
				r.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				r.logger.ErrorContext(ctx, "Failed to handle message",
					log.FieldError, err,
					log.FieldOperation, msg.Op)
			}
		}
	}
}

func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
