package ctxsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisTransport carries messages over a redis pub/sub channel so
// separate processes can share a login.
type RedisTransport struct {
	client  *redis.Client
	channel string
	log     logrus.FieldLogger
}

func NewRedisTransport(client *redis.Client, channel string, logger logrus.FieldLogger) *RedisTransport {
	return &RedisTransport{
		client:  client,
		channel: channel,
		log:     logger.WithFields(logrus.Fields{"component": "ctxsync", "channel": channel}),
	}
}

func (t *RedisTransport) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := t.client.Publish(ctx, t.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, handler func(Message)) error {
	ps := t.client.Subscribe(ctx, t.channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", t.channel, err)
	}
	t.log.Info("Subscribed to session sync channel")

	ch := ps.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				t.log.WithError(err).Warn("Dropping malformed sync message")
				continue
			}
			handler(msg)
		case <-ctx.Done():
			return nil
		}
	}
}
