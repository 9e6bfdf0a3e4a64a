package chathub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay carries envelopes between the hubs of all nodes.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Listen blocks, calling deliver for every envelope in receive order,
	// until ctx is cancelled.
	Listen(ctx context.Context, deliver func(Envelope)) error
}

// RedisRelay relays envelopes over a Redis Pub/Sub channel.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisRelay(rdb redis.UniversalClient, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: channel, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Listen(ctx context.Context, deliver func(Envelope)) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("fan-out relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("undecodable relay payload", zap.Error(err))
				continue
			}
			deliver(env)
		}
	}
}
