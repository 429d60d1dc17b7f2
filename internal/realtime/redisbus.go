package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans envelopes out over a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
	ps      *redis.PubSub
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, opts *redis.Options, channel string, log *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newRedisBus(client, channel, log), nil
}

func newRedisBus(client *redis.Client, channel string, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{client: client, channel: channel, log: log}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe implements Bus. Messages are handled on one goroutine until ctx
// ends or the bus is closed.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Envelope)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}
	b.ps = ps
	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn("redis bus: bad envelope", zap.Error(err))
					continue
				}
				fn(env)
			}
		}
	}()
	return nil
}

// Close implements Bus.
func (b *RedisBus) Close() error {
	if b.ps != nil {
		_ = b.ps.Close()
	}
	return b.client.Close()
}
