package feed

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "quickshare:room:"

// RedisTransport publishes on one pub/sub channel per room code and
// pattern-subscribes to all of them.
type RedisTransport struct {
	rdb   *redis.Client
	codec Codec
	log   *slog.Logger
}

func NewRedisTransport(rdb *redis.Client, codec Codec, log *slog.Logger) *RedisTransport {
	return &RedisTransport{rdb: rdb, codec: codec, log: log}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Publish(ctx context.Context, ev ChangeEvent) error {
	b, err := t.codec.Marshal(ev)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, redisChannelPrefix+ev.RoomCode, b).Err()
}

func (t *RedisTransport) Run(ctx context.Context, deliver func(ChangeEvent)) error {
	ps := t.rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ChangeEvent
			if err := t.codec.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				t.log.Warn("redis feed: bad message", "channel", msg.Channel, "error", err)
				continue
			}
			deliver(ev)
		}
	}
}

// Close is a no-op; the client is owned by the container.
func (t *RedisTransport) Close() error { return nil }
