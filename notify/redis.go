package notify

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-board/domain"
)

// RedisPublisher sends board changes to a Redis pub/sub channel so other
// instances can refresh their subscribers.
type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{redis: client, channel: channel}
}

// Publish implements domain.Notifier. History transitions are local to an
// instance and are not forwarded.
func (p *RedisPublisher) Publish(ctx context.Context, c domain.Change) error {
	if c.Type == domain.HistoryChanged {
		return nil
	}
	payload, err := sonic.Marshal(c)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, payload).Err()
}

// SubscribeUpdates relays changes published by other instances into sink
// until ctx is done. Changes carrying origin are this instance's own and are
// skipped. The subscription is re-established when the channel closes.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel, origin string, sink domain.Notifier) {
	for {
		sub := rc.Subscribe(ctx, channel)
		relay(ctx, logger, sub.Channel(), origin, sink)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func relay(ctx context.Context, logger *log.Logger, ch <-chan *redis.Message, origin string, sink domain.Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var c domain.Change
			if err := sonic.UnmarshalString(msg.Payload, &c); err != nil {
				logger.Errorf("unable to parse board change: %v", err)
				continue
			}
			if origin != "" && c.Origin == origin {
				continue
			}
			if err := sink.Publish(ctx, c); err != nil {
				logger.WithError(err).WithField("type", c.Type).Error("relay board change")
			}
		}
	}
}
