package fanout

import (
	"context"
	"encoding/json"

	"github.com/quocanhngo/managex/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisChannel = "managex:fanout"

// RedisRelay publishes through Redis Pub/Sub so that every instance delivers
// to its own local subscribers (horizontal scaling)
type RedisRelay struct {
	*Registry
	rdb *redis.Client
}

// NewRedisRelay creates a Redis-backed Broker
func NewRedisRelay(rdb *redis.Client, log zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		Registry: NewRegistry(log),
		rdb:      rdb,
	}
}

// Publish sends the event to all instances. Errors are logged, never returned.
func (r *RedisRelay) Publish(ctx context.Context, ch Channel, event *model.WSEvent) {
	data, err := encodeEnvelope(ch, event)
	if err != nil {
		r.log.Error().Err(err).Str("channel", string(ch)).Msg("failed to marshal event")
		return
	}

	if err := r.rdb.Publish(ctx, redisChannel, data).Err(); err != nil {
		r.log.Error().Err(err).Str("channel", string(ch)).Msg("failed to publish to redis")
	}
}

// Run subscribes to Redis and delivers events to local subscribers until ctx is done
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	r.log.Info().Str("redis_channel", redisChannel).Msg("redis pub/sub relay started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.Warn().Err(err).Msg("discarding malformed fanout envelope")
		return
	}
	r.Deliver(env.Channel, env.Event)
}
