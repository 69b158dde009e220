package signaling

import (
	"context"

	"github.com/rs/zerolog/log"

	redisclient "github.com/deskviewer/relay-server-go/internal/redis"
)

// Broker fans discovery broadcasts out across relay instances over redis
// pub/sub. Local delivery also happens through the subscription, so a frame
// reaches each connection exactly once no matter which instance published it.
type Broker struct {
	redis    *redisclient.Client
	registry *Registry
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client, registry *Registry) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		redis:    redisClient,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
	}
	go b.subscribe()
	return b
}

func (b *Broker) Publish(data []byte) error {
	return b.redis.Publish(b.ctx, redisclient.DiscoveryChannel, data).Err()
}

func (b *Broker) subscribe() {
	pubsub := b.redis.Subscribe(b.ctx, redisclient.DiscoveryChannel)
	defer pubsub.Close()

	log.Debug().Str("channel", redisclient.DiscoveryChannel).Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.registry.Broadcast([]byte(msg.Payload))
		}
	}
}

func (b *Broker) Close() {
	b.cancel()
}
