package feed

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wichananm65/heladeria-backend/internal/pubsub"
)

// Topics relayed to websocket clients.
var Topics = []string{pubsub.TopicOrderEvents, pubsub.TopicStockAlerts}

// Relay forwards Redis messages to the hub until ctx is done, subscribing
// again after a lost connection.
func Relay(ctx context.Context, client *redis.Client, hub *Hub, retry time.Duration) {
	for {
		err := pubsub.Subscribe(ctx, client, hub.Broadcast, Topics...)
		if ctx.Err() != nil {
			return
		}
		log.Printf("warning: feed subscription ended: %v, retrying in %s", err, retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
