// Package pubsub carries order events and stock alerts from the API to the
// live feed over Redis channels.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	TopicOrderEvents = "order-events"
	TopicStockAlerts = "stock-alerts"
)

// Publisher sends v, encoded as JSON, on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// NewRedisClient builds a client the way the rest of the services do.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Nop drops every message. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Message is one published payload.
type Message struct {
	Topic   string
	Payload json.RawMessage
}

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Publish(ctx context.Context, topic string, v any) error {
	if r.Err != nil {
		return r.Err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Topic: topic, Payload: data})
	return nil
}

// Messages returns the messages published on topic, oldest first.
func (r *Recorder) Messages(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0)
	for _, m := range r.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Subscribe listens on topics and calls handle for every message until ctx is
// done or the subscription closes.
func Subscribe(ctx context.Context, client *redis.Client, handle func(Message), topics ...string) error {
	sub := client.Subscribe(ctx, topics...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %v: %w", topics, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle(Message{Topic: msg.Channel, Payload: json.RawMessage(msg.Payload)})
		}
	}
}
