package eventlog

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/wichananm65/heladeria-backend/internal/pubsub"
)

// Logger appends events and announces them on the order-events topic.
type Logger struct {
	repo Repository
	pub  pubsub.Publisher
	now  func() time.Time
}

func NewLogger(repo Repository, pub pubsub.Publisher) *Logger {
	if pub == nil {
		pub = pubsub.Nop{}
	}
	return &Logger{repo: repo, pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

// Log fills in the id and timestamp, stores the event and publishes it.
// A publish failure is only logged; the stored event is what counts.
func (l *Logger) Log(ctx context.Context, e Event) (Event, error) {
	if e.OrderID == "" || e.Type == "" {
		return Event{}, ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if err := l.repo.Append(ctx, e); err != nil {
		return Event{}, err
	}
	if err := l.pub.Publish(ctx, pubsub.TopicOrderEvents, e); err != nil {
		log.Printf("warning: could not publish %s for order %s: %v", e.Type, e.OrderID, err)
	}
	return e, nil
}

func (l *Logger) List(ctx context.Context, q Query) ([]Event, error) {
	return l.repo.List(ctx, q)
}
