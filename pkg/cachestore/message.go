package cachestore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Message is one pub/sub delivery handed to a subscription callback.
type Message struct {
	// Type is the store's delivery kind: "message" for plain channel
	// deliveries, "pmessage" for pattern-derived ones.
	Type string
	// Channel the message was published to.
	Channel string
	// Pattern that matched the delivery, empty for plain subscriptions.
	Pattern string
	// Data is the raw payload.
	Data []byte
}

// Callback consumes messages for one subscription. It has exactly two
// variants: SyncCallback runs inline and cannot fail, AsyncCallback receives
// the listener context and may fail, which terminates the listener. Delivery
// is single-flight and in receipt order per channel; a second message is
// never delivered while an invocation is in flight.
type Callback interface {
	invoke(ctx context.Context, m *Message) error
}

// SyncCallback is the blocking callback variant.
type SyncCallback func(m *Message)

func (f SyncCallback) invoke(_ context.Context, m *Message) error {
	f(m)
	return nil
}

// AsyncCallback is the context-aware callback variant. The context is the
// listener's and is cancelled on forced shutdown. Returning a non-nil error
// terminates the listener; the error is observable through WaitSubscription
// and the subscription handle.
type AsyncCallback func(ctx context.Context, m *Message) error

func (f AsyncCallback) invoke(ctx context.Context, m *Message) error {
	return f(ctx, m)
}

func newMessage(m *redis.Message) *Message {
	typ := "message"
	if m.Pattern != "" {
		typ = "pmessage"
	}
	return &Message{
		Type:    typ,
		Channel: m.Channel,
		Pattern: m.Pattern,
		Data:    []byte(m.Payload),
	}
}
