// Package eventbus provides event-driven communication between the HTTP
// surface, the engine and downstream consumers of execution lifecycle events.
package eventbus

import (
	"context"

	"github.com/dukex/botflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// InboundHandler is called for every chat event taken off the inbound topic.
type InboundHandler func(ctx context.Context, event *events.InboundReceived) error

// InboundBus queues chat events between transports and the engine.
type InboundBus interface {
	PublishInbound(ctx context.Context, event *events.InboundReceived) error
	HandleInbound(handler InboundHandler)
	SubscribeInbound(ctx context.Context) error
	Close() error
}
