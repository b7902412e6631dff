package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/botflow/pkg/events"
	"github.com/go-playground/validator/v10"
)

// watermillInboundBus implements InboundBus over any watermill pub/sub.
// Messages are keyed by project and chat so one chat stays on one partition.
type watermillInboundBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	handlers   []InboundHandler
	logger     *slog.Logger
	validate   *validator.Validate
}

func NewInboundBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) InboundBus {
	return &watermillInboundBus{
		publisher:  pub,
		subscriber: sub,
		handlers:   make([]InboundHandler, 0),
		logger:     logger.With("module", "inbound_bus"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (b *watermillInboundBus) PublishInbound(ctx context.Context, event *events.InboundReceived) error {
	if event.Event == nil {
		return errors.New("inbound event is required")
	}

	if err := b.validate.Struct(event.Event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to marshal inbound event", "error", err)

		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, event.Event.ProjectID+":"+event.Event.ChatID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	b.logger.DebugContext(ctx, "Publishing inbound event",
		"project_id", event.Event.ProjectID,
		"chat_id", event.Event.ChatID,
		"kind", event.Event.Kind,
		"topic", events.InboundTopic)

	return b.publisher.Publish(events.InboundTopic, msg)
}

func (b *watermillInboundBus) HandleInbound(handler InboundHandler) {
	b.handlers = append(b.handlers, handler)
}

func (b *watermillInboundBus) SubscribeInbound(ctx context.Context) error {
	if len(b.handlers) == 0 {
		b.logger.Warn("No handlers registered for inbound events")

		return nil
	}

	messages, err := b.subscriber.Subscribe(ctx, events.InboundTopic)
	if err != nil {
		b.logger.Error("Failed to subscribe to inbound topic", "error", err, "topic", events.InboundTopic)

		return err
	}

	go func() {
		for msg := range messages {
			var event events.InboundReceived
			if err := json.Unmarshal(msg.Payload, &event); err != nil || event.Event == nil {
				b.logger.Error("Dropping malformed inbound event", "error", err, "message_id", msg.UUID)
				msg.Ack()

				continue
			}

			success := true

			for _, handler := range b.handlers {
				if err := handler(ctx, &event); err != nil {
					b.logger.Error("Inbound handler failed", "error", err, "chat_id", event.Event.ChatID)

					success = false
				}
			}

			if success {
				msg.Ack()
			} else {
				msg.Nack()
			}
		}
	}()

	b.logger.Info("Inbound subscription started", "topic", events.InboundTopic)

	return nil
}

func (b *watermillInboundBus) Close() error {
	var publisherErr, subscriberErr error

	if b.publisher != nil {
		publisherErr = b.publisher.Close()
	}

	if b.subscriber != nil {
		subscriberErr = b.subscriber.Close()
	}

	return errors.Join(publisherErr, subscriberErr)
}
