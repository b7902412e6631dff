package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/botflow/pkg/events"
	"github.com/dukex/botflow/pkg/models"
)

// OutboundMessenger hands rendered messages to the chat transport through the
// outbound topic. It satisfies query.Messenger.
type OutboundMessenger struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewOutboundMessenger(pub message.Publisher, logger *slog.Logger) *OutboundMessenger {
	return &OutboundMessenger{publisher: pub, logger: logger.With("module", "outbound")}
}

func (m *OutboundMessenger) Send(ctx context.Context, msg *models.OutboundMessage) error {
	if msg == nil || msg.ChatID == "" {
		return errors.New("outbound message needs a chat")
	}

	payload, err := json.Marshal(events.NewMessageOutbound(msg))
	if err != nil {
		return err
	}

	out := message.NewMessage(watermill.NewUUID(), payload)
	out.SetContext(ctx)
	out.Metadata.Set(events.EventMetadataKey, msg.ProjectID+":"+msg.ChatID)
	out.Metadata.Set(events.EventTypeMetadataKey, string(events.MessageOutboundEvent))

	m.logger.DebugContext(ctx, "Publishing outbound message", "chat_id", msg.ChatID, "topic", events.OutboundTopic)

	return m.publisher.Publish(events.OutboundTopic, out)
}
