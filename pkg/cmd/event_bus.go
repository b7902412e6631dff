package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/botflow/pkg/channels/gochannel"
	"github.com/dukex/botflow/pkg/channels/kafka"
	"github.com/dukex/botflow/pkg/eventbus"
)

// Buses groups the transports of one process. All of them share the
// underlying pub/sub of the chosen provider.
type Buses struct {
	Events    eventbus.EventBus
	Inbound   eventbus.InboundBus
	Messenger *eventbus.OutboundMessenger
}

// Close releases the shared pub/sub once.
func (b *Buses) Close() error {
	return b.Events.Close()
}

// NewBuses connects to the event bus provider. group names the Kafka consumer
// group of this process role.
func NewBuses(provider string, logger *slog.Logger, brokers, group string) (*Buses, error) {
	pub, sub, err := newPubSub(provider, logger, brokers, group)
	if err != nil {
		return nil, err
	}

	return &Buses{
		Events:    eventbus.NewWatermillEventBus(pub, sub),
		Inbound:   eventbus.NewInboundBus(pub, sub, logger),
		Messenger: eventbus.NewOutboundMessenger(pub, logger),
	}, nil
}

func newPubSub(provider string, logger *slog.Logger, brokers, group string) (message.Publisher, message.Subscriber, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), group)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	case "gochannel", "memory", "":
		return gochannel.CreateChannel(wlogger)
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
