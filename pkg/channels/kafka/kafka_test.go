package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/botflow/pkg/events"
	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "engine")
	assert.EqualError(t, err, "no Kafka brokers configured")
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", nil)
	msg.Metadata.Set(events.EventMetadataKey, "project-1:chat-1")

	key, err := partitionKey(events.InboundTopic, msg)
	assert.NoError(t, err)
	assert.Equal(t, "project-1:chat-1", key)
}
