package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/rs/zerolog"
)

// EventConsumer receives group events from a Pulsar subscription.
type EventConsumer struct {
	client   pulsar.Client
	consumer pulsar.Consumer
}

// NewEventConsumer initializes the Pulsar client and consumer.
func NewEventConsumer(pulsarURL, topic, subscription string) (*EventConsumer, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: pulsarURL})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscription,
		Type:             pulsar.Shared,
		DLQ: &pulsar.DLQPolicy{
			MaxDeliveries:   3,
			DeadLetterTopic: topic + "-dlq",
		},
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar consumer: %w", err)
	}

	return &EventConsumer{client: client, consumer: consumer}, nil
}

// DecodeGroupEvent parses a message payload into a group event.
func DecodeGroupEvent(payload []byte) (models.GroupEvent, error) {
	var event models.GroupEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("error unmarshaling group event: %w", err)
	}
	if event.GroupID == 0 || event.Action == "" {
		return event, errors.New("group event is missing groupId or action")
	}
	return event, nil
}

// Consume receives messages until ctx is cancelled. Messages that cannot be
// decoded or handled are nacked and end up in the dead letter topic.
func (c *EventConsumer) Consume(ctx context.Context, log *zerolog.Logger, handle func(models.GroupEvent) error) error {
	for {
		msg, err := c.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Error receiving message")
			continue
		}

		event, err := DecodeGroupEvent(msg.Payload())
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID().String()).Msg("Discarding malformed group event")
			c.consumer.Nack(msg)
			continue
		}

		if err := handle(event); err != nil {
			log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to handle group event")
			c.consumer.Nack(msg)
			continue
		}

		c.consumer.Ack(msg)
	}
}

// Close cleans up the Pulsar consumer and client.
func (c *EventConsumer) Close() {
	c.consumer.Close()
	c.client.Close()
}
