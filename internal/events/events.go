package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/google/uuid"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Notifier publishes group change events.
type Notifier interface {
	Notify(event models.GroupEvent) error
	Close()
}

// NewGroupEvent builds an event for a change made to a group by actor.
func NewGroupEvent(groupID int, name, action, actor string) models.GroupEvent {
	return models.GroupEvent{
		EventID:   uuid.NewString(),
		GroupID:   groupID,
		Name:      name,
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now().UTC().Unix(),
	}
}

// EventPublisher sends group events to a Pulsar topic.
type EventPublisher struct {
	client   pulsar.Client
	producer pulsar.Producer
}

// NewEventPublisher initializes the Pulsar client and producer
func NewEventPublisher(pulsarURL, topic string) (*EventPublisher, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: pulsarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar producer: %w", err)
	}

	return &EventPublisher{
		client:   client,
		producer: producer,
	}, nil
}

// Notify publishes an event to Pulsar, keyed by group id so events for one group stay ordered
func (p *EventPublisher) Notify(event models.GroupEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not serialize event payload: %w", err)
	}

	_, err = p.producer.Send(context.Background(), &pulsar.ProducerMessage{
		Key:     fmt.Sprintf("%d", event.GroupID),
		Payload: message,
	})
	if err != nil {
		return fmt.Errorf("could not send event to Pulsar: %w", err)
	}

	return nil
}

// Close closes the Pulsar producer and client
func (p *EventPublisher) Close() {
	p.producer.Close()
	p.client.Close()
}

// NopNotifier discards events. Used when no Pulsar URL is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(models.GroupEvent) error { return nil }

func (NopNotifier) Close() {}
