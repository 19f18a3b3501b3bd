package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/maplemart/api/internal/services"
)

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic
// consumed by the notification worker.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order event message on the configured topic.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		UserID:         event.UserID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt,
		Metadata:       event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PubSubInventoryEventPublisher publishes stock change events to a Pub/Sub topic.
type PubSubInventoryEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubInventoryEventPublisher constructs a Pub/Sub backed inventory event publisher.
func NewPubSubInventoryEventPublisher(topic *pubsub.Topic) (*PubSubInventoryEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub inventory event publisher: topic is required")
	}
	return &PubSubInventoryEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishInventoryEvent enqueues a stock change message on the configured topic.
func (p *PubSubInventoryEventPublisher) PublishInventoryEvent(ctx context.Context, event services.InventoryEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub inventory event publisher: not initialised")
	}

	adjustments := make([]stockAdjustmentMessage, 0, len(event.Adjustments))
	for _, adj := range event.Adjustments {
		adjustments = append(adjustments, stockAdjustmentMessage{
			ProductID: adj.ProductID,
			Quantity:  adj.Quantity,
		})
	}

	data, err := p.marshal(inventoryEventMessage{
		Type:        event.Type,
		OrderID:     event.OrderID,
		Adjustments: adjustments,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal inventory event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish inventory event: %w", err)
	}
	return nil
}

type orderEventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type inventoryEventMessage struct {
	Type        string                   `json:"type"`
	OrderID     string                   `json:"orderId"`
	Adjustments []stockAdjustmentMessage `json:"adjustments"`
	OccurredAt  time.Time                `json:"occurredAt"`
}

type stockAdjustmentMessage struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
