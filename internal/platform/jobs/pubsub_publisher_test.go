package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/services"
)

func newPubSubTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv, topic := newPubSubTopic(t, "order-events")

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurred := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           services.OrderEventPaid,
		OrderID:        "ord_test",
		OrderNumber:    "ORD123456780001",
		UserID:         "user-1",
		PreviousStatus: string(domain.OrderStatusPending),
		CurrentStatus:  string(domain.OrderStatusPaid),
		ActorID:        "user-1",
		OccurredAt:     occurred,
		Metadata:       map[string]any{"paymentReference": "pay_test"},
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != services.OrderEventPaid || payload.OrderID != "ord_test" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Metadata["paymentReference"] != "pay_test" {
		t.Fatalf("expected payment reference in metadata, got %#v", payload.Metadata)
	}
	if attr := messages[0].Attributes["eventType"]; attr != services.OrderEventPaid {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["userId"]; attr != "user-1" {
		t.Fatalf("expected userId attribute, got %q", attr)
	}
}

func TestPubSubInventoryEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv, topic := newPubSubTopic(t, "stock-events")

	publisher, err := NewPubSubInventoryEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubInventoryEventPublisher: %v", err)
	}

	event := services.InventoryEvent{
		Type:    services.InventoryEventReleased,
		OrderID: "ord_test",
		Adjustments: []domain.StockAdjustment{
			{ProductID: "prd-1", Quantity: 2},
			{ProductID: "prd-2", Quantity: 1},
		},
		OccurredAt: time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC),
	}

	if err := publisher.PublishInventoryEvent(ctx, event); err != nil {
		t.Fatalf("PublishInventoryEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload inventoryEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != services.InventoryEventReleased {
		t.Fatalf("unexpected event type %q", payload.Type)
	}
	if len(payload.Adjustments) != 2 || payload.Adjustments[0].ProductID != "prd-1" {
		t.Fatalf("unexpected adjustments %#v", payload.Adjustments)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_test" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
}

func TestPubSubPublishersRequireTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
	if _, err := NewPubSubInventoryEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
