package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSimulatedGatewayApprovesUnderSuccessRate(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	gateway, err := NewSimulatedPaymentGateway(SimulatedGatewayDeps{
		SuccessRate: 0.9,
		Roll:        func() float64 { return 0.5 },
		Clock:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	result, err := gateway.Charge(context.Background(), Order{ID: "ord-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.Reference, "pay_") {
		t.Fatalf("expected pay_ reference prefix, got %q", result.Reference)
	}
	if !result.ChargedAt.Equal(now) {
		t.Fatalf("expected chargedAt %v, got %v", now, result.ChargedAt)
	}
}

func TestSimulatedGatewayDeclinesAtOrAboveSuccessRate(t *testing.T) {
	gateway, err := NewSimulatedPaymentGateway(SimulatedGatewayDeps{
		SuccessRate: 0.9,
		Roll:        func() float64 { return 0.9 },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	_, err = gateway.Charge(context.Background(), Order{ID: "ord-1"})
	var declined *PaymentDeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected PaymentDeclinedError, got %v", err)
	}
	if declined.OrderID != "ord-1" {
		t.Fatalf("expected order id in decline, got %q", declined.OrderID)
	}
}

func TestSimulatedGatewayAlwaysDeclinesAtZeroRate(t *testing.T) {
	gateway, err := NewSimulatedPaymentGateway(SimulatedGatewayDeps{
		SuccessRate: 0,
		Roll:        func() float64 { return 0 },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	if _, err := gateway.Charge(context.Background(), Order{ID: "ord-1"}); err == nil {
		t.Fatalf("expected decline at zero success rate")
	}
}

func TestSimulatedGatewayRejectsInvalidRate(t *testing.T) {
	if _, err := NewSimulatedPaymentGateway(SimulatedGatewayDeps{SuccessRate: 1.5}); err == nil {
		t.Fatalf("expected construction error for rate above 1")
	}
}

func TestSimulatedGatewayHonoursContextCancellation(t *testing.T) {
	gateway, err := NewSimulatedPaymentGateway(SimulatedGatewayDeps{SuccessRate: 1})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gateway.Charge(ctx, Order{ID: "ord-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
