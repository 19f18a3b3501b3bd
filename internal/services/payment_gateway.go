package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PaymentDeclinedError reports a charge the gateway refused. The order is
// left in its current state so the caller may retry.
type PaymentDeclinedError struct {
	OrderID string
	Reason  string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined for order %s: %s", e.OrderID, e.Reason)
}

// SimulatedGatewayDeps configures the stand-in payment gateway.
type SimulatedGatewayDeps struct {
	// SuccessRate is the probability in [0, 1] that a charge succeeds.
	SuccessRate float64
	// Roll yields a value in [0, 1) compared against SuccessRate.
	Roll  func() float64
	Clock func() time.Time
}

type simulatedGateway struct {
	successRate float64
	roll        func() float64
	clock       func() time.Time
	mu          sync.Mutex
}

// NewSimulatedPaymentGateway builds a gateway that approves charges with the
// configured probability. It stands in for a real payment provider.
func NewSimulatedPaymentGateway(deps SimulatedGatewayDeps) (PaymentGateway, error) {
	if deps.SuccessRate < 0 || deps.SuccessRate > 1 {
		return nil, errors.New("payment gateway: success rate must be between 0 and 1")
	}
	roll := deps.Roll
	if roll == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		roll = rng.Float64
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &simulatedGateway{
		successRate: deps.SuccessRate,
		roll:        roll,
		clock:       func() time.Time { return clock().UTC() },
	}, nil
}

func (g *simulatedGateway) Charge(ctx context.Context, order Order) (PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return PaymentResult{}, err
	}
	g.mu.Lock()
	outcome := g.roll()
	g.mu.Unlock()
	if outcome >= g.successRate {
		return PaymentResult{}, &PaymentDeclinedError{OrderID: order.ID, Reason: "insufficient funds"}
	}
	return PaymentResult{
		Reference: "pay_" + ulid.Make().String(),
		ChargedAt: g.clock(),
	}, nil
}
