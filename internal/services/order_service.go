package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the supplied command failed validation.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates the requested transition is not allowed
	// from the order's current status.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderCartEmpty indicates checkout was attempted with no cart items.
	ErrOrderCartEmpty = errors.New("order: cart is empty")
	// ErrOrderPaymentFailed indicates the payment gateway declined the charge.
	// The order stays pending and the client may retry.
	ErrOrderPaymentFailed = errors.New("order: payment failed")
	// ErrOrderConflict indicates a concurrent update beat this request.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing datastore was unreachable.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// UnavailableItemsError reports the cart lines that blocked checkout.
// No order is created and no stock is changed when it is returned.
type UnavailableItemsError struct {
	Items []domain.UnavailableItem
}

func (e *UnavailableItemsError) Error() string {
	return fmt.Sprintf("order: %d cart item(s) unavailable", len(e.Items))
}

func (e *UnavailableItemsError) Unwrap() error { return ErrOrderInvalidState }

// Event types emitted by the order service.
const (
	OrderEventCreated   = "order.created"
	OrderEventPaid      = "order.paid"
	OrderEventShipped   = "order.shipped"
	OrderEventDelivered = "order.delivered"
	OrderEventCancelled = "order.cancelled"

	InventoryEventReserved = "inventory.reserved"
	InventoryEventReleased = "inventory.released"
)

// DefaultPaymentMethod is recorded on orders paid without an explicit method.
const DefaultPaymentMethod = "simulated"

// OrderServiceDeps wires repositories, policies, and collaborators into the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Carts    repositories.CartRepository
	Payments PaymentGateway
	// CancellableStatuses lists the statuses a customer may cancel from.
	// Defaults to pending and paid.
	CancellableStatuses []domain.OrderStatus
	Events              OrderEventPublisher
	InventoryEvents     InventoryEventPublisher
	Clock               func() time.Time
	IDGenerator         func() string
	// NumberSuffix yields the 4-digit random component of order numbers.
	NumberSuffix func() int
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	carts       repositories.CartRepository
	payments    PaymentGateway
	cancellable map[domain.OrderStatus]struct{}
	events      OrderEventPublisher
	stockEvents InventoryEventPublisher
	clock       func() time.Time
	idGen       func() string
	suffix      func() int
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs the order lifecycle service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	suffix := deps.NumberSuffix
	if suffix == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		suffix = func() int { return rng.Intn(10000) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	statuses := deps.CancellableStatuses
	if len(statuses) == 0 {
		statuses = []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPaid}
	}
	cancellable := make(map[domain.OrderStatus]struct{}, len(statuses))
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, fmt.Errorf("order service: unknown cancellable status %q", status)
		}
		cancellable[status] = struct{}{}
	}
	return &orderService{
		orders:      deps.Orders,
		carts:       deps.Carts,
		payments:    deps.Payments,
		cancellable: cancellable,
		events:      deps.Events,
		stockEvents: deps.InventoryEvents,
		clock:       func() time.Time { return clock().UTC() },
		idGen:       idGen,
		suffix:      suffix,
		logger:      logger,
	}, nil
}

func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return Order{}, err
	}

	itemIDs := make([]string, 0, len(cmd.ItemIDs))
	for _, id := range cmd.ItemIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return Order{}, fmt.Errorf("%w: cart item id must not be blank", ErrOrderInvalidInput)
		}
		itemIDs = append(itemIDs, id)
	}
	if len(itemIDs) == 0 {
		items, err := s.carts.ListItems(ctx, userID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		for _, item := range items {
			itemIDs = append(itemIDs, item.ID)
		}
	}
	if len(itemIDs) == 0 {
		return Order{}, ErrOrderCartEmpty
	}

	now := s.clock()
	order := domain.Order{
		ID:      s.nextOrderID(),
		Number:  s.generateOrderNumber(now),
		UserID:  userID,
		Status:  domain.OrderStatusPending,
		Address: trimAddress(cmd.Address),
		Remark:  strings.TrimSpace(cmd.Remark),
	}

	created, err := s.orders.Checkout(ctx, repositories.CheckoutRequest{
		Order:       order,
		CartItemIDs: itemIDs,
		Now:         now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          OrderEventCreated,
		OrderID:       created.ID,
		OrderNumber:   created.Number,
		UserID:        created.UserID,
		CurrentStatus: string(created.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata:      map[string]any{"totalAmount": created.TotalAmount, "lineCount": len(created.Lines)},
	})
	s.publishInventoryEvent(ctx, InventoryEvent{
		Type:        InventoryEventReserved,
		OrderID:     created.ID,
		Adjustments: lineAdjustments(created.Lines),
		OccurredAt:  now,
	})
	return created, nil
}

func (s *orderService) Pay(ctx context.Context, cmd PayOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}
	method := strings.TrimSpace(cmd.Method)
	if method == "" {
		method = DefaultPaymentMethod
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != userID {
		return Order{}, ErrOrderForbidden
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.Status)
	}

	result, err := s.payments.Charge(ctx, order)
	if err != nil {
		var declined *PaymentDeclinedError
		if errors.As(err, &declined) {
			s.logger(ctx, "order.payment.declined", map[string]any{"orderId": orderID})
			return Order{}, fmt.Errorf("%w: %s", ErrOrderPaymentFailed, declined.Reason)
		}
		return Order{}, fmt.Errorf("order: charge: %w", err)
	}

	now := s.clock()
	updated, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID:     orderID,
		From:        []domain.OrderStatus{domain.OrderStatusPending},
		To:          domain.OrderStatusPaid,
		ExpectOwner: userID,
		Apply: func(o *domain.Order) {
			paidAt := now
			o.PaidAt = &paidAt
			o.PaymentMethod = method
		},
		Now: now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           OrderEventPaid,
		OrderID:        updated.ID,
		OrderNumber:    updated.Number,
		UserID:         updated.UserID,
		PreviousStatus: string(domain.OrderStatusPending),
		CurrentStatus:  string(updated.Status),
		ActorID:        userID,
		OccurredAt:     now,
		Metadata:       map[string]any{"paymentReference": result.Reference, "paymentMethod": method},
	})
	return updated, nil
}

func (s *orderService) Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	tracking := strings.TrimSpace(cmd.TrackingNumber)

	now := s.clock()
	updated, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID: orderID,
		From:    []domain.OrderStatus{domain.OrderStatusPaid},
		To:      domain.OrderStatusShipped,
		Apply: func(o *domain.Order) {
			shippedAt := now
			o.ShippedAt = &shippedAt
			o.TrackingNumber = tracking
		},
		Now: now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           OrderEventShipped,
		OrderID:        updated.ID,
		OrderNumber:    updated.Number,
		UserID:         updated.UserID,
		PreviousStatus: string(domain.OrderStatusPaid),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       map[string]any{"trackingNumber": tracking},
	})
	return updated, nil
}

func (s *orderService) ConfirmReceipt(ctx context.Context, cmd ConfirmReceiptCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}

	now := s.clock()
	updated, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID:     orderID,
		From:        []domain.OrderStatus{domain.OrderStatusShipped},
		To:          domain.OrderStatusDelivered,
		ExpectOwner: userID,
		Apply: func(o *domain.Order) {
			deliveredAt := now
			o.DeliveredAt = &deliveredAt
		},
		Now: now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           OrderEventDelivered,
		OrderID:        updated.ID,
		OrderNumber:    updated.Number,
		UserID:         updated.UserID,
		PreviousStatus: string(domain.OrderStatusShipped),
		CurrentStatus:  string(updated.Status),
		ActorID:        userID,
		OccurredAt:     now,
	})
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}

	from := make([]domain.OrderStatus, 0, len(s.cancellable))
	for _, status := range domain.KnownOrderStatuses {
		if _, ok := s.cancellable[status]; ok {
			from = append(from, status)
		}
	}

	now := s.clock()
	updated, err := s.orders.CancelAndRestock(ctx, repositories.CancelRequest{
		OrderID:     orderID,
		From:        from,
		ExpectOwner: userID,
		Reason:      strings.TrimSpace(cmd.Reason),
		Now:         now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          OrderEventCancelled,
		OrderID:       updated.ID,
		OrderNumber:   updated.Number,
		UserID:        updated.UserID,
		CurrentStatus: string(updated.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata:      map[string]any{"reason": updated.CancelReason},
	})
	s.publishInventoryEvent(ctx, InventoryEvent{
		Type:        InventoryEventReleased,
		OrderID:     updated.ID,
		Adjustments: lineAdjustments(updated.Lines),
		OccurredAt:  now,
	})
	return updated, nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error) {
	if query.Status != nil && !query.Status.IsValid() {
		return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *query.Status)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(query.UserID),
		Status:     query.Status,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !actor.Admin && order.UserID != actor.UserID {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

// nextOrderID returns a new order document identifier.
func (s *orderService) nextOrderID() string {
	return "ord_" + strings.ToLower(s.idGen())
}

// generateOrderNumber builds the customer-facing order number: the ORD prefix,
// the last eight digits of the millisecond timestamp, and four random digits.
func (s *orderService) generateOrderNumber(now time.Time) string {
	millis := now.UnixMilli() % 100000000
	return fmt.Sprintf("ORD%08d%04d", millis, s.suffix()%10000)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) publishInventoryEvent(ctx context.Context, event InventoryEvent) {
	if s.stockEvents == nil {
		return
	}
	if err := s.stockEvents.PublishInventoryEvent(ctx, event); err != nil {
		s.logger(ctx, "inventory.event.publish.failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	var checkout *repositories.CheckoutError
	if errors.As(err, &checkout) {
		return &UnavailableItemsError{Items: checkout.Items}
	}
	var conflict *repositories.OrderConflictError
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: order is %s", ErrOrderInvalidState, conflict.Status)
	}
	var ownership *repositories.OrderOwnershipError
	if errors.As(err, &ownership) {
		return ErrOrderForbidden
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func validateAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.Recipient) == "" {
		return fmt.Errorf("%w: address recipient is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Phone) == "" {
		return fmt.Errorf("%w: address phone is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Detail) == "" {
		return fmt.Errorf("%w: address detail is required", ErrOrderInvalidInput)
	}
	return nil
}

func trimAddress(addr domain.Address) domain.Address {
	return domain.Address{
		Recipient: strings.TrimSpace(addr.Recipient),
		Phone:     strings.TrimSpace(addr.Phone),
		Province:  strings.TrimSpace(addr.Province),
		City:      strings.TrimSpace(addr.City),
		District:  strings.TrimSpace(addr.District),
		Detail:    strings.TrimSpace(addr.Detail),
	}
}

func lineAdjustments(lines []domain.OrderLine) []domain.StockAdjustment {
	adjustments := make([]domain.StockAdjustment, 0, len(lines))
	for _, line := range lines {
		adjustments = append(adjustments, domain.StockAdjustment{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return adjustments
}
