package services

import (
	"context"
	"time"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	CartItem           = domain.CartItem
	CartLine           = domain.CartLine
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	Address            = domain.Address
	UnavailableItem    = domain.UnavailableItem
	StockAdjustment    = domain.StockAdjustment
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService exposes product reads for shoppers and product management for admins.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListQuery) (domain.Page[Product], error)
	GetProduct(ctx context.Context, productID string, opts ProductReadOptions) (Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	SetProductActive(ctx context.Context, cmd SetProductActiveCommand) (Product, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error)
}

// CartService manages per-user cart state with advisory availability checks.
// The authoritative stock check happens when the cart is turned into an order.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService owns the order lifecycle: creation from the cart, payment,
// shipment, receipt confirmation, cancellation, and reads.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Pay(ctx context.Context, cmd PayOrderCommand) (Order, error)
	Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error)
	ConfirmReceipt(ctx context.Context, cmd ConfirmReceiptCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PaymentGateway charges an order. The production build ships a simulated
// gateway; a declined charge is reported as *PaymentDeclinedError and leaves
// the order untouched so the client may retry.
type PaymentGateway interface {
	Charge(ctx context.Context, order Order) (PaymentResult, error)
}

// PaymentResult carries gateway metadata recorded on successful charges.
type PaymentResult struct {
	Reference string
	ChargedAt time.Time
}

// OrderEventPublisher publishes order domain events for downstream consumers
// such as the email notification worker.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// InventoryEventPublisher accepts stock change notifications for downstream processing.
type InventoryEventPublisher interface {
	PublishInventoryEvent(ctx context.Context, event InventoryEvent) error
}

// InventoryEvent describes a stock level change caused by an order.
type InventoryEvent struct {
	Type        string
	OrderID     string
	Adjustments []StockAdjustment
	OccurredAt  time.Time
}

// Actor identifies the caller of an order operation for ownership checks.
type Actor struct {
	UserID string
	Admin  bool
}

// CartView joins the user's cart items with live product state.
type CartView struct {
	UserID string
	Lines  []CartLine
	Total  int64
}

// Command and DTO definitions ------------------------------------------------

type ProductListQuery struct {
	Keyword         string
	IncludeInactive bool
	Pagination      Pagination
}

type ProductReadOptions struct {
	IncludeInactive bool
}

type UpsertProductCommand struct {
	ProductID   string
	Name        string
	Description string
	Price       int64
	Stock       *int
	ImageURL    string
	Active      *bool
	ActorID     string
}

type SetProductActiveCommand struct {
	ProductID string
	Active    bool
	ActorID   string
}

type AdjustStockCommand struct {
	ProductID string
	Delta     int
	ActorID   string
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

type CreateOrderCommand struct {
	UserID string
	// ItemIDs selects a subset of the cart; empty means the whole cart.
	ItemIDs []string
	Address Address
	Remark  string
}

type PayOrderCommand struct {
	OrderID string
	UserID  string
	// Method labels the payment channel recorded on the order.
	// Empty defaults to the simulated gateway.
	Method string
}

type ShipOrderCommand struct {
	OrderID        string
	TrackingNumber string
	ActorID        string
}

type ConfirmReceiptCommand struct {
	OrderID string
	UserID  string
}

type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

type OrderListQuery struct {
	UserID     string
	Status     *OrderStatus
	Pagination Pagination
}

// OrderListFilter re-exports the repository filter for handler convenience.
type OrderListFilter = repositories.OrderListFilter
