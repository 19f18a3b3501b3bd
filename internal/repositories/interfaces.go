package repositories

import (
	"context"
	"time"

	domain "github.com/maplemart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Inventory() InventoryRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products, including their on-hand stock counts.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	SetActive(ctx context.Context, productID string, active bool, updatedAt time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
}

// ProductListFilter narrows and pages catalog listings.
type ProductListFilter struct {
	Keyword    string
	ActiveOnly bool
	Pagination domain.Pagination
}

// CartRepository owns per-user cart item persistence.
type CartRepository interface {
	ListItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	FindItem(ctx context.Context, userID string, itemID string) (domain.CartItem, error)
	FindItemByProduct(ctx context.Context, userID string, productID string) (domain.CartItem, error)
	UpsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
	RemoveItem(ctx context.Context, userID string, itemID string) error
	Clear(ctx context.Context, userID string) error
}

// OrderRepository persists orders. Mutations that touch stock or depend on the
// current status run inside a single Firestore transaction on the repository
// side so concurrent writers cannot interleave.
type OrderRepository interface {
	// Checkout atomically validates every requested line against live product
	// state, decrements stock, writes the order, and deletes the consumed cart
	// items. On any line violation it aborts with *CheckoutError and leaves no
	// partial writes behind.
	Checkout(ctx context.Context, req CheckoutRequest) (domain.Order, error)

	// Transition flips the order status after re-reading it inside the
	// transaction and checking it is one of the allowed source states. The
	// apply callback stamps timestamps and transition-specific fields.
	Transition(ctx context.Context, req TransitionRequest) (domain.Order, error)

	// CancelAndRestock cancels the order and returns every line quantity to
	// stock in the same transaction.
	CancelAndRestock(ctx context.Context, req CancelRequest) (domain.Order, error)

	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// CheckoutRequest carries the prepared order shell and the cart items it consumes.
type CheckoutRequest struct {
	Order       domain.Order
	CartItemIDs []string
	Now         time.Time
}

// TransitionRequest describes a guarded status flip.
type TransitionRequest struct {
	OrderID     string
	From        []domain.OrderStatus
	To          domain.OrderStatus
	ExpectOwner string
	Apply       func(order *domain.Order)
	Now         time.Time
}

// CancelRequest describes a cancellation with stock release.
type CancelRequest struct {
	OrderID     string
	From        []domain.OrderStatus
	ExpectOwner string
	Reason      string
	Now         time.Time
}

// OrderListFilter narrows and pages order listings. Empty UserID means all users.
type OrderListFilter struct {
	UserID     string
	Status     *domain.OrderStatus
	Pagination domain.Pagination
}

// InventoryRepository manages stock levels with transactional check-and-set guarantees.
type InventoryRepository interface {
	// Decrement conditionally subtracts the requested quantities. Each line is
	// checked against the product's live availability inside the transaction;
	// any violation aborts the whole batch with *InventoryError.
	Decrement(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error
	// Increment returns quantities to stock, used when orders are cancelled.
	Increment(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error
}

// CounterRepository provides atomic monotonically increasing counters.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises counter behaviour.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository aggregates dependency probes into a readiness report.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
