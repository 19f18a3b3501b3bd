package domain

import (
	"time"
)

// Pagination carries offset paging inputs shared across repositories and services.
type Pagination struct {
	Page     int
	PageSize int
}

// Offset returns the number of records to skip for the current page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Page is the offset-paginated result envelope returned by list operations.
type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// NewPage assembles a result page and derives TotalPages from the total count.
func NewPage[T any](items []T, pager Pagination, total int64) Page[T] {
	size := pager.PageSize
	if size <= 0 {
		size = 1
	}
	pages := int((total + int64(size) - 1) / int64(size))
	page := pager.Page
	if page <= 0 {
		page = 1
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: pages,
	}
}

// Product is a sellable catalog entry. Price is stored in minor currency units.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	Price       int64
	Stock       int
	ImageURL    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartItem is a single line in a user's cart. Quantity only; price and name
// are resolved against the live product when the cart is read or checked out.
type CartItem struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine joins a cart item with its current product state for display
// and checkout validation.
type CartLine struct {
	Item    CartItem
	Product Product
}

// Subtotal returns the live price of the line (current unit price times quantity).
func (l CartLine) Subtotal() int64 {
	return l.Product.Price * int64(l.Item.Quantity)
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// KnownOrderStatuses lists every valid lifecycle state.
var KnownOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) IsValid() bool {
	for _, known := range KnownOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderLine is an immutable price snapshot of one ordered product.
// It is captured at checkout and never revised afterwards.
type OrderLine struct {
	ProductID   string
	ProductName string
	ImageURL    string
	UnitPrice   int64
	Quantity    int
}

// Subtotal returns the snapshot price of the line.
func (l OrderLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Address is the shipping destination captured on an order.
type Address struct {
	Recipient string
	Phone     string
	Province  string
	City      string
	District  string
	Detail    string
}

// Order is the aggregate produced by checkout. TotalAmount equals the sum of
// line subtotals at creation time.
type Order struct {
	ID             string
	Number         string
	UserID         string
	Status         OrderStatus
	Lines          []OrderLine
	TotalAmount    int64
	Address        Address
	Remark         string
	PaymentMethod  string
	TrackingNumber string
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
}

// LineTotal recomputes the sum of line subtotals from the snapshot.
func (o Order) LineTotal() int64 {
	var total int64
	for _, line := range o.Lines {
		total += line.Subtotal()
	}
	return total
}

// UnavailableItem describes one cart line that blocked checkout.
type UnavailableItem struct {
	ProductID   string
	ProductName string
	Reason      UnavailableReason
	Remaining   int
}

// UnavailableReason classifies why a cart line could not be ordered.
type UnavailableReason string

const (
	UnavailableReasonInactive          UnavailableReason = "inactive"
	UnavailableReasonInsufficientStock UnavailableReason = "insufficient_stock"
	UnavailableReasonMissing           UnavailableReason = "missing"
)

// StockAdjustment is one product quantity delta applied to the stock ledger.
type StockAdjustment struct {
	ProductID string
	Quantity  int
}

// UserProfile mirrors the identity provider record for display purposes.
type UserProfile struct {
	UID         string
	Email       string
	DisplayName string
	Roles       []string
	CreatedAt   time.Time
}

// HealthStatus represents the outcome of a dependency probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck captures a single dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness reporting.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
