package repositories

import (
	"fmt"

	domain "github.com/maplemart/api/internal/domain"
)

// InventoryErrorCode enumerates failure reasons for stock ledger operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates a requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates the product has no stock record.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorProductInactive indicates the product is delisted.
	InventoryErrorProductInactive InventoryErrorCode = "inventory_product_inactive"
)

// InventoryError wraps stock ledger failures with machine readable codes.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CheckoutError reports every cart line that blocked an order attempt. The
// transaction that produced it was aborted, so no stock, order, or cart
// mutation survives alongside this error.
type CheckoutError struct {
	Items []domain.UnavailableItem
}

// Error implements the error interface.
func (e *CheckoutError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("checkout blocked by %d unavailable item(s)", len(e.Items))
}

// OrderConflictError indicates a guarded transition found the order in a
// status outside the allowed source set.
type OrderConflictError struct {
	OrderID string
	Status  domain.OrderStatus
}

// Error implements the error interface.
func (e *OrderConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("order %s is %s", e.OrderID, e.Status)
}

// OrderOwnershipError indicates the order exists but belongs to another user.
type OrderOwnershipError struct {
	OrderID string
}

// Error implements the error interface.
func (e *OrderOwnershipError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("order %s belongs to another user", e.OrderID)
}
