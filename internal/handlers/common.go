package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/platform/auth"
	"github.com/maplemart/api/internal/services"
)

// actorFor maps the authenticated identity to the service-level actor used
// for ownership checks. Staff count as admins for order visibility.
func actorFor(identity *auth.Identity) services.Actor {
	if identity == nil {
		return services.Actor{}
	}
	return services.Actor{
		UserID: identity.UID,
		Admin:  identity.HasAnyRole(auth.RoleAdmin, auth.RoleStaff),
	}
}

const defaultMaxBodySize = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// pageMeta is the pagination envelope shared by every list endpoint.
type pageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func buildPageMeta[T any](page domain.Page[T]) pageMeta {
	return pageMeta{
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	}
}

type productPayload struct {
	ID          string `json:"id"`
	SKU         string `json:"sku,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		SKU:         product.SKU,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		ImageURL:    product.ImageURL,
		Active:      product.Active,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

type addressPayload struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Province  string `json:"province,omitempty"`
	City      string `json:"city,omitempty"`
	District  string `json:"district,omitempty"`
	Detail    string `json:"detail"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Recipient: addr.Recipient,
		Phone:     addr.Phone,
		Province:  addr.Province,
		City:      addr.City,
		District:  addr.District,
		Detail:    addr.Detail,
	}
}

func addressFromPayload(payload addressPayload) services.Address {
	return services.Address{
		Recipient: payload.Recipient,
		Phone:     payload.Phone,
		Province:  payload.Province,
		City:      payload.City,
		District:  payload.District,
		Detail:    payload.Detail,
	}
}

type orderLinePayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	ImageURL    string `json:"imageUrl,omitempty"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

type orderPayload struct {
	ID             string             `json:"id"`
	Number         string             `json:"number"`
	UserID         string             `json:"userId"`
	Status         string             `json:"status"`
	Lines          []orderLinePayload `json:"lines"`
	TotalAmount    int64              `json:"totalAmount"`
	Address        addressPayload     `json:"address"`
	Remark         string             `json:"remark,omitempty"`
	PaymentMethod  string             `json:"paymentMethod,omitempty"`
	TrackingNumber string             `json:"trackingNumber,omitempty"`
	CancelReason   string             `json:"cancelReason,omitempty"`
	CreatedAt      string             `json:"createdAt,omitempty"`
	UpdatedAt      string             `json:"updatedAt,omitempty"`
	PaidAt         string             `json:"paidAt,omitempty"`
	ShippedAt      string             `json:"shippedAt,omitempty"`
	DeliveredAt    string             `json:"deliveredAt,omitempty"`
	CancelledAt    string             `json:"cancelledAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ImageURL:    line.ImageURL,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal(),
		})
	}
	return orderPayload{
		ID:             order.ID,
		Number:         order.Number,
		UserID:         order.UserID,
		Status:         string(order.Status),
		Lines:          lines,
		TotalAmount:    order.TotalAmount,
		Address:        buildAddressPayload(order.Address),
		Remark:         order.Remark,
		PaymentMethod:  order.PaymentMethod,
		TrackingNumber: order.TrackingNumber,
		CancelReason:   order.CancelReason,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		PaidAt:         formatTimePtr(order.PaidAt),
		ShippedAt:      formatTimePtr(order.ShippedAt),
		DeliveredAt:    formatTimePtr(order.DeliveredAt),
		CancelledAt:    formatTimePtr(order.CancelledAt),
	}
}

type unavailableItemPayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Reason      string `json:"reason"`
	Remaining   int    `json:"remaining,omitempty"`
}

func buildUnavailableItems(items []services.UnavailableItem) []unavailableItemPayload {
	payload := make([]unavailableItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, unavailableItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Reason:      string(item.Reason),
			Remaining:   item.Remaining,
		})
	}
	return payload
}
