package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/services"
)

type stubCartService struct {
	getFn    func(context.Context, string) (services.CartView, error)
	addFn    func(context.Context, services.AddCartItemCommand) (services.CartView, error)
	updateFn func(context.Context, services.UpdateCartItemCommand) (services.CartView, error)
	removeFn func(context.Context, services.RemoveCartItemCommand) (services.CartView, error)
	clearFn  func(context.Context, string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.CartView{}, errors.New("not implemented")
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.CartView{}, errors.New("not implemented")
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.CartView{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.CartView{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return errors.New("not implemented")
}

var _ services.CartService = (*stubCartService)(nil)

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func TestCartHandlersGetCart(t *testing.T) {
	service := &stubCartService{
		getFn: func(ctx context.Context, userID string) (services.CartView, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user %q", userID)
			}
			return services.CartView{
				UserID: userID,
				Lines: []services.CartLine{
					{
						Item:    domain.CartItem{ID: "crt-1", ProductID: "prd-1", Quantity: 2},
						Product: domain.Product{ID: "prd-1", Name: "Mug", Price: 1200, Stock: 5, Active: true},
					},
					{
						Item:    domain.CartItem{ID: "crt-2", ProductID: "prd-2", Quantity: 4},
						Product: domain.Product{ID: "prd-2", Name: "Teapot", Price: 3000, Stock: 1, Active: true},
					},
				},
				Total: 2400,
			}, nil
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodGet, "/cart", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Cart.Total != 2400 {
		t.Fatalf("unexpected total %d", resp.Cart.Total)
	}
	if len(resp.Cart.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(resp.Cart.Lines))
	}
	if !resp.Cart.Lines[0].Available {
		t.Fatalf("expected in-stock line to be available")
	}
	if resp.Cart.Lines[1].Available {
		t.Fatalf("expected overstocked line to be unavailable")
	}
	if resp.Cart.Lines[0].Subtotal != 2400 {
		t.Fatalf("unexpected subtotal %d", resp.Cart.Lines[0].Subtotal)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	router := newCartRouter(&stubCartService{})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	var captured services.AddCartItemCommand
	service := &stubCartService{
		addFn: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			captured = cmd
			return services.CartView{UserID: cmd.UserID}, nil
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodPost, "/cart/items", []byte(`{"productId":"prd-1","quantity":3}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.ProductID != "prd-1" || captured.Quantity != 3 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersAddItemInactiveProduct(t *testing.T) {
	service := &stubCartService{
		addFn: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartProductUnavailable
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodPost, "/cart/items", []byte(`{"productId":"prd-1","quantity":1}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemInsufficientStock(t *testing.T) {
	service := &stubCartService{
		addFn: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartInsufficientStock
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodPost, "/cart/items", []byte(`{"productId":"prd-1","quantity":99}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemMalformedBody(t *testing.T) {
	router := newCartRouter(&stubCartService{})

	req := authedRequest(http.MethodPost, "/cart/items", []byte(`{"productId":`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItemQuantity(t *testing.T) {
	var captured services.UpdateCartItemCommand
	service := &stubCartService{
		updateFn: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
			captured = cmd
			return services.CartView{UserID: cmd.UserID}, nil
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodPatch, "/cart/items/crt-1", []byte(`{"quantity":7}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ItemID != "crt-1" || captured.Quantity != 7 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersUpdateItemNotFound(t *testing.T) {
	service := &stubCartService{
		updateFn: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartItemNotFound
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodPatch, "/cart/items/crt-404", []byte(`{"quantity":1}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItem(t *testing.T) {
	var captured services.RemoveCartItemCommand
	service := &stubCartService{
		removeFn: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
			captured = cmd
			return services.CartView{UserID: cmd.UserID}, nil
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodDelete, "/cart/items/crt-1", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ItemID != "crt-1" || captured.UserID != "user-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFn: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}
	router := newCartRouter(service)

	req := authedRequest(http.MethodDelete, "/cart", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}
