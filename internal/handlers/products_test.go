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

type stubCatalogService struct {
	listFn      func(context.Context, services.ProductListQuery) (domain.Page[services.Product], error)
	getFn       func(context.Context, string, services.ProductReadOptions) (services.Product, error)
	createFn    func(context.Context, services.UpsertProductCommand) (services.Product, error)
	updateFn    func(context.Context, services.UpsertProductCommand) (services.Product, error)
	setActiveFn func(context.Context, services.SetProductActiveCommand) (services.Product, error)
	adjustFn    func(context.Context, services.AdjustStockCommand) (services.Product, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListQuery) (domain.Page[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Product]{}, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, opts services.ProductReadOptions) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID, opts)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) SetProductActive(ctx context.Context, cmd services.SetProductActiveCommand) (services.Product, error) {
	if s.setActiveFn != nil {
		return s.setActiveFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (services.Product, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

var _ services.CatalogService = (*stubCatalogService)(nil)

func newProductRouter(service services.CatalogService) chi.Router {
	handler := NewProductHandlers(service)
	router := chi.NewRouter()
	router.Route("/products", handler.Routes)
	return router
}

func TestProductHandlersListProducts(t *testing.T) {
	var captured services.ProductListQuery
	service := &stubCatalogService{
		listFn: func(ctx context.Context, filter services.ProductListQuery) (domain.Page[services.Product], error) {
			captured = filter
			return domain.NewPage([]services.Product{
				{ID: "prd-1", SKU: "SKU-000001", Name: "Mug", Price: 1200, Stock: 5, Active: true},
			}, filter.Pagination, 1), nil
		},
	}
	router := newProductRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/products?keyword=mug&page=1&pageSize=20", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Keyword != "mug" {
		t.Fatalf("unexpected keyword %q", captured.Keyword)
	}
	if captured.IncludeInactive {
		t.Fatalf("public listing must never include inactive products")
	}
	if captured.Pagination.PageSize != 20 {
		t.Fatalf("unexpected page size %d", captured.Pagination.PageSize)
	}

	var resp productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].SKU != "SKU-000001" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestProductHandlersGetProduct(t *testing.T) {
	service := &stubCatalogService{
		getFn: func(ctx context.Context, productID string, opts services.ProductReadOptions) (services.Product, error) {
			if opts.IncludeInactive {
				t.Fatalf("public read must not include inactive products")
			}
			return services.Product{ID: productID, Name: "Mug", Price: 1200, Active: true}, nil
		},
	}
	router := newProductRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/products/prd-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Product.ID != "prd-1" {
		t.Fatalf("unexpected product %+v", resp.Product)
	}
}

func TestProductHandlersGetProductNotFound(t *testing.T) {
	service := &stubCatalogService{
		getFn: func(ctx context.Context, productID string, opts services.ProductReadOptions) (services.Product, error) {
			return services.Product{}, services.ErrProductNotFound
		},
	}
	router := newProductRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/products/prd-404", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "product_not_found" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestProductHandlersListProductsUnavailable(t *testing.T) {
	service := &stubCatalogService{
		listFn: func(ctx context.Context, filter services.ProductListQuery) (domain.Page[services.Product], error) {
			return domain.Page[services.Product]{}, services.ErrProductUnavailable
		},
	}
	router := newProductRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
