package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/repositories"
)

type stubInventoryRepository struct {
	decrementFunc func(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error
	incrementFunc func(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error
}

func (s *stubInventoryRepository) Decrement(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
	if s.decrementFunc == nil {
		return nil
	}
	return s.decrementFunc(ctx, adjustments, now)
}

func (s *stubInventoryRepository) Increment(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
	if s.incrementFunc == nil {
		return nil
	}
	return s.incrementFunc(ctx, adjustments, now)
}

type stubCounterRepository struct {
	nextFunc func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFunc == nil {
		return 1, nil
	}
	return s.nextFunc(ctx, counterID, step)
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func newCatalogServiceForTest(t *testing.T, deps CatalogServiceDeps) CatalogService {
	t.Helper()
	if deps.Products == nil {
		deps.Products = &stubProductRepository{}
	}
	if deps.Inventory == nil {
		deps.Inventory = &stubInventoryRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepository{}
	}
	service, err := NewCatalogService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}
	return service
}

func TestCatalogServiceListProductsDefaultsToActiveOnly(t *testing.T) {
	products := &stubProductRepository{
		listFunc: func(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
			if !filter.ActiveOnly {
				t.Fatalf("expected active-only listing for shoppers")
			}
			if filter.Keyword != "mug" {
				t.Fatalf("expected trimmed keyword, got %q", filter.Keyword)
			}
			return domain.NewPage([]domain.Product{{ID: "prd-1"}}, filter.Pagination, 1), nil
		},
	}
	service := newCatalogServiceForTest(t, CatalogServiceDeps{Products: products})

	page, err := service.ListProducts(context.Background(), ProductListQuery{
		Keyword:    " mug ",
		Pagination: domain.Pagination{Page: 1, PageSize: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected total 1, got %d", page.Total)
	}
}

func TestCatalogServiceGetProductHidesInactiveFromShoppers(t *testing.T) {
	products := &stubProductRepository{
		findFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Active: false}, nil
		},
	}
	service := newCatalogServiceForTest(t, CatalogServiceDeps{Products: products})
	ctx := context.Background()

	if _, err := service.GetProduct(ctx, "prd-1", ProductReadOptions{}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound for shopper, got %v", err)
	}
	if _, err := service.GetProduct(ctx, "prd-1", ProductReadOptions{IncludeInactive: true}); err != nil {
		t.Fatalf("admin read failed: %v", err)
	}
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	var inserted domain.Product

	products := &stubProductRepository{
		insertFunc: func(ctx context.Context, product domain.Product) error {
			inserted = product
			return nil
		},
	}
	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			if counterID != "products" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			return 42, nil
		},
	}

	service := newCatalogServiceForTest(t, CatalogServiceDeps{
		Products:    products,
		Counters:    counters,
		Clock:       func() time.Time { return now },
		IDGenerator: fixedSequence("01HPRODUCT"),
	})

	product, err := service.CreateProduct(context.Background(), UpsertProductCommand{
		Name:        " Ceramic Mug ",
		Description: "Simple <script>alert(1)</script> mug",
		Price:       1200,
		Stock:       intPtr(25),
		ActorID:     "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inserted.ID != "prd_01hproduct" {
		t.Fatalf("unexpected product id %q", inserted.ID)
	}
	if product.SKU != "SKU-000042" {
		t.Fatalf("expected SKU-000042, got %q", product.SKU)
	}
	if product.Name != "Ceramic Mug" {
		t.Fatalf("expected trimmed name, got %q", product.Name)
	}
	if product.Description != "Simple  mug" {
		t.Fatalf("expected markup stripped from description, got %q", product.Description)
	}
	if !product.Active {
		t.Fatalf("expected new products to default to active")
	}
	if product.Stock != 25 {
		t.Fatalf("expected stock 25, got %d", product.Stock)
	}
}

func TestCatalogServiceCreateProductValidation(t *testing.T) {
	service := newCatalogServiceForTest(t, CatalogServiceDeps{})
	ctx := context.Background()

	if _, err := service.CreateProduct(ctx, UpsertProductCommand{Name: "  ", Price: 100}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected ErrProductInvalidInput for blank name, got %v", err)
	}
	if _, err := service.CreateProduct(ctx, UpsertProductCommand{Name: "Mug", Price: -1}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected ErrProductInvalidInput for negative price, got %v", err)
	}
	if _, err := service.CreateProduct(ctx, UpsertProductCommand{Name: "Mug", Price: 100, Stock: intPtr(-5)}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected ErrProductInvalidInput for negative stock, got %v", err)
	}
}

func TestCatalogServiceUpdateProduct(t *testing.T) {
	now := time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC)
	var updated domain.Product

	products := &stubProductRepository{
		findFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{
				ID:        productID,
				SKU:       "SKU-000001",
				Name:      "Old name",
				Price:     500,
				Stock:     3,
				Active:    true,
				CreatedAt: now.Add(-24 * time.Hour),
			}, nil
		},
		updateFunc: func(ctx context.Context, product domain.Product) error {
			updated = product
			return nil
		},
	}
	service := newCatalogServiceForTest(t, CatalogServiceDeps{
		Products: products,
		Clock:    func() time.Time { return now },
	})

	_, err := service.UpdateProduct(context.Background(), UpsertProductCommand{
		ProductID: "prd-1",
		Name:      "New name",
		Price:     700,
		Active:    boolPtr(false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Name != "New name" || updated.Price != 700 {
		t.Fatalf("unexpected update %+v", updated)
	}
	if updated.SKU != "SKU-000001" {
		t.Fatalf("sku must be immutable, got %q", updated.SKU)
	}
	if updated.Stock != 3 {
		t.Fatalf("stock must be untouched when not supplied, got %d", updated.Stock)
	}
	if updated.Active {
		t.Fatalf("expected product deactivated")
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, updated.UpdatedAt)
	}
}

func TestCatalogServiceUpdateProductNotFound(t *testing.T) {
	service := newCatalogServiceForTest(t, CatalogServiceDeps{})

	_, err := service.UpdateProduct(context.Background(), UpsertProductCommand{ProductID: "prd-x", Name: "Mug", Price: 100})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalogServiceSetProductActive(t *testing.T) {
	flipped := false
	products := &stubProductRepository{
		setActiveFunc: func(ctx context.Context, productID string, active bool, updatedAt time.Time) error {
			if productID != "prd-1" || active {
				t.Fatalf("unexpected setActive args %q %v", productID, active)
			}
			flipped = true
			return nil
		},
		findFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Active: false}, nil
		},
	}
	service := newCatalogServiceForTest(t, CatalogServiceDeps{Products: products})

	product, err := service.SetProductActive(context.Background(), SetProductActiveCommand{ProductID: "prd-1", Active: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flipped {
		t.Fatalf("expected listing flag flip")
	}
	if product.Active {
		t.Fatalf("expected inactive product returned")
	}
}

func TestCatalogServiceAdjustStockIncrement(t *testing.T) {
	var applied []domain.StockAdjustment
	inventory := &stubInventoryRepository{
		incrementFunc: func(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
			applied = adjustments
			return nil
		},
	}
	products := &stubProductRepository{
		findFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Stock: 15, Active: true}, nil
		},
	}
	service := newCatalogServiceForTest(t, CatalogServiceDeps{Products: products, Inventory: inventory})

	product, err := service.AdjustStock(context.Background(), AdjustStockCommand{ProductID: "prd-1", Delta: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 1 || applied[0].Quantity != 5 {
		t.Fatalf("unexpected adjustments %+v", applied)
	}
	if product.Stock != 15 {
		t.Fatalf("expected re-read stock 15, got %d", product.Stock)
	}
}

func TestCatalogServiceAdjustStockRejectsOverdraw(t *testing.T) {
	inventory := &stubInventoryRepository{
		decrementFunc: func(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
			if adjustments[0].Quantity != 4 {
				t.Fatalf("expected positive quantity 4, got %d", adjustments[0].Quantity)
			}
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, "2 available", nil)
		},
	}
	service := newCatalogServiceForTest(t, CatalogServiceDeps{Inventory: inventory})

	_, err := service.AdjustStock(context.Background(), AdjustStockCommand{ProductID: "prd-1", Delta: -4})
	if !errors.Is(err, ErrProductStockInvalid) {
		t.Fatalf("expected ErrProductStockInvalid, got %v", err)
	}
}

func TestCatalogServiceAdjustStockZeroDelta(t *testing.T) {
	service := newCatalogServiceForTest(t, CatalogServiceDeps{})

	_, err := service.AdjustStock(context.Background(), AdjustStockCommand{ProductID: "prd-1", Delta: 0})
	if !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected ErrProductInvalidInput, got %v", err)
	}
}
