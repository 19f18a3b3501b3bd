package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/repositories"
)

var (
	// ErrProductInvalidInput indicates the supplied command failed validation.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product does not exist or is not visible
	// to the caller.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductConflict indicates a concurrent write or duplicate ID.
	ErrProductConflict = errors.New("product: conflict")
	// ErrProductUnavailable indicates the backing datastore was unreachable.
	ErrProductUnavailable = errors.New("product: repository unavailable")
	// ErrProductStockInvalid indicates a stock adjustment would go negative or
	// targets an inactive product.
	ErrProductStockInvalid = errors.New("product: invalid stock adjustment")
)

const skuCounterID = "products"

// CatalogServiceDeps wires repositories and helpers into the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Inventory   repositories.InventoryRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	inventory repositories.InventoryRepository
	counters  repositories.CounterRepository
	sanitizer *bluemonday.Policy
	clock     func() time.Time
	idGen     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("catalog service: inventory repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("catalog service: counter repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:  deps.Products,
		inventory: deps.Inventory,
		counters:  deps.Counters,
		sanitizer: bluemonday.StrictPolicy(),
		clock:     func() time.Time { return clock().UTC() },
		idGen:     idGen,
		logger:    logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.Page[Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Keyword:    strings.TrimSpace(query.Keyword),
		ActiveOnly: !query.IncludeInactive,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.Page[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, opts ProductReadOptions) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	// Shoppers never see unlisted products; admins may.
	if !product.Active && !opts.IncludeInactive {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	name := s.sanitizer.Sanitize(strings.TrimSpace(cmd.Name))
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrProductInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrProductInvalidInput)
	}
	stock := 0
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must not be negative", ErrProductInvalidInput)
		}
		stock = *cmd.Stock
	}
	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}

	sequence, err := s.counters.Next(ctx, skuCounterID, 1)
	if err != nil {
		return Product{}, fmt.Errorf("product: allocate sku: %w", err)
	}

	now := s.clock()
	product := domain.Product{
		ID:          "prd_" + strings.ToLower(s.idGen()),
		SKU:         fmt.Sprintf("SKU-%06d", sequence),
		Name:        name,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Price:       cmd.Price,
		Stock:       stock,
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId": product.ID,
		"sku":       product.SKU,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	name := s.sanitizer.Sanitize(strings.TrimSpace(cmd.Name))
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrProductInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrProductInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	product.Name = name
	product.Description = s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description))
	product.Price = cmd.Price
	product.ImageURL = strings.TrimSpace(cmd.ImageURL)
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must not be negative", ErrProductInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) SetProductActive(ctx context.Context, cmd SetProductActiveCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	now := s.clock()
	if err := s.products.SetActive(ctx, productID, cmd.Active, now); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.active.changed", map[string]any{
		"productId": productID,
		"active":    cmd.Active,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	if cmd.Delta == 0 {
		return Product{}, fmt.Errorf("%w: delta must not be zero", ErrProductInvalidInput)
	}

	now := s.clock()
	adjustment := []domain.StockAdjustment{{ProductID: productID, Quantity: cmd.Delta}}
	var err error
	if cmd.Delta > 0 {
		err = s.inventory.Increment(ctx, adjustment, now)
	} else {
		adjustment[0].Quantity = -cmd.Delta
		err = s.inventory.Decrement(ctx, adjustment, now)
	}
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			switch invErr.Code {
			case repositories.InventoryErrorProductNotFound:
				return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
			case repositories.InventoryErrorInsufficientStock, repositories.InventoryErrorProductInactive:
				return Product{}, fmt.Errorf("%w: %v", ErrProductStockInvalid, err)
			}
		}
		return Product{}, s.mapRepositoryError(err)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.stock.adjusted", map[string]any{
		"productId": productID,
		"delta":     cmd.Delta,
		"stock":     product.Stock,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProductConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
		}
	}
	return err
}
