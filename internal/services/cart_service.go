package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplemart/api/internal/domain"
	"github.com/maplemart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the supplied command failed validation.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the cart item does not exist for this user.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product is missing or inactive.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartInsufficientStock indicates the requested quantity exceeds stock.
	// This is an advisory check; checkout performs the authoritative one.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
	// ErrCartUnavailable indicates the backing datastore was unreachable.
	ErrCartUnavailable = errors.New("cart: repository unavailable")
)

// CartServiceDeps wires repositories and helpers into the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
	idGen    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
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
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		idGen:    idGen,
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.buildView(ctx, userID)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return CartView{}, fmt.Errorf("%w: product %s", ErrCartProductUnavailable, productID)
		}
		return CartView{}, s.mapRepositoryError(err)
	}
	if !product.Active {
		return CartView{}, fmt.Errorf("%w: product %s is inactive", ErrCartProductUnavailable, productID)
	}

	now := s.clock()
	item := domain.CartItem{
		ID:        "crt_" + strings.ToLower(s.idGen()),
		UserID:    userID,
		ProductID: productID,
		Quantity:  cmd.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	existing, err := s.carts.FindItemByProduct(ctx, userID, productID)
	switch {
	case err == nil:
		item = existing
		item.Quantity += cmd.Quantity
		item.UpdatedAt = now
	case isNotFound(err):
		// first time this product lands in the cart
	default:
		return CartView{}, s.mapRepositoryError(err)
	}

	if item.Quantity > product.Stock {
		return CartView{}, fmt.Errorf("%w: %d requested, %d available", ErrCartInsufficientStock, item.Quantity, product.Stock)
	}
	if _, err := s.carts.UpsertItem(ctx, item); err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.buildView(ctx, userID)
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return CartView{}, fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	item, err := s.carts.FindItem(ctx, userID, itemID)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	product, err := s.products.FindByID(ctx, item.ProductID)
	if err != nil {
		if isNotFound(err) {
			return CartView{}, fmt.Errorf("%w: product %s", ErrCartProductUnavailable, item.ProductID)
		}
		return CartView{}, s.mapRepositoryError(err)
	}
	if cmd.Quantity > product.Stock {
		return CartView{}, fmt.Errorf("%w: %d requested, %d available", ErrCartInsufficientStock, cmd.Quantity, product.Stock)
	}

	item.Quantity = cmd.Quantity
	item.UpdatedAt = s.clock()
	if _, err := s.carts.UpsertItem(ctx, item); err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.buildView(ctx, userID)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return CartView{}, fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}
	if err := s.carts.RemoveItem(ctx, userID, itemID); err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.buildView(ctx, userID)
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// buildView joins cart items with live product records. Items whose product
// has been deleted are dropped from the view and logged; inactive products
// stay visible so the client can surface them.
func (s *cartService) buildView(ctx context.Context, userID string) (CartView, error) {
	items, err := s.carts.ListItems(ctx, userID)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}

	view := CartView{UserID: userID, Lines: make([]domain.CartLine, 0, len(items))}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			s.logger(ctx, "cart.line.orphaned", map[string]any{
				"userId":    userID,
				"itemId":    item.ID,
				"productId": item.ProductID,
			})
			continue
		}
		line := domain.CartLine{Item: item, Product: product}
		view.Lines = append(view.Lines, line)
		if product.Active {
			view.Total += line.Subtotal()
		}
	}
	return view, nil
}

func (s *cartService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
