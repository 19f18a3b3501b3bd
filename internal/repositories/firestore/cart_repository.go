package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplemart/api/internal/domain"
	pfirestore "github.com/maplemart/api/internal/platform/firestore"
	"github.com/maplemart/api/internal/repositories"
)

const cartItemsCollection = "cartItems"

type cartItemDocument struct {
	UserID    string    `firestore:"userId"`
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d cartItemDocument) toDomain(id string) domain.CartItem {
	return domain.CartItem{
		ID:        id,
		UserID:    d.UserID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// CartRepository implements repositories.CartRepository backed by Firestore.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartItemDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartItemDocument](provider, cartItemsCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// ListItems returns every cart item the user owns, oldest first.
func (r *CartRepository) ListItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("cart repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(cartItemsCollection).
		Where("userId", "==", uid).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var items []domain.CartItem
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("cartItems.list", err)
		}
		var doc cartItemDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("cartItems.list", err)
		}
		items = append(items, doc.toDomain(snapshot.Ref.ID))
	}
	return items, nil
}

// FindItem loads a single cart item and checks it belongs to the user.
func (r *CartRepository) FindItem(ctx context.Context, userID string, itemID string) (domain.CartItem, error) {
	if r == nil || r.base == nil {
		return domain.CartItem{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.CartItem{}, errors.New("cart repository: item id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.CartItem{}, err
	}
	item := doc.Data.toDomain(doc.ID)
	if item.UserID != strings.TrimSpace(userID) {
		// Mask foreign items as missing so handlers return 404 rather than leaking existence.
		return domain.CartItem{}, pfirestore.WrapError("cartItems.get", status.Error(codes.NotFound, "cart item not found"))
	}
	return item, nil
}

// FindItemByProduct locates the user's cart line for a product, if any.
func (r *CartRepository) FindItemByProduct(ctx context.Context, userID string, productID string) (domain.CartItem, error) {
	if r == nil || r.provider == nil {
		return domain.CartItem{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return domain.CartItem{}, errors.New("cart repository: user id and product id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CartItem{}, err
	}

	iter := client.Collection(cartItemsCollection).
		Where("userId", "==", uid).
		Where("productId", "==", pid).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snapshot, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.CartItem{}, pfirestore.WrapError("cartItems.findByProduct", status.Error(codes.NotFound, "cart item not found"))
	}
	if err != nil {
		return domain.CartItem{}, pfirestore.WrapError("cartItems.findByProduct", err)
	}

	var doc cartItemDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.CartItem{}, pfirestore.WrapError("cartItems.findByProduct", err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

// UpsertItem writes the cart item document.
func (r *CartRepository) UpsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if r == nil || r.base == nil {
		return domain.CartItem{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return domain.CartItem{}, errors.New("cart repository: item id is required")
	}
	if strings.TrimSpace(item.UserID) == "" {
		return domain.CartItem{}, errors.New("cart repository: user id is required")
	}

	doc := cartItemDocument{
		UserID:    strings.TrimSpace(item.UserID),
		ProductID: strings.TrimSpace(item.ProductID),
		Quantity:  item.Quantity,
		CreatedAt: item.CreatedAt.UTC(),
		UpdatedAt: item.UpdatedAt.UTC(),
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.CartItem{}, err
	}

	saved := item
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// RemoveItem deletes one cart item after verifying ownership.
func (r *CartRepository) RemoveItem(ctx context.Context, userID string, itemID string) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}

	if _, err := r.FindItem(ctx, userID, itemID); err != nil {
		return err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collection(cartItemsCollection).Doc(strings.TrimSpace(itemID)).Delete(ctx); err != nil {
		return pfirestore.WrapError("cartItems.delete", err)
	}
	return nil
}

// Clear removes every cart item the user owns.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	iter := client.Collection(cartItemsCollection).
		Where("userId", "==", uid).
		Documents(ctx)
	defer iter.Stop()

	writer := client.BulkWriter(ctx)
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			writer.End()
			return pfirestore.WrapError("cartItems.clear", err)
		}
		if _, err := writer.Delete(snapshot.Ref); err != nil {
			writer.End()
			return pfirestore.WrapError("cartItems.clear", err)
		}
	}
	writer.End()
	return nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
