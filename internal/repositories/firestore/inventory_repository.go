package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplemart/api/internal/domain"
	pfirestore "github.com/maplemart/api/internal/platform/firestore"
	"github.com/maplemart/api/internal/repositories"
)

// InventoryRepository implements repositories.InventoryRepository on top of
// the stock counts stored with each product document. Decrements read and
// write within one transaction so availability checks cannot race.
type InventoryRepository struct {
	provider *pfirestore.Provider
}

// NewInventoryRepository constructs a Firestore-backed stock ledger.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{provider: provider}, nil
}

// Decrement conditionally subtracts the requested quantities. Any violation
// aborts the transaction, so either every line is applied or none is.
func (r *InventoryRepository) Decrement(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
	return r.adjust(ctx, adjustments, now, true)
}

// Increment returns quantities to stock. Missing products are skipped.
func (r *InventoryRepository) Increment(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time) error {
	return r.adjust(ctx, adjustments, now, false)
}

func (r *InventoryRepository) adjust(ctx context.Context, adjustments []domain.StockAdjustment, now time.Time, subtract bool) error {
	if r == nil || r.provider == nil {
		return errors.New("inventory repository not initialised")
	}
	if len(adjustments) == 0 {
		return nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type update struct {
			ref   *firestore.DocumentRef
			stock int
		}
		updates := make([]update, 0, len(adjustments))

		for _, adjustment := range adjustments {
			id := strings.TrimSpace(adjustment.ProductID)
			if id == "" || adjustment.Quantity <= 0 {
				return repositories.NewInventoryError(repositories.InventoryErrorUnknown,
					fmt.Sprintf("invalid adjustment for product %q", adjustment.ProductID), nil)
			}

			ref := client.Collection(productsCollection).Doc(id)
			snapshot, err := tx.Get(ref)
			if status.Code(err) == codes.NotFound {
				if subtract {
					return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound,
						fmt.Sprintf("product %s has no stock record", id), nil)
				}
				continue
			}
			if err != nil {
				return err
			}

			var doc productDocument
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("inventory decode product %s: %w", id, err)
			}

			next := doc.Stock + adjustment.Quantity
			if subtract {
				if !doc.Active {
					return repositories.NewInventoryError(repositories.InventoryErrorProductInactive,
						fmt.Sprintf("product %s is not listed", id), nil)
				}
				if doc.Stock < adjustment.Quantity {
					return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
						fmt.Sprintf("product %s has %d left, requested %d", id, doc.Stock, adjustment.Quantity), nil)
				}
				next = doc.Stock - adjustment.Quantity
			}
			updates = append(updates, update{ref: ref, stock: next})
		}

		for _, entry := range updates {
			if err := tx.Update(entry.ref, []firestore.Update{
				{Path: "stock", Value: entry.stock},
				{Path: "updatedAt", Value: now.UTC()},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var inventoryErr *repositories.InventoryError
		if errors.As(err, &inventoryErr) {
			return inventoryErr
		}
		return pfirestore.WrapError("inventory.adjust", err)
	}
	return nil
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)
