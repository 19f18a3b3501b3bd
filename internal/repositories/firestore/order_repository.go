package firestore

import (
	"context"
	"errors"
	"fmt"
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

const ordersCollection = "orders"

type orderDocument struct {
	Number         string               `firestore:"number"`
	UserID         string               `firestore:"userId"`
	Status         string               `firestore:"status"`
	Lines          []orderLineDocument  `firestore:"lines"`
	TotalAmount    int64                `firestore:"totalAmount"`
	Address        orderAddressDocument `firestore:"address"`
	Remark         string               `firestore:"remark,omitempty"`
	PaymentMethod  string               `firestore:"paymentMethod,omitempty"`
	TrackingNumber string               `firestore:"trackingNumber,omitempty"`
	CancelReason   string               `firestore:"cancelReason,omitempty"`
	CreatedAt      time.Time            `firestore:"createdAt"`
	UpdatedAt      time.Time            `firestore:"updatedAt"`
	PaidAt         *time.Time           `firestore:"paidAt,omitempty"`
	ShippedAt      *time.Time           `firestore:"shippedAt,omitempty"`
	DeliveredAt    *time.Time           `firestore:"deliveredAt,omitempty"`
	CancelledAt    *time.Time           `firestore:"cancelledAt,omitempty"`
}

type orderLineDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	ImageURL    string `firestore:"imageUrl,omitempty"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
}

type orderAddressDocument struct {
	Recipient string `firestore:"recipient"`
	Phone     string `firestore:"phone"`
	Province  string `firestore:"province,omitempty"`
	City      string `firestore:"city,omitempty"`
	District  string `firestore:"district,omitempty"`
	Detail    string `firestore:"detail"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ImageURL:    line.ImageURL,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
		})
	}
	return domain.Order{
		ID:             id,
		Number:         d.Number,
		UserID:         d.UserID,
		Status:         domain.OrderStatus(d.Status),
		Lines:          lines,
		TotalAmount:    d.TotalAmount,
		Address:        domain.Address(d.Address),
		Remark:         d.Remark,
		PaymentMethod:  d.PaymentMethod,
		TrackingNumber: d.TrackingNumber,
		CancelReason:   d.CancelReason,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		PaidAt:         d.PaidAt,
		ShippedAt:      d.ShippedAt,
		DeliveredAt:    d.DeliveredAt,
		CancelledAt:    d.CancelledAt,
	}
}

func orderToDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ImageURL:    line.ImageURL,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
		})
	}
	return orderDocument{
		Number:         order.Number,
		UserID:         order.UserID,
		Status:         string(order.Status),
		Lines:          lines,
		TotalAmount:    order.TotalAmount,
		Address:        orderAddressDocument(order.Address),
		Remark:         order.Remark,
		PaymentMethod:  order.PaymentMethod,
		TrackingNumber: order.TrackingNumber,
		CancelReason:   order.CancelReason,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		PaidAt:         order.PaidAt,
		ShippedAt:      order.ShippedAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
	}
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Every mutation that reads order or stock state performs the read inside the
// same transaction that writes, so concurrent requests serialise on commit.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Checkout validates the requested cart items against live product state,
// snapshots prices, decrements stock, writes the order, and deletes the
// consumed cart items in one transaction. Firestore requires all reads to
// precede writes inside a transaction, so the flow is: read cart items, read
// products, validate everything, then apply the writes.
func (r *OrderRepository) Checkout(ctx context.Context, req repositories.CheckoutRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.Order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if len(req.CartItemIDs) == 0 {
		return domain.Order{}, errors.New("order repository: cart item ids are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var created domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingLine struct {
			itemRef   *firestore.DocumentRef
			productID string
			quantity  int
		}

		pending := make([]pendingLine, 0, len(req.CartItemIDs))
		for _, itemID := range req.CartItemIDs {
			ref := client.Collection(cartItemsCollection).Doc(strings.TrimSpace(itemID))
			snapshot, err := tx.Get(ref)
			if status.Code(err) == codes.NotFound {
				return pfirestore.WrapError("orders.checkout", status.Errorf(codes.NotFound, "cart item %s not found", itemID))
			}
			if err != nil {
				return err
			}
			var item cartItemDocument
			if err := snapshot.DataTo(&item); err != nil {
				return fmt.Errorf("orders.checkout decode cart item %s: %w", itemID, err)
			}
			if item.UserID != req.Order.UserID {
				return pfirestore.WrapError("orders.checkout", status.Errorf(codes.NotFound, "cart item %s not found", itemID))
			}
			pending = append(pending, pendingLine{
				itemRef:   ref,
				productID: item.ProductID,
				quantity:  item.Quantity,
			})
		}

		type productState struct {
			ref *firestore.DocumentRef
			doc productDocument
			ok  bool
		}

		products := make(map[string]*productState, len(pending))
		for _, line := range pending {
			if _, loaded := products[line.productID]; loaded {
				continue
			}
			ref := client.Collection(productsCollection).Doc(line.productID)
			snapshot, err := tx.Get(ref)
			if status.Code(err) == codes.NotFound {
				products[line.productID] = &productState{ref: ref}
				continue
			}
			if err != nil {
				return err
			}
			var doc productDocument
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("orders.checkout decode product %s: %w", line.productID, err)
			}
			products[line.productID] = &productState{ref: ref, doc: doc, ok: true}
		}

		var violations []domain.UnavailableItem
		for _, line := range pending {
			state := products[line.productID]
			switch {
			case !state.ok:
				violations = append(violations, domain.UnavailableItem{
					ProductID: line.productID,
					Reason:    domain.UnavailableReasonMissing,
				})
			case !state.doc.Active:
				violations = append(violations, domain.UnavailableItem{
					ProductID:   line.productID,
					ProductName: state.doc.Name,
					Reason:      domain.UnavailableReasonInactive,
				})
			case state.doc.Stock < line.quantity:
				violations = append(violations, domain.UnavailableItem{
					ProductID:   line.productID,
					ProductName: state.doc.Name,
					Reason:      domain.UnavailableReasonInsufficientStock,
					Remaining:   state.doc.Stock,
				})
			}
		}
		if len(violations) > 0 {
			return &repositories.CheckoutError{Items: violations}
		}

		order := req.Order
		order.Lines = make([]domain.OrderLine, 0, len(pending))
		order.TotalAmount = 0
		for _, line := range pending {
			state := products[line.productID]
			snapshot := domain.OrderLine{
				ProductID:   line.productID,
				ProductName: state.doc.Name,
				ImageURL:    state.doc.ImageURL,
				UnitPrice:   state.doc.Price,
				Quantity:    line.quantity,
			}
			order.Lines = append(order.Lines, snapshot)
			order.TotalAmount += snapshot.Subtotal()
		}
		order.CreatedAt = req.Now
		order.UpdatedAt = req.Now

		for _, line := range pending {
			state := products[line.productID]
			state.doc.Stock -= line.quantity
			if err := tx.Update(state.ref, []firestore.Update{
				{Path: "stock", Value: state.doc.Stock},
				{Path: "updatedAt", Value: req.Now.UTC()},
			}); err != nil {
				return err
			}
		}

		orderRef := client.Collection(ordersCollection).Doc(orderID)
		if err := tx.Create(orderRef, orderToDocument(order)); err != nil {
			return err
		}

		for _, line := range pending {
			if err := tx.Delete(line.itemRef); err != nil {
				return err
			}
		}

		created = order
		return nil
	})
	if err != nil {
		var checkoutErr *repositories.CheckoutError
		if errors.As(err, &checkoutErr) {
			return domain.Order{}, checkoutErr
		}
		return domain.Order{}, pfirestore.WrapError("orders.checkout", err)
	}
	return created, nil
}

// Transition re-reads the order inside the transaction, verifies ownership and
// source status, applies the mutation, and writes the result.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.TransitionRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(ordersCollection).Doc(orderID)
		order, err := readOrderForUpdate(tx, ref, req.ExpectOwner, req.From)
		if err != nil {
			return err
		}

		order.Status = req.To
		order.UpdatedAt = req.Now
		if req.Apply != nil {
			req.Apply(&order)
		}

		if err := tx.Set(ref, orderToDocument(order)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, passThroughOrderError("orders.transition", err)
	}
	return updated, nil
}

// CancelAndRestock cancels the order and returns every line quantity to stock
// in the same transaction. Products deleted since the order was placed are
// skipped rather than resurrected.
func (r *OrderRepository) CancelAndRestock(ctx context.Context, req repositories.CancelRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(ordersCollection).Doc(orderID)
		order, err := readOrderForUpdate(tx, ref, req.ExpectOwner, req.From)
		if err != nil {
			return err
		}

		type restock struct {
			ref   *firestore.DocumentRef
			stock int
		}
		restocks := make([]restock, 0, len(order.Lines))
		for _, line := range order.Lines {
			productRef := client.Collection(productsCollection).Doc(line.ProductID)
			snapshot, err := tx.Get(productRef)
			if status.Code(err) == codes.NotFound {
				continue
			}
			if err != nil {
				return err
			}
			var doc productDocument
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("orders.cancel decode product %s: %w", line.ProductID, err)
			}
			restocks = append(restocks, restock{ref: productRef, stock: doc.Stock + line.Quantity})
		}

		now := req.Now
		order.Status = domain.OrderStatusCancelled
		order.CancelReason = strings.TrimSpace(req.Reason)
		order.CancelledAt = &now
		order.UpdatedAt = now

		for _, entry := range restocks {
			if err := tx.Update(entry.ref, []firestore.Update{
				{Path: "stock", Value: entry.stock},
				{Path: "updatedAt", Value: now.UTC()},
			}); err != nil {
				return err
			}
		}

		if err := tx.Set(ref, orderToDocument(order)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, passThroughOrderError("orders.cancel", err)
	}
	return updated, nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns an offset page of orders ordered by creation time, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	query = query.OrderBy("createdAt", firestore.Desc)

	pager := filter.Pagination
	if pager.PageSize <= 0 {
		pager.PageSize = 10
	}
	if pager.Page <= 0 {
		pager.Page = 1
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	iter := query.Offset(pager.Offset()).Limit(pager.PageSize).Documents(ctx)
	defer iter.Stop()

	var items []domain.Order
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		items = append(items, doc.toDomain(snapshot.Ref.ID))
	}

	return domain.NewPage(items, domain.Pagination{Page: pager.Page, PageSize: pager.PageSize}, total), nil
}

// readOrderForUpdate fetches the order inside the transaction and enforces
// ownership and source-status guards shared by Transition and CancelAndRestock.
func readOrderForUpdate(tx *firestore.Transaction, ref *firestore.DocumentRef, expectOwner string, from []domain.OrderStatus) (domain.Order, error) {
	snapshot, err := tx.Get(ref)
	if err != nil {
		return domain.Order{}, err
	}
	var doc orderDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", ref.ID, err)
	}
	order := doc.toDomain(ref.ID)

	if owner := strings.TrimSpace(expectOwner); owner != "" && order.UserID != owner {
		return domain.Order{}, &repositories.OrderOwnershipError{OrderID: ref.ID}
	}
	if len(from) > 0 {
		allowed := false
		for _, candidate := range from {
			if order.Status == candidate {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.Order{}, &repositories.OrderConflictError{OrderID: ref.ID, Status: order.Status}
		}
	}
	return order, nil
}

// passThroughOrderError keeps typed guard errors intact and wraps driver failures.
func passThroughOrderError(op string, err error) error {
	var conflict *repositories.OrderConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	var ownership *repositories.OrderOwnershipError
	if errors.As(err, &ownership) {
		return ownership
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
