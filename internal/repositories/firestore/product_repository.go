package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"golang.org/x/text/unicode/norm"
	"google.golang.org/api/iterator"

	domain "github.com/maplemart/api/internal/domain"
	pfirestore "github.com/maplemart/api/internal/platform/firestore"
	"github.com/maplemart/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	SKU         string    `firestore:"sku,omitempty"`
	Name        string    `firestore:"name"`
	SearchName  string    `firestore:"searchName"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	Stock       int       `firestore:"stock"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string, updateTime time.Time) domain.Product {
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = updateTime
	}
	return domain.Product{
		ID:          id,
		SKU:         d.SKU,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Stock:       d.Stock,
		ImageURL:    d.ImageURL,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}

func productToDocument(product domain.Product) productDocument {
	return productDocument{
		SKU:         strings.TrimSpace(product.SKU),
		Name:        strings.TrimSpace(product.Name),
		SearchName:  normalizeSearchTerm(product.Name),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		Stock:       product.Stock,
		ImageURL:    strings.TrimSpace(product.ImageURL),
		Active:      product.Active,
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

// normalizeSearchTerm folds a display name into the form stored for prefix search.
func normalizeSearchTerm(value string) string {
	folded := norm.NFKC.String(strings.TrimSpace(value))
	return strings.ToLower(folded)
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the product document, failing when the ID already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, productToDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces the stored document with the supplied product state.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "name", Value: strings.TrimSpace(product.Name)},
		{Path: "searchName", Value: normalizeSearchTerm(product.Name)},
		{Path: "description", Value: strings.TrimSpace(product.Description)},
		{Path: "price", Value: product.Price},
		{Path: "stock", Value: product.Stock},
		{Path: "imageUrl", Value: strings.TrimSpace(product.ImageURL)},
		{Path: "active", Value: product.Active},
		{Path: "updatedAt", Value: product.UpdatedAt.UTC()},
	})
	return err
}

// SetActive flips the listing flag without touching the rest of the document.
func (r *ProductRepository) SetActive(ctx context.Context, productID string, active bool, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "active", Value: active},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.UpdateTime), nil
}

// FindByIDs loads the requested products keyed by ID. Missing products are
// simply absent from the result map.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(trimmed))
	}

	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIds", err)
	}

	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			continue
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("products.findByIds", err)
		}
		out[snapshot.Ref.ID] = doc.toDomain(snapshot.Ref.ID, snapshot.UpdateTime)
	}
	return out, nil
}

// List returns an offset page of products ordered by creation time, newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Product]{}, errors.New("product repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}

	query := client.Collection(productsCollection).Query
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	if keyword := normalizeSearchTerm(filter.Keyword); keyword != "" {
		query = query.
			Where("searchName", ">=", keyword).
			Where("searchName", "<", keyword+"\uf8ff").
			OrderBy("searchName", firestore.Asc)
	} else {
		query = query.OrderBy("createdAt", firestore.Desc)
	}

	pager := filter.Pagination
	if pager.PageSize <= 0 {
		pager.PageSize = 10
	}
	if pager.Page <= 0 {
		pager.Page = 1
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	iter := query.Offset(pager.Offset()).Limit(pager.PageSize).Documents(ctx)
	defer iter.Stop()

	var items []domain.Product
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		items = append(items, doc.toDomain(snapshot.Ref.ID, snapshot.UpdateTime))
	}

	return domain.NewPage(items, domain.Pagination{Page: pager.Page, PageSize: pager.PageSize}, total), nil
}

// countDocuments runs a server-side aggregation over the query.
func countDocuments(ctx context.Context, query firestore.Query) (int64, error) {
	aggregation := query.NewAggregationQuery().WithCount("total")
	result, err := aggregation.Get(ctx)
	if err != nil {
		return 0, err
	}
	value, ok := result["total"]
	if !ok {
		return 0, errors.New("aggregation result missing count")
	}
	count, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, errors.New("unexpected aggregation value type")
	}
	return count.GetIntegerValue(), nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
