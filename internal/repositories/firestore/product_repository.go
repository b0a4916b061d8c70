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

	domain "github.com/lumamart/api/internal/domain"
	pfirestore "github.com/lumamart/api/internal/platform/firestore"
	"github.com/lumamart/api/internal/repositories"
)

const (
	productsCollection = "products"

	defaultProductPageSize = 50
	maxProductPageSize     = 200
)

type productDocument struct {
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description,omitempty"`
	ImageURL     string    `firestore:"imageUrl,omitempty"`
	Price        int64     `firestore:"price"`
	Stock        int64     `firestore:"stock"`
	WeightKg     float64   `firestore:"weightKg"`
	WidthCm      float64   `firestore:"widthCm"`
	HeightCm     float64   `firestore:"heightCm"`
	LengthCm     float64   `firestore:"lengthCm"`
	FreeShipping bool      `firestore:"freeShipping"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: products}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs loads the referenced products, failing when any id is unknown.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	seen := make(map[string]struct{}, len(productIDs))
	products := make([]domain.Product, 0, len(productIDs))
	for _, raw := range productIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		product, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// List returns a page of catalog products ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	limit := filter.Pagination.Limit
	if limit <= 0 {
		limit = defaultProductPageSize
	}
	if limit > maxProductPageSize {
		limit = maxProductPageSize
	}

	cursor := strings.TrimSpace(filter.Pagination.Cursor)

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor != "" {
			q = q.StartAfter(cursor)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	for i, doc := range docs {
		if i == limit {
			page.NextPageToken = docs[limit-1].ID
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// AdjustStock applies a single stock delta inside a transaction.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product stock: product id is required")
	}

	var result domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}
		next := doc.Stock + delta
		if next < 0 {
			return status.Errorf(codes.FailedPrecondition,
				"product %s stock would go negative (%d%+d)", id, doc.Stock, delta)
		}
		doc.Stock = next
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		result = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.adjustStock", err)
	}
	return result, nil
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		Price:       d.Price,
		Stock:       d.Stock,
		Envelope: domain.ShippingEnvelope{
			WeightKg: d.WeightKg,
			WidthCm:  d.WidthCm,
			HeightCm: d.HeightCm,
			LengthCm: d.LengthCm,
		},
		FreeShipping: d.FreeShipping,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
