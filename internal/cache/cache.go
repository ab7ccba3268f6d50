package cache

import (
	"context"
	"time"

	"gymstock/backend/internal/domain"
)

// CatalogCache holds the product catalog listing. Reporting views are never
// cached; the catalog is the only read hot enough to warrant it, and every
// write path invalidates synchronously.
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, bool, error)
	SetProducts(ctx context.Context, products []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetProducts(_ context.Context, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
