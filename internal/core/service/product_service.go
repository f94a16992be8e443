package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/obs"
	"github.com/rl1809/posbuzz/internal/port"
)

type ProductService struct {
	repo     port.ProductRepository
	cache    port.CacheRepository
	cacheTTL time.Duration
	now      func() time.Time
}

func NewProductService(repo port.ProductRepository, cache port.CacheRepository, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *ProductService) Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	product := domain.Product{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		SKU:           strings.TrimSpace(in.SKU),
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.invalidate(ctx)
	return &product, nil
}

// List serves the product list from cache, loading and caching it on a miss.
// Cache failures fall back to the database.
func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, ProductsCacheKey)
		if err != nil {
			obs.Logger.Warn("cache_get_failed", "key", ProductsCacheKey, "error", err)
		} else if ok {
			var products []domain.Product
			if err := json.Unmarshal(raw, &products); err == nil {
				return products, nil
			}
			obs.Logger.Warn("cache_decode_failed", "key", ProductsCacheKey)
		}
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	if s.cache != nil {
		raw, err := json.Marshal(products)
		if err == nil {
			err = s.cache.Set(ctx, ProductsCacheKey, raw, s.cacheTTL)
		}
		if err != nil {
			obs.Logger.Warn("cache_set_failed", "key", ProductsCacheKey, "error", err)
		}
	}
	return products, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}
	return product, nil
}

// Update applies a partial update. Only the fields present in patch are
// written; stock changed by sales since the caller last read the product
// is preserved unless the patch sets stock_quantity explicitly.
func (s *ProductService) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	product, err := s.repo.UpdateProduct(ctx, id, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if product == nil {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}

	s.invalidate(ctx)
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.invalidate(ctx)
	return nil
}

func (s *ProductService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.WithoutCancel(ctx), ProductsCacheKey); err != nil {
		obs.Logger.Warn("cache_invalidate_failed", "key", ProductsCacheKey, "error", err)
	}
}
