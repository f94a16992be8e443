package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/obs"
	"github.com/rl1809/posbuzz/internal/port"
)

// ProductsCacheKey holds the cached product list.
const ProductsCacheKey = "products_list"

const (
	idempotencyKeyPrefix = "idempotency:sale:"
	defaultSalesLimit    = 50
)

type SaleService struct {
	store       port.SaleStore
	cache       port.CacheRepository
	idempotency port.IdempotencyRepository
	txOptions   port.TxOptions
	now         func() time.Time
}

func NewSaleService(store port.SaleStore, cache port.CacheRepository, idempotency port.IdempotencyRepository, txOptions port.TxOptions) *SaleService {
	return &SaleService{
		store:       store,
		cache:       cache,
		idempotency: idempotency,
		txOptions:   txOptions,
		now:         time.Now,
	}
}

// CreateSale records a sale for the requested lines. Stock checks, stock
// decrements and the sale insert share one transaction: any failure leaves
// stock and sales untouched. Lines are processed in order and a product that
// appears twice is checked against the stock left by the earlier line.
func (s *SaleService) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (*domain.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		key := idempotencyKeyPrefix + req.IdempotencyKey
		ok, err := s.idempotency.SetIdempotency(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}

		sale, err := s.createSale(ctx, req.Items)
		if err != nil {
			if releaseErr := s.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				obs.Logger.Warn("idempotency_release_failed", "key", req.IdempotencyKey, "error", releaseErr)
			}
			return nil, err
		}
		return sale, nil
	}

	return s.createSale(ctx, req.Items)
}

func (s *SaleService) createSale(ctx context.Context, lines []domain.SaleLine) (*domain.Sale, error) {
	now := s.now()
	sale := domain.Sale{
		ID:        uuid.NewString(),
		Total:     decimal.Zero,
		CreatedAt: now,
		Items:     make([]domain.SaleItem, 0, len(lines)),
	}

	err := s.store.WithinTx(ctx, s.txOptions, func(ctx context.Context, tx port.SaleTx) error {
		for _, line := range lines {
			product, err := tx.FindProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("find product %s: %w", line.ProductID, err)
			}
			if product == nil {
				return &domain.ProductNotFoundError{ProductID: line.ProductID}
			}

			if product.StockQuantity < line.Quantity {
				return &domain.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.StockQuantity,
					Requested:   line.Quantity,
				}
			}

			item := domain.SaleItem{
				ID:          uuid.NewString(),
				SaleID:      sale.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				Price:       product.Price,
			}
			sale.Total = sale.Total.Add(item.Subtotal())
			sale.Items = append(sale.Items, item)

			if err := tx.DecrementStock(ctx, product.ID, line.Quantity); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					return &domain.InsufficientStockError{
						ProductID:   product.ID,
						ProductName: product.Name,
						Available:   product.StockQuantity,
						Requested:   line.Quantity,
					}
				}
				return fmt.Errorf("decrement stock %s: %w", product.ID, err)
			}
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProducts(ctx)

	obs.Logger.Info("sale_created",
		"sale_id", sale.ID,
		"items", len(sale.Items),
		"total", sale.Total.StringFixed(2),
	)
	return &sale, nil
}

// invalidateProducts evicts the cached product list. The sale is already
// committed, so a cache failure is only logged.
func (s *SaleService) invalidateProducts(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.WithoutCancel(ctx), ProductsCacheKey); err != nil {
		obs.Logger.Warn("cache_invalidate_failed", "key", ProductsCacheKey, "error", err)
	}
}

func (s *SaleService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := s.store.GetSale(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		return nil, domain.ErrSaleNotFound
	}
	return sale, nil
}

func (s *SaleService) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit <= 0 || limit > defaultSalesLimit {
		limit = defaultSalesLimit
	}
	sales, err := s.store.ListSales(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}
