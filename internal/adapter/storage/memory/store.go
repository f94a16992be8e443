// Package memory is an in-process implementation of the storage ports. It
// backs local runs without MySQL or Redis (STORAGE_DRIVER=memory) and the
// transport tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/port"
)

// Store keeps products, users and sales in maps. Sale transactions are
// serialized by a one-slot semaphore and work on a copy of the products;
// their stock decrements are applied only on commit.
type Store struct {
	txSlot chan struct{}

	mu       sync.RWMutex
	products map[string]domain.Product
	users    map[string]domain.User
	sales    map[string]domain.Sale
}

func NewStore() *Store {
	return &Store{
		txSlot:   make(chan struct{}, 1),
		products: make(map[string]domain.Product),
		users:    make(map[string]domain.User),
		sales:    make(map[string]domain.Sale),
	}
}

func (s *Store) WithinTx(ctx context.Context, opts port.TxOptions, fn func(ctx context.Context, tx port.SaleTx) error) error {
	waitCtx, cancelWait := withBudget(ctx, opts.MaxWait)
	defer cancelWait()

	select {
	case s.txSlot <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() == nil {
			return fmt.Errorf("%w: %v", domain.ErrTransactionWaitTimeout, waitCtx.Err())
		}
		return ctx.Err()
	}
	defer func() { <-s.txSlot }()

	txCtx, cancel := withBudget(ctx, opts.Timeout)
	defer cancel()

	s.mu.RLock()
	tx := &memoryTx{
		products:   make(map[string]domain.Product, len(s.products)),
		decrements: make(map[string]int),
	}
	for id, p := range s.products {
		tx.products[id] = p
	}
	s.mu.RUnlock()

	err := fn(txCtx, tx)
	if err == nil {
		err = txCtx.Err()
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(txCtx.Err(), context.DeadlineExceeded) &&
			!errors.Is(err, domain.ErrProductNotFound) && !errors.Is(err, domain.ErrInsufficientStock) {
			return fmt.Errorf("%w: %v", domain.ErrTransactionTimeout, err)
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Catalog writes do not take txSlot, so the live rows may have moved
	// since the snapshot. Re-check before publishing anything.
	for id, quantity := range tx.decrements {
		p, ok := s.products[id]
		if !ok {
			return &domain.ProductNotFoundError{ProductID: id}
		}
		if p.StockQuantity < quantity {
			return &domain.InsufficientStockError{
				ProductID:   id,
				ProductName: p.Name,
				Available:   p.StockQuantity,
				Requested:   quantity,
			}
		}
	}

	now := time.Now()
	for id, quantity := range tx.decrements {
		p := s.products[id]
		p.StockQuantity -= quantity
		p.UpdatedAt = now
		s.products[id] = p
	}
	for _, sale := range tx.sales {
		s.sales[sale.ID] = sale
	}
	return nil
}

func withBudget(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type memoryTx struct {
	products   map[string]domain.Product
	decrements map[string]int
	sales      []domain.Sale
}

func (t *memoryTx) FindProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := t.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, id string, quantity int) error {
	p, ok := t.products[id]
	if !ok || p.StockQuantity < quantity {
		return domain.ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	t.products[id] = p
	t.decrements[id] += quantity
	return nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	t.sales = append(t.sales, sale)
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, nil
	}
	out := s.withNames(sale)
	return &out, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, s.withNames(sale))
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

// withNames copies sale and fills item product names from the catalog.
// Caller holds s.mu.
func (s *Store) withNames(sale domain.Sale) domain.Sale {
	items := make([]domain.SaleItem, len(sale.Items))
	for i, it := range sale.Items {
		if p, ok := s.products[it.ProductID]; ok {
			it.ProductName = p.Name
		}
		items[i] = it
	}
	sale.Items = items
	return sale
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.skuTaken(product.SKU, product.ID) {
		return domain.ErrDuplicateSKU
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return nil, err
	}
	if s.skuTaken(updated.SKU, id) {
		return nil, domain.ErrDuplicateSKU
	}
	updated.UpdatedAt = updatedAt
	s.products[id] = updated
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sale := range s.sales {
		for _, it := range sale.Items {
			if it.ProductID == id {
				return domain.ErrProductInUse
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) skuTaken(sku, exceptID string) bool {
	for _, p := range s.products {
		if p.SKU == sku && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return domain.ErrEmailTaken
	}
	s.users[user.Email] = user
	return nil
}
