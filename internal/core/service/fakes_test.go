package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/port"
)

// Mock SaleStore and ProductRepository. Transactions are serialized by mu,
// which stands in for the row locks taken by the real store, and work on a
// copy of the products that is only published on commit.
type memoryStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	sales    map[string]domain.Sale
	txCount  int
	txErr    error
}

func newMemoryStore(products ...domain.Product) *memoryStore {
	m := &memoryStore{
		products: make(map[string]domain.Product),
		sales:    make(map[string]domain.Sale),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memoryStore) WithinTx(ctx context.Context, opts port.TxOptions, fn func(ctx context.Context, tx port.SaleTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	if m.txErr != nil {
		return m.txErr
	}

	tx := &memoryTx{products: make(map[string]domain.Product, len(m.products))}
	for id, p := range m.products {
		tx.products[id] = p
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.products = tx.products
	for _, s := range tx.sales {
		m.sales[s.ID] = s
	}
	return nil
}

func (m *memoryStore) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sales := make([]domain.Sale, 0, len(m.sales))
	for _, s := range m.sales {
		sales = append(sales, s)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (m *memoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].CreatedAt.After(products[j].CreatedAt) })
	return products, nil
}

func (m *memoryStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memoryStore) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.SKU == product.SKU {
			return domain.ErrDuplicateSKU
		}
	}
	m.products[product.ID] = product
	return nil
}

func (m *memoryStore) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = updatedAt
	m.products[id] = updated
	return &updated, nil
}

func (m *memoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sales {
		for _, it := range s.Items {
			if it.ProductID == id {
				return domain.ErrProductInUse
			}
		}
	}
	delete(m.products, id)
	return nil
}

func (m *memoryStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].StockQuantity
}

func (m *memoryStore) saleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

func (m *memoryStore) setPrice(id string, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Price = mustDecimal(price)
	m.products[id] = p
}

type memoryTx struct {
	products map[string]domain.Product
	sales    []domain.Sale
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
	return nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	t.sales = append(t.sales, sale)
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu        sync.Mutex
	values    map[string][]byte
	deletes   int
	getErr    error
	deleteErr error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{values: make(map[string][]byte)}
}

func (c *mockCacheRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mockCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mockCacheRepo) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletes++
	if c.deleteErr != nil {
		return c.deleteErr
	}
	delete(c.values, key)
	return nil
}

func (c *mockCacheRepo) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

func (c *mockCacheRepo) deleteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deletes
}

// Mock IdempotencyRepository
type mockIdempotencyRepo struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{keys: make(map[string]bool)}
}

func (m *mockIdempotencyRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotencyRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

var errCacheDown = errors.New("cache down")
