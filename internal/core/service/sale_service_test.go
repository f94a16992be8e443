package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/port"
)

var testTxOptions = port.TxOptions{MaxWait: time.Second, Timeout: time.Second}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id, price string, stock int) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "product " + id,
		SKU:           "SKU-" + id,
		Price:         mustDecimal(price),
		StockQuantity: stock,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func saleRequest(lines ...domain.SaleLine) domain.CreateSaleRequest {
	return domain.CreateSaleRequest{Items: lines}
}

func line(productID string, quantity int) domain.SaleLine {
	return domain.SaleLine{ProductID: productID, Quantity: quantity}
}

func TestCreateSale_Success(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	cache := newMockCacheRepo()
	cache.values[ProductsCacheKey] = []byte("[]")
	svc := NewSaleService(store, cache, nil, testTxOptions)

	sale, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 3)))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if !sale.Total.Equal(mustDecimal("15.00")) {
		t.Errorf("expected total 15.00, got %s", sale.Total)
	}
	if len(sale.Items) != 1 || sale.Items[0].Quantity != 3 || !sale.Items[0].Price.Equal(mustDecimal("5.00")) {
		t.Errorf("unexpected items: %+v", sale.Items)
	}
	if sale.Items[0].SaleID != sale.ID || sale.ID == "" {
		t.Error("expected items to reference the sale")
	}
	if store.stock("P1") != 7 {
		t.Errorf("expected stock 7, got %d", store.stock("P1"))
	}
	if cache.has(ProductsCacheKey) {
		t.Error("expected products_list to be invalidated")
	}
}

func TestCreateSale_InsufficientStock(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 2))
	cache := newMockCacheRepo()
	svc := NewSaleService(store, cache, nil, testTxOptions)

	_, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 5)))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if stockErr.ProductID != "P1" || stockErr.Available != 2 || stockErr.Requested != 5 {
		t.Errorf("unexpected error details: %+v", stockErr)
	}

	if store.stock("P1") != 2 {
		t.Errorf("expected stock unchanged at 2, got %d", store.stock("P1"))
	}
	if store.saleCount() != 0 {
		t.Error("expected no sale persisted")
	}
	if cache.deleteCount() != 0 {
		t.Error("expected no cache invalidation on failure")
	}
}

func TestCreateSale_ProductNotFoundRollsBack(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	_, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 2), line("P2", 1)))

	var notFound *domain.ProductNotFoundError
	if !errors.As(err, &notFound) || notFound.ProductID != "P2" {
		t.Fatalf("expected ProductNotFound(P2), got: %v", err)
	}
	if store.stock("P1") != 10 {
		t.Errorf("expected P1 stock unchanged at 10, got %d", store.stock("P1"))
	}
	if store.saleCount() != 0 {
		t.Error("expected no sale persisted")
	}
}

func TestCreateSale_LaterLineFailureRollsBackEarlierLines(t *testing.T) {
	store := newMemoryStore(product("P1", "1.00", 10), product("P2", "1.00", 10), product("P3", "1.00", 1))
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	_, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 4), line("P2", 4), line("P3", 2)))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	for id, want := range map[string]int{"P1": 10, "P2": 10, "P3": 1} {
		if got := store.stock(id); got != want {
			t.Errorf("%s: expected stock %d, got %d", id, want, got)
		}
	}
}

func TestCreateSale_TotalEqualsSumOfSubtotals(t *testing.T) {
	store := newMemoryStore(
		product("P1", "0.10", 100),
		product("P2", "19.99", 100),
		product("P3", "0.01", 100),
	)
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	sale, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 3), line("P2", 7), line("P3", 99)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := decimal.Zero
	for _, it := range sale.Items {
		sum = sum.Add(it.Subtotal())
	}
	if !sum.Equal(sale.Total) {
		t.Errorf("sum of subtotals %s != total %s", sum, sale.Total)
	}
	if !sale.Total.Equal(mustDecimal("141.22")) {
		t.Errorf("expected total 141.22, got %s", sale.Total)
	}

	// Items keep input order
	for i, id := range []string{"P1", "P2", "P3"} {
		if sale.Items[i].ProductID != id {
			t.Errorf("item %d: expected %s, got %s", i, id, sale.Items[i].ProductID)
		}
	}

	for id, want := range map[string]int{"P1": 97, "P2": 93, "P3": 1} {
		if got := store.stock(id); got != want {
			t.Errorf("%s: expected stock %d, got %d", id, want, got)
		}
	}
}

func TestCreateSale_DuplicateLinesSeeEarlierDecrement(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		store := newMemoryStore(product("P1", "2.00", 5))
		svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

		sale, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 2), line("P1", 3)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sale.Items) != 2 {
			t.Errorf("expected lines not to be coalesced, got %d items", len(sale.Items))
		}
		if !sale.Total.Equal(mustDecimal("10.00")) {
			t.Errorf("expected total 10.00, got %s", sale.Total)
		}
		if store.stock("P1") != 0 {
			t.Errorf("expected stock 0, got %d", store.stock("P1"))
		}
	})

	t.Run("exceeds", func(t *testing.T) {
		store := newMemoryStore(product("P1", "2.00", 5))
		svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

		_, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 3), line("P1", 3)))

		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got: %v", err)
		}
		if stockErr.Available != 2 || stockErr.Requested != 3 {
			t.Errorf("expected available 2 / requested 3, got %+v", stockErr)
		}
		if store.stock("P1") != 5 {
			t.Errorf("expected stock unchanged at 5, got %d", store.stock("P1"))
		}
	})
}

func TestCreateSale_PriceSnapshot(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	sale, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.setPrice("P1", "9.99")

	stored, err := svc.GetSale(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if !stored.Items[0].Price.Equal(mustDecimal("5.00")) {
		t.Errorf("expected recorded price 5.00, got %s", stored.Items[0].Price)
	}
	if !stored.Total.Equal(mustDecimal("5.00")) {
		t.Errorf("expected recorded total 5.00, got %s", stored.Total)
	}
}

func TestCreateSale_ConcurrentSameProduct(t *testing.T) {
	store := newMemoryStore(product("P1", "1.00", 10))
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	var successCount atomic.Int32
	var stockFailures atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 6)))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				stockFailures.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 || stockFailures.Load() != 1 {
		t.Errorf("expected 1 success and 1 InsufficientStock, got %d/%d", successCount.Load(), stockFailures.Load())
	}
	if store.stock("P1") != 4 {
		t.Errorf("expected stock 4, got %d", store.stock("P1"))
	}
}

func TestCreateSale_ConcurrentNeverOversells(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	store := newMemoryStore(product("P1", "1.00", initialStock))
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 1))); err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if store.stock("P1") != 0 {
		t.Errorf("expected stock 0, got %d", store.stock("P1"))
	}
	if store.saleCount() != initialStock {
		t.Errorf("expected %d sales, got %d", initialStock, store.saleCount())
	}
}

func TestCreateSale_CacheFailureDoesNotFailSale(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	cache := newMockCacheRepo()
	cache.deleteErr = errCacheDown
	svc := NewSaleService(store, cache, nil, testTxOptions)

	sale, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 1)))
	if err != nil {
		t.Fatalf("expected success despite cache failure, got: %v", err)
	}
	if sale == nil || store.saleCount() != 1 {
		t.Error("expected sale to be persisted")
	}
	if cache.deleteCount() != 1 {
		t.Errorf("expected one invalidation attempt, got %d", cache.deleteCount())
	}
}

func TestCreateSale_ValidationBeforeTransaction(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	svc := NewSaleService(store, newMockCacheRepo(), nil, testTxOptions)

	requests := []domain.CreateSaleRequest{
		saleRequest(),
		saleRequest(line("P1", 0)),
		saleRequest(line("", 1)),
	}
	for _, req := range requests {
		if _, err := svc.CreateSale(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation for %+v, got: %v", req, err)
		}
	}
	if store.txCount != 0 {
		t.Errorf("expected no transaction to start, got %d", store.txCount)
	}
}

func TestCreateSale_TransactionErrorPropagates(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	store.txErr = domain.ErrTransactionWaitTimeout
	cache := newMockCacheRepo()
	svc := NewSaleService(store, cache, nil, testTxOptions)

	_, err := svc.CreateSale(context.Background(), saleRequest(line("P1", 1)))
	if !errors.Is(err, domain.ErrTransactionWaitTimeout) {
		t.Fatalf("expected ErrTransactionWaitTimeout, got: %v", err)
	}
	if !domain.IsTransient(err) {
		t.Error("expected transient error")
	}
	if cache.deleteCount() != 0 {
		t.Error("expected no invalidation when the transaction fails")
	}
}

func TestCreateSale_IdempotencyKey(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 10))
	idem := newMockIdempotencyRepo()
	svc := NewSaleService(store, newMockCacheRepo(), idem, testTxOptions)

	req := saleRequest(line("P1", 1))
	req.IdempotencyKey = "req-1"

	if _, err := svc.CreateSale(context.Background(), req); err != nil {
		t.Fatalf("first sale failed: %v", err)
	}

	_, err := svc.CreateSale(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Stock should only be decremented once
	if store.stock("P1") != 9 {
		t.Errorf("expected stock 9, got %d", store.stock("P1"))
	}
}

func TestCreateSale_FailedSaleReleasesIdempotencyKey(t *testing.T) {
	store := newMemoryStore(product("P1", "5.00", 1))
	idem := newMockIdempotencyRepo()
	svc := NewSaleService(store, newMockCacheRepo(), idem, testTxOptions)

	req := saleRequest(line("P1", 2))
	req.IdempotencyKey = "req-2"

	if _, err := svc.CreateSale(context.Background(), req); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	// Retry with a valid quantity under the same key
	req.Items[0].Quantity = 1
	if _, err := svc.CreateSale(context.Background(), req); err != nil {
		t.Errorf("expected retry to succeed, got: %v", err)
	}
}

func TestGetSale_NotFound(t *testing.T) {
	svc := NewSaleService(newMemoryStore(), nil, nil, testTxOptions)

	if _, err := svc.GetSale(context.Background(), "missing"); !errors.Is(err, domain.ErrSaleNotFound) {
		t.Errorf("expected ErrSaleNotFound, got: %v", err)
	}
}

func TestListSales_NewestFirst(t *testing.T) {
	store := newMemoryStore(product("P1", "1.00", 10))
	svc := NewSaleService(store, nil, nil, testTxOptions)

	base := time.Now()
	calls := 0
	svc.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}

	first, _ := svc.CreateSale(context.Background(), saleRequest(line("P1", 1)))
	second, _ := svc.CreateSale(context.Background(), saleRequest(line("P1", 1)))

	sales, err := svc.ListSales(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if len(sales) != 2 || sales[0].ID != second.ID || sales[1].ID != first.ID {
		t.Errorf("expected newest sale first, got %+v", sales)
	}
}
