package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/posbuzz/internal/adapter/storage"
	"github.com/rl1809/posbuzz/internal/config"
	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/core/service"
	"github.com/rl1809/posbuzz/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	unitPrice     = "9.99"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Initialize Redis
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Seed a fresh product for this run
	now := time.Now()
	product := domain.Product{
		ID:            uuid.NewString(),
		Name:          "stress-item",
		SKU:           "STRESS-" + uuid.NewString()[:8],
		Price:         decimal.RequireFromString(unitPrice),
		StockQuantity: initialStock,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := mysqlAdapter.CreateProduct(ctx, product); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}

	txOptions := port.TxOptions{MaxWait: cfg.SaleTxMaxWait, Timeout: cfg.SaleTxTimeout}
	saleService := service.NewSaleService(mysqlAdapter, redisAdapter, redisAdapter, txOptions)

	// Counters
	var successCount, soldOutCount, transientCount, otherCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := saleService.CreateSale(ctx, domain.CreateSaleRequest{
				Items: []domain.SaleLine{{ProductID: product.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			case domain.IsTransient(err):
				transientCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Transient:        %d\n", transientCount.Load())
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false

	// Assertions
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d sales succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
		failed = true
	}

	// Verify final stock in MySQL
	final, err := mysqlAdapter.GetProduct(ctx, product.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final MySQL Stock: %d\n", final.StockQuantity)

	if final.StockQuantity == initialStock-int(success) && final.StockQuantity >= 0 {
		fmt.Println("PASS: Stock matches recorded sales")
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", initialStock-int(success), final.StockQuantity)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
