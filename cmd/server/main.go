package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/rl1809/posbuzz/internal/adapter/handler"
	"github.com/rl1809/posbuzz/internal/adapter/storage"
	"github.com/rl1809/posbuzz/internal/adapter/storage/memory"
	"github.com/rl1809/posbuzz/internal/adapter/token"
	"github.com/rl1809/posbuzz/internal/config"
	"github.com/rl1809/posbuzz/internal/core/service"
	"github.com/rl1809/posbuzz/internal/obs"
	"github.com/rl1809/posbuzz/internal/port"
)

// backend is the set of storage ports chosen by STORAGE_DRIVER.
type backend struct {
	products    port.ProductRepository
	users       port.UserRepository
	sales       port.SaleStore
	cache       port.CacheRepository
	idempotency port.IdempotencyRepository
	close       func()
}

func main() {
	cfg := config.Load()
	obs.InitLogger(cfg.LogLevel)

	// Prices and totals go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.JWTSecret == "" {
		obs.Logger.Error("config_invalid", "error", "JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		b   *backend
		err error
	)
	switch cfg.StorageDriver {
	case "memory":
		b = memoryBackend()
	case "mysql":
		b, err = mysqlBackend(ctx, cfg)
	default:
		err = errors.New("unknown STORAGE_DRIVER " + cfg.StorageDriver)
	}
	if err != nil {
		obs.Logger.Error("storage_init_failed", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer b.close()
	obs.Logger.Info("storage_ready", "driver", cfg.StorageDriver)

	txOptions := port.TxOptions{MaxWait: cfg.SaleTxMaxWait, Timeout: cfg.SaleTxTimeout}
	productService := service.NewProductService(b.products, b.cache, cfg.ProductsCacheTTL)
	saleService := service.NewSaleService(b.sales, b.cache, b.idempotency, txOptions)
	authService := service.NewAuthService(b.users, token.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterSalesServer(grpcServer, handler.NewGRPCHandler(saleService))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		obs.Logger.Error("grpc_listen_failed", "addr", cfg.GRPCAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		obs.Logger.Info("grpc_listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			obs.Logger.Error("grpc_server_error", "error", err)
		}
	}()

	// Initialize HTTP server
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handler.NewHTTPHandler(productService, saleService, authService)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error("http_server_error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	obs.Logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		obs.Logger.Warn("http_shutdown_failed", "error", err)
	}
	obs.Logger.Info("http_stopped")

	grpcServer.GracefulStop()
	obs.Logger.Info("grpc_stopped")
}

func memoryBackend() *backend {
	store := memory.NewStore()
	cache := memory.NewCache()
	return &backend{
		products:    store,
		users:       store,
		sales:       store,
		cache:       cache,
		idempotency: cache,
		close:       func() {},
	}
}

func mysqlBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, err
	}
	opts.PoolSize = 100
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		db.Close()
		return nil, err
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	return &backend{
		products:    mysqlAdapter,
		users:       mysqlAdapter,
		sales:       mysqlAdapter,
		cache:       redisAdapter,
		idempotency: redisAdapter,
		close: func() {
			rdb.Close()
			db.Close()
			obs.Logger.Info("connections_closed")
		},
	}, nil
}
