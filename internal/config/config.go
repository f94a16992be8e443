// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for servers, storage and the sale flow.
type Config struct {
	HTTPAddr           string
	StorageDriver      string
	GRPCAddr           string
	MySQLDSN           string
	RedisURL           string
	JWTSecret          string
	JWTTTL             time.Duration
	CORSAllowedOrigins []string
	ProductsCacheTTL   time.Duration
	SaleTxTimeout      time.Duration
	SaleTxMaxWait      time.Duration
	ShutdownTimeout    time.Duration
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	LogLevel           string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func listenv(key, def string) []string {
	var out []string
	for _, v := range strings.Split(getenv(key, def), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Load reads an optional .env file and then collects configuration from
// the environment with defaults. Variables already set win over .env.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":3000"),
		StorageDriver:      strings.ToLower(getenv("STORAGE_DRIVER", "mysql")),
		GRPCAddr:           getenv("GRPC_ADDR", ":50051"),
		MySQLDSN:           getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/posbuzz?parseTime=true"),
		RedisURL:           getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:          getenv("JWT_SECRET", ""),
		JWTTTL:             time.Duration(atoienv("JWT_TTL_MIN", 24*60)) * time.Minute,
		CORSAllowedOrigins: listenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		ProductsCacheTTL:   durenvms("PRODUCTS_CACHE_TTL_MS", 60_000),
		SaleTxTimeout:      durenvms("SALE_TX_TIMEOUT_MS", 30_000),
		SaleTxMaxWait:      durenvms("SALE_TX_MAX_WAIT_MS", 15_000),
		ShutdownTimeout:    durenvs("SHUTDOWN_TIMEOUT", 10),
		DBMaxOpenConns:     atoienv("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns:     atoienv("DB_MAX_IDLE_CONNS", 25),
		LogLevel:           getenv("LOG_LEVEL", "info"),
	}
}
