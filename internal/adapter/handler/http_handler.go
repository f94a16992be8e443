package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/core/service"
	"github.com/rl1809/posbuzz/internal/obs"
)

const (
	requestIDHeader   = "X-Request-Id"
	idempotencyHeader = "Idempotency-Key"
	userIDKey         = "userID"
)

type HTTPHandler struct {
	products *service.ProductService
	sales    *service.SaleService
	auth     *service.AuthService
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewHTTPHandler(products *service.ProductService, sales *service.SaleService, auth *service.AuthService) *HTTPHandler {
	return &HTTPHandler{products: products, sales: sales, auth: auth}
}

// NewRouter mounts the API on a gin engine. Everything under /api except
// the auth endpoints requires a bearer token.
func NewRouter(h *HTTPHandler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", idempotencyHeader},
		ExposeHeaders:    []string{"Authorization", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)

	protected := api.Group("")
	protected.Use(RequireAuth(h.auth))

	products := protected.Group("/products")
	products.GET("", h.ListProducts)
	products.POST("", h.CreateProduct)
	products.GET("/:id", h.GetProduct)
	products.PATCH("/:id", h.UpdateProduct)
	products.DELETE("/:id", h.DeleteProduct)

	sales := protected.Group("/sales")
	sales.POST("", h.CreateSale)
	sales.GET("", h.ListSales)
	sales.GET("/:id", h.GetSale)
	sales.GET("/:id/receipt", h.SaleReceipt)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps service errors to HTTP responses. A missing product
// inside a sale request is a bad request, not a missing resource.
func writeDomainError(c *gin.Context, err error) {
	var notFound *domain.ProductNotFoundError
	var noStock *domain.InsufficientStockError

	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.As(err, &noStock):
		writeError(c, http.StatusBadRequest, "insufficient_stock", noStock.Error())
	case errors.As(err, &notFound):
		status := http.StatusNotFound
		if c.Request.Method == http.MethodPost {
			status = http.StatusBadRequest
		}
		writeError(c, status, "product_not_found", notFound.Error())
	case errors.Is(err, domain.ErrSaleNotFound):
		writeError(c, http.StatusNotFound, "sale_not_found", "Sale not found")
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeError(c, http.StatusConflict, "duplicate_request", "Sale already submitted with this idempotency key")
	case errors.Is(err, domain.ErrDuplicateSKU):
		writeError(c, http.StatusConflict, "duplicate_sku", "SKU already exists")
	case errors.Is(err, domain.ErrProductInUse):
		writeError(c, http.StatusConflict, "product_in_use", "Product has recorded sales and cannot be deleted")
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(c, http.StatusUnauthorized, "email_taken", "Email already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, "unauthorized", "Unauthorized")
	case domain.IsTransient(err):
		c.Header("Retry-After", "1")
		writeError(c, http.StatusServiceUnavailable, "transaction_failed", "Transaction could not complete, please retry")
	default:
		obs.Logger.Error("request_failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(requestIDHeader),
			"error", err,
		)
		writeError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeBindError(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, "validation_error", err.Error())
}

// RequestID propagates X-Request-Id, generating one when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		obs.Logger.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDHeader),
		)
	}
}

// RequireAuth rejects requests without a valid "Bearer <token>" header and
// stores the token subject under userIDKey.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := bearerToken(header)
		if !ok {
			writeError(c, http.StatusUnauthorized, "unauthorized", "Authorization header required")
			return
		}

		userID, err := auth.Authenticate(token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}
