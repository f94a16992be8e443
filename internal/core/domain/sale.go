package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID        string          `json:"id"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
	Items     []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"saleId"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"` // unit price at the time of sale
}

func (i SaleItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SaleLine is one requested (product, quantity) pair.
type SaleLine struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type CreateSaleRequest struct {
	Items          []SaleLine `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey string     `json:"-"`
}

func (r CreateSaleRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: items must contain at least 1 element", ErrValidation)
	}
	for i, line := range r.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: items[%d].productId should not be empty", ErrValidation, i)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must not be less than 1", ErrValidation, i)
		}
	}
	return nil
}
