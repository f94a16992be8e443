package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ProductInput carries the fields needed to create a product.
type ProductInput struct {
	Name          string          `json:"name" binding:"required"`
	SKU           string          `json:"sku" binding:"required"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" binding:"min=0"`
}

func (in ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(in.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrValidation)
	}
	if err := validatePrice(in.Price); err != nil {
		return err
	}
	if in.StockQuantity < 0 {
		return fmt.Errorf("%w: stock_quantity must be >= 0", ErrValidation)
	}
	return nil
}

// validatePrice enforces the DECIMAL(12,2) column: non-negative with at most
// two fractional digits, so the stored price equals the returned one.
func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrValidation)
	}
	if !price.Equal(price.Round(2)) {
		return fmt.Errorf("%w: price must have at most 2 decimal places", ErrValidation)
	}
	return nil
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name          *string          `json:"name"`
	SKU           *string          `json:"sku"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity"`
}

// Normalize trims the string fields the patch carries and validates every
// non-nil field on its own.
func (pt ProductPatch) Normalize() (ProductPatch, error) {
	if pt.Name != nil {
		name := strings.TrimSpace(*pt.Name)
		if name == "" {
			return ProductPatch{}, fmt.Errorf("%w: name is required", ErrValidation)
		}
		pt.Name = &name
	}
	if pt.SKU != nil {
		sku := strings.TrimSpace(*pt.SKU)
		if sku == "" {
			return ProductPatch{}, fmt.Errorf("%w: sku is required", ErrValidation)
		}
		pt.SKU = &sku
	}
	if pt.Price != nil {
		if err := validatePrice(*pt.Price); err != nil {
			return ProductPatch{}, err
		}
	}
	if pt.StockQuantity != nil && *pt.StockQuantity < 0 {
		return ProductPatch{}, fmt.Errorf("%w: stock_quantity must be >= 0", ErrValidation)
	}
	return pt, nil
}

// Apply returns p with the patch normalized and applied. Fields the patch
// does not carry keep p's values.
func (pt ProductPatch) Apply(p Product) (Product, error) {
	pt, err := pt.Normalize()
	if err != nil {
		return Product{}, err
	}
	if pt.Name != nil {
		p.Name = *pt.Name
	}
	if pt.SKU != nil {
		p.SKU = *pt.SKU
	}
	if pt.Price != nil {
		p.Price = *pt.Price
	}
	if pt.StockQuantity != nil {
		p.StockQuantity = *pt.StockQuantity
	}
	return p, nil
}
