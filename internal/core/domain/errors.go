package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrSaleNotFound       = errors.New("sale not found")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrDuplicateSKU       = errors.New("sku already exists")
	ErrProductInUse       = errors.New("product is referenced by recorded sales")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")

	// Transient transaction failures. Nothing is persisted when one of
	// these is returned, so the whole request can be retried.
	ErrTransactionTimeout     = errors.New("transaction timeout")
	ErrTransactionWaitTimeout = errors.New("transaction wait timeout")
	ErrTransactionConflict    = errors.New("transaction conflict")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IsTransient reports whether err is a transaction failure that is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransactionTimeout) ||
		errors.Is(err, ErrTransactionWaitTimeout) ||
		errors.Is(err, ErrTransactionConflict)
}
