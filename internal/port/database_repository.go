package port

import (
	"context"
	"time"

	"github.com/rl1809/posbuzz/internal/core/domain"
)

type ProductRepository interface {
	// ListProducts returns all products, newest first
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// GetProduct returns nil, nil when the product does not exist
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	CreateProduct(ctx context.Context, product domain.Product) error

	// UpdateProduct writes only the fields patch carries, so it never
	// overwrites a stock decrement committed by a concurrent sale. It returns
	// the stored product, or nil, nil when the product does not exist.
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (*domain.Product, error)

	DeleteProduct(ctx context.Context, id string) error
}

type UserRepository interface {
	// GetUserByEmail returns nil, nil when no user has that email
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	CreateUser(ctx context.Context, user domain.User) error
}

// TxOptions bounds a sale transaction. MaxWait limits how long acquiring a
// connection may take, Timeout limits BEGIN, the transaction body and commit.
type TxOptions struct {
	MaxWait time.Duration
	Timeout time.Duration
}

type SaleStore interface {
	// WithinTx runs fn inside one database transaction. fn's error rolls
	// everything back and is returned; a nil error commits.
	WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx SaleTx) error) error

	// GetSale returns nil, nil when the sale does not exist
	GetSale(ctx context.Context, id string) (*domain.Sale, error)

	// ListSales returns the most recent sales with their items
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
}

// SaleTx is the transaction-scoped view used by the sale flow. Reads observe
// earlier writes made through the same SaleTx.
type SaleTx interface {
	// FindProductForUpdate reads and locks the product row, nil when absent
	FindProductForUpdate(ctx context.Context, id string) (*domain.Product, error)

	// DecrementStock lowers stock by quantity, failing with
	// domain.ErrInsufficientStock instead of going below zero
	DecrementStock(ctx context.Context, id string, quantity int) error

	// InsertSale persists the sale and all of its items
	InsertSale(ctx context.Context, sale domain.Sale) error
}

type TokenIssuer interface {
	Issue(user domain.User) (string, error)

	// Verify returns the user id carried by a valid token
	Verify(token string) (string, error)
}
