package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/posbuzz/internal/core/domain"
)

// MySQL server error numbers the adapter translates.
const (
	errDuplicateEntry   = 1062
	errLockWaitTimeout  = 1205
	errDeadlock         = 1213
	errRowIsReferenced  = 1451
	errRowIsReferenced2 = 1217
)

const productColumns = `id, name, sku, price, stock_quantity, created_at, updated_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products WHERE id = ?`, id))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, price, stock_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SKU, p.Price, p.StockQuantity, p.CreatedAt, p.UpdatedAt,
	)
	if mysqlErrorNumber(err) == errDuplicateEntry {
		return domain.ErrDuplicateSKU
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct sets only the columns the patch carries. stock_quantity is
// left to the row's current value unless the patch names it, so sales
// committed after the caller's read are kept.
func (m *MySQLAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (*domain.Product, error) {
	sets := []string{"updated_at = ?"}
	args := []any{updatedAt}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.SKU != nil {
		sets = append(sets, "sku = ?")
		args = append(args, *patch.SKU)
	}
	if patch.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *patch.Price)
	}
	if patch.StockQuantity != nil {
		sets = append(sets, "stock_quantity = ?")
		args = append(args, *patch.StockQuantity)
	}
	args = append(args, id)

	_, err := m.db.ExecContext(ctx, `
		UPDATE products SET `+strings.Join(sets, ", ")+`
		WHERE id = ?`, args...)
	if mysqlErrorNumber(err) == errDuplicateEntry {
		return nil, domain.ErrDuplicateSKU
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return m.GetProduct(ctx, id)
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	switch mysqlErrorNumber(err) {
	case errRowIsReferenced, errRowIsReferenced2:
		return domain.ErrProductInUse
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, u domain.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if mysqlErrorNumber(err) == errDuplicateEntry {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := m.db.QueryRowContext(ctx, `
		SELECT id, total, created_at FROM sales WHERE id = ?`, id,
	).Scan(&sale.ID, &sale.Total, &sale.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sale: %w", err)
	}

	sales := []domain.Sale{sale}
	if err := m.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (m *MySQLAdapter) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, total, created_at FROM sales
		ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	sales := []domain.Sale{}
	for rows.Next() {
		var s domain.Sale
		if err := rows.Scan(&s.ID, &s.Total, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}

	if err := m.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachItems loads the items of all given sales in one query, in line order.
func (m *MySQLAdapter) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	index := make(map[string]int, len(sales))
	args := make([]any, len(sales))
	for i := range sales {
		sales[i].Items = []domain.SaleItem{}
		index[sales[i].ID] = i
		args[i] = sales[i].ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sales)), ",")

	rows, err := m.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, COALESCE(p.name, ''), si.quantity, si.price
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		WHERE si.sale_id IN (`+placeholders+`)
		ORDER BY si.sale_id, si.position`, args...)
	if err != nil {
		return fmt.Errorf("query sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("scan sale item: %w", err)
		}
		i := index[it.SaleID]
		sales[i].Items = append(sales[i].Items, it)
	}
	return rows.Err()
}
