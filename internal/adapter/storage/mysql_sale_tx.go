package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/port"
)

// WithinTx runs fn in a READ COMMITTED transaction. Product reads made
// through the handle take row locks, so concurrent sales touching the same
// product serialize on that row until commit or rollback.
//
// opts.MaxWait bounds acquiring a pooled connection and opts.Timeout bounds
// everything after it. When a budget runs out the transaction is rolled back
// and ErrTransactionWaitTimeout or ErrTransactionTimeout is returned.
func (m *MySQLAdapter) WithinTx(ctx context.Context, opts port.TxOptions, fn func(ctx context.Context, tx port.SaleTx) error) error {
	waitCtx, cancelWait := withBudget(ctx, opts.MaxWait)
	conn, err := m.db.Conn(waitCtx)
	cancelWait()
	if err != nil {
		if budgetExceeded(ctx, waitCtx) {
			return fmt.Errorf("%w: acquire connection: %v", domain.ErrTransactionWaitTimeout, err)
		}
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	txCtx, cancel := withBudget(ctx, opts.Timeout)
	defer cancel()

	tx, err := conn.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyTxError(ctx, txCtx, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(txCtx, &mysqlSaleTx{tx: tx}); err != nil {
		return classifyTxError(ctx, txCtx, err)
	}

	if err := tx.Commit(); err != nil {
		return classifyTxError(ctx, txCtx, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func withBudget(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// budgetExceeded reports whether budgetCtx hit its own deadline while the
// caller's context is still live.
func budgetExceeded(parent, budgetCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(budgetCtx.Err(), context.DeadlineExceeded)
}

func classifyTxError(parent, txCtx context.Context, err error) error {
	if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
		return err
	}

	switch mysqlErrorNumber(err) {
	case errLockWaitTimeout:
		return fmt.Errorf("%w: %v", domain.ErrTransactionTimeout, err)
	case errDeadlock:
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}

	if budgetExceeded(parent, txCtx) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionTimeout, err)
	}
	return err
}

type mysqlSaleTx struct {
	tx *sql.Tx
}

func (t *mysqlSaleTx) FindProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products WHERE id = ? FOR UPDATE`, id))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (t *mysqlSaleTx) DecrementStock(ctx context.Context, id string, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - ?, updated_at = NOW(3)
		WHERE id = ? AND stock_quantity >= ?`,
		quantity, id, quantity,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (t *mysqlSaleTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, total, created_at) VALUES (?, ?, ?)`,
		sale.ID, sale.Total, sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	if len(sale.Items) == 0 {
		return nil
	}

	values := make([]string, 0, len(sale.Items))
	args := make([]any, 0, len(sale.Items)*6)
	for i, it := range sale.Items {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, it.ID, sale.ID, it.ProductID, i, it.Quantity, it.Price)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, position, quantity, price)
		VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert sale items: %w", err)
	}
	return nil
}
