package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/order-service/internal/core/domain"
)

type MySQLAdapter struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (m *MySQLAdapter) Customers() *MySQLCustomerRepository {
	return &MySQLCustomerRepository{m}
}

func (m *MySQLAdapter) Products() *MySQLProductRepository {
	return &MySQLProductRepository{m}
}

func (m *MySQLAdapter) Orders() *MySQLOrderRepository {
	return &MySQLOrderRepository{m}
}

type mysqlTxKey struct{}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLAdapter) executor(ctx context.Context) sqlExecutor {
	if tx, ok := ctx.Value(mysqlTxKey{}).(*sql.Tx); ok {
		return tx
	}
	return m.db
}

// WithinTransaction runs fn in a transaction, or in the one already carried by ctx.
func (m *MySQLAdapter) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (txErr error) {
	if _, ok := ctx.Value(mysqlTxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrUnavailable, err)
	}

	defer func() {
		if txErr != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rollbackErr))
			}
		}
	}()

	if err := fn(context.WithValue(ctx, mysqlTxKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mysqlErr("tx.Commit", err)
	}

	return nil
}

// mysqlErr tags connectivity failures as domain.ErrUnavailable.
func mysqlErr(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

type MySQLCustomerRepository struct {
	*MySQLAdapter
}

func (r *MySQLCustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	var c domain.Customer

	err := r.executor(ctx).QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM customers WHERE id = ?`, customerID,
	).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customerID, domain.ErrCustomerNotFound)
	}
	if err != nil {
		return domain.Customer{}, mysqlErr("query customer", err)
	}

	return c, nil
}

type MySQLProductRepository struct {
	*MySQLAdapter
}

func (r *MySQLProductRepository) FindAllByID(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query, args, err := r.sb.
		Select("id", "name", "available_quantity", "price_amount", "price_currency", "created_at", "updated_at").
		From("products").
		Where(sq.Eq{"id": productIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build products query: %w", err)
	}

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mysqlErr("query products", err)
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		var p productRow
		if err := rows.Scan(&p.ID, &p.Name, &p.AvailableQuantity, &p.PriceAmount, &p.PriceCurrency, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, mysqlErr("scan product", err)
		}

		product, err := p.toDomain()
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		result = append(result, product)
	}

	if err := rows.Err(); err != nil {
		return nil, mysqlErr("rows iteration", err)
	}

	return result, nil
}

// UpdateQuantity decrements each product with a conditional UPDATE, so the
// non-negative check and the write happen in one statement. Rows are locked
// in product id order to keep concurrent multi-product orders from deadlocking.
func (r *MySQLProductRepository) UpdateQuantity(ctx context.Context, lines []domain.OrderLineRequest) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		exec := r.executor(ctx)
		now := r.now()

		short := make(map[string]struct{})
		for _, line := range sortedByProduct(lines) {
			result, err := exec.ExecContext(ctx, `
				UPDATE products
				SET available_quantity = available_quantity - ?, version = version + 1, updated_at = ?
				WHERE id = ? AND available_quantity >= ?`,
				line.Quantity, now, line.ProductID, line.Quantity,
			)
			if err != nil {
				return mysqlErr("update product quantity", err)
			}

			rows, err := result.RowsAffected()
			if err != nil {
				return mysqlErr("rows affected", err)
			}
			if rows == 0 {
				short[line.ProductID] = struct{}{}
			}
		}

		if len(short) > 0 {
			return domain.NewInsufficientStockError(inRequestOrder(lines, short)...)
		}

		return nil
	})
}

type MySQLOrderRepository struct {
	*MySQLAdapter
}

func (r *MySQLOrderRepository) Create(ctx context.Context, customer domain.Customer, lines []domain.OrderLine) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: no lines in order", domain.ErrInvalidRequest)
	}

	now := r.now()
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		Lines:      lines,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		exec := r.executor(ctx)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, order.CustomerID, string(order.Status), order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return mysqlErr("insert order", err)
		}

		insert := r.sb.Insert("order_lines").
			Columns("order_id", "position", "product_id", "quantity", "price_amount", "price_currency")
		for i, l := range lines {
			insert = insert.Values(order.ID, i, l.ProductID, l.Quantity, l.Price.Amount, l.Price.Currency.String())
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build order lines insert: %w", err)
		}

		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return mysqlErr("insert order lines", err)
		}

		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *MySQLOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)

	exec := r.executor(ctx)

	err := exec.QueryRowContext(ctx, `
		SELECT id, customer_id, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.CustomerID, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, mysqlErr("query order", err)
	}

	if o.Status, err = domain.ToOrderStatus(status); err != nil {
		return domain.Order{}, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT product_id, quantity, price_amount, price_currency
		FROM order_lines WHERE order_id = ? ORDER BY position`, orderID,
	)
	if err != nil {
		return domain.Order{}, mysqlErr("query order lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l lineRow
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.PriceAmount, &l.PriceCurrency); err != nil {
			return domain.Order{}, mysqlErr("scan order line", err)
		}

		line, err := l.toDomain()
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s: %w", orderID, err)
		}
		o.Lines = append(o.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return domain.Order{}, mysqlErr("rows iteration", err)
	}

	return o, nil
}

