package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-service/internal/core/domain"
)

// GenericConn is an interface that works with both pgxpool.Pool and pgx.Tx
type GenericConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type PostgresAdapter struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
	now  func() time.Time
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (p *PostgresAdapter) Customers() *PostgresCustomerRepository {
	return &PostgresCustomerRepository{p}
}

func (p *PostgresAdapter) Products() *PostgresProductRepository {
	return &PostgresProductRepository{p}
}

func (p *PostgresAdapter) Orders() *PostgresOrderRepository {
	return &PostgresOrderRepository{p}
}

type pgTxKey struct{}

func (p *PostgresAdapter) conn(ctx context.Context) GenericConn {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.pool
}

// WithinTransaction executes fn within a transaction, or within the one ctx already carries.
func (p *PostgresAdapter) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (txErr error) {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return pgErr("pool.Begin", err)
	}

	defer func() {
		if txErr != nil {
			rollbackErr := tx.Rollback(context.WithoutCancel(ctx))
			if rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rollbackErr))
			}
		}
	}()

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return pgErr("tx.Commit", err)
	}

	return nil
}

// pgErr tags connectivity failures as domain.ErrUnavailable.
func pgErr(op string, err error) error {
	var (
		connectErr *pgconn.ConnectError
		netErr     net.Error
	)
	if pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &connectErr) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

type PostgresCustomerRepository struct {
	*PostgresAdapter
}

func (r *PostgresCustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	query, args, err := r.sb.
		Select("id", "name", "email", "created_at").
		From("customers").
		Where(sq.Eq{"id": customerID}).
		ToSql()
	if err != nil {
		return domain.Customer{}, fmt.Errorf("build customer query: %w", err)
	}

	var c domain.Customer
	err = r.conn(ctx).QueryRow(ctx, query, args...).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customerID, domain.ErrCustomerNotFound)
	}
	if err != nil {
		return domain.Customer{}, pgErr("query customer", err)
	}

	return c, nil
}

type PostgresProductRepository struct {
	*PostgresAdapter
}

func (r *PostgresProductRepository) FindAllByID(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query, args, err := r.sb.
		Select("id", "name", "available_quantity", "price_amount::text", "price_currency", "created_at", "updated_at").
		From("products").
		Where(sq.Eq{"id": productIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build products query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr("query products", err)
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		var (
			p      productRow
			amount string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.AvailableQuantity, &amount, &p.PriceCurrency, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, pgErr("scan product", err)
		}

		if p.PriceAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decimal.NewFromString[%s]: %w", amount, err)
		}

		product, err := p.toDomain()
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		result = append(result, product)
	}

	if err := rows.Err(); err != nil {
		return nil, pgErr("rows iteration", err)
	}

	return result, nil
}

// UpdateQuantity applies a guarded decrement per product, locking rows in product id order.
func (r *PostgresProductRepository) UpdateQuantity(ctx context.Context, lines []domain.OrderLineRequest) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		conn := r.conn(ctx)
		now := r.now()

		short := make(map[string]struct{})
		for _, line := range sortedByProduct(lines) {
			query, args, err := r.sb.
				Update("products").
				Set("available_quantity", sq.Expr("available_quantity - ?", line.Quantity)).
				Set("version", sq.Expr("version + 1")).
				Set("updated_at", now).
				Where(sq.Eq{"id": line.ProductID}).
				Where(sq.GtOrEq{"available_quantity": line.Quantity}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build quantity update: %w", err)
			}

			tag, err := conn.Exec(ctx, query, args...)
			if err != nil {
				return pgErr("update product quantity", err)
			}
			if tag.RowsAffected() == 0 {
				short[line.ProductID] = struct{}{}
			}
		}

		if len(short) > 0 {
			return domain.NewInsufficientStockError(inRequestOrder(lines, short)...)
		}

		return nil
	})
}

type PostgresOrderRepository struct {
	*PostgresAdapter
}

func (r *PostgresOrderRepository) Create(ctx context.Context, customer domain.Customer, lines []domain.OrderLine) (domain.Order, error) {
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
		conn := r.conn(ctx)

		query, args, err := r.sb.
			Insert("orders").
			Columns("id", "customer_id", "status", "created_at", "updated_at").
			Values(order.ID, order.CustomerID, string(order.Status), order.CreatedAt, order.UpdatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("build order insert: %w", err)
		}

		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return pgErr("insert order", err)
		}

		insert := r.sb.Insert("order_lines").
			Columns("order_id", "position", "product_id", "quantity", "price_amount", "price_currency")
		for i, l := range lines {
			insert = insert.Values(
				order.ID, i, l.ProductID, l.Quantity,
				sq.Expr("CAST(? AS NUMERIC)", l.Price.Amount.String()),
				l.Price.Currency.String(),
			)
		}

		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build order lines insert: %w", err)
		}

		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return pgErr("insert order lines", err)
		}

		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *PostgresOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	conn := r.conn(ctx)

	query, args, err := r.sb.
		Select("id", "customer_id", "status", "created_at", "updated_at").
		From("orders").
		Where(sq.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build order query: %w", err)
	}

	var (
		o      domain.Order
		status string
	)
	err = conn.QueryRow(ctx, query, args...).Scan(&o.ID, &o.CustomerID, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, pgErr("query order", err)
	}

	if o.Status, err = domain.ToOrderStatus(status); err != nil {
		return domain.Order{}, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
	}

	query, args, err = r.sb.
		Select("product_id", "quantity", "price_amount::text", "price_currency").
		From("order_lines").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build order lines query: %w", err)
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return domain.Order{}, pgErr("query order lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l      lineRow
			amount string
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &amount, &l.PriceCurrency); err != nil {
			return domain.Order{}, pgErr("scan order line", err)
		}

		if l.PriceAmount, err = decimal.NewFromString(amount); err != nil {
			return domain.Order{}, fmt.Errorf("decimal.NewFromString[%s]: %w", amount, err)
		}

		line, err := l.toDomain()
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s: %w", orderID, err)
		}
		o.Lines = append(o.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return domain.Order{}, pgErr("rows iteration", err)
	}

	return o, nil
}
