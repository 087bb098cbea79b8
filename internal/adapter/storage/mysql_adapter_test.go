package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/rl1809/order-service/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/orders?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := Migrate(context.Background(), goose.DialectMySQL, db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return db
}

// seedMySQL inserts a customer and products with ids unique to this run.
func seedMySQL(t *testing.T, db *sql.DB, stock map[string]int) (string, map[string]string) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000")
	now := time.Now().UTC()

	customerID := "test-customer-" + suffix
	_, err := db.ExecContext(ctx, `INSERT INTO customers (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		customerID, "Test Customer", "test@example.com", now)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	ids := make(map[string]string, len(stock))
	for name, qty := range stock {
		id := "test-" + name + "-" + suffix
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (id, name, available_quantity, price_amount, price_currency, created_at, updated_at)
			VALUES (?, ?, ?, '9.99', 'USD', ?, ?)`, id, name, qty, now, now)
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		ids[name] = id
	}

	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM orders WHERE customer_id = ?`, customerID)
		for _, id := range ids {
			db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
		}
		db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, customerID)
	})

	return customerID, ids
}

func mysqlStock(t *testing.T, db *sql.DB, productID string) int {
	var stock int
	err := db.QueryRowContext(context.Background(),
		`SELECT available_quantity FROM products WHERE id = ?`, productID).Scan(&stock)
	if err != nil {
		t.Fatalf("read stock failed: %v", err)
	}
	return stock
}

func TestMySQLUpdateQuantity_Success(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	_, ids := seedMySQL(t, db, map[string]int{"a": 100, "b": 5})

	err := adapter.Products().UpdateQuantity(context.Background(), []domain.OrderLineRequest{
		{ProductID: ids["b"], Quantity: 5},
		{ProductID: ids["a"], Quantity: 1},
	})
	if err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}

	if stock := mysqlStock(t, db, ids["a"]); stock != 99 {
		t.Errorf("expected stock 99, got %d", stock)
	}
	if stock := mysqlStock(t, db, ids["b"]); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestMySQLUpdateQuantity_InsufficientStock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	_, ids := seedMySQL(t, db, map[string]int{"full": 10, "empty": 0})

	err := adapter.Products().UpdateQuantity(context.Background(), []domain.OrderLineRequest{
		{ProductID: ids["full"], Quantity: 1},
		{ProductID: ids["empty"], Quantity: 1},
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if len(stockErr.ProductIDs) != 1 || stockErr.ProductIDs[0] != ids["empty"] {
		t.Errorf("expected offending product %s, got %v", ids["empty"], stockErr.ProductIDs)
	}

	// the successful line is rolled back with the failed one
	if stock := mysqlStock(t, db, ids["full"]); stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}
}

func TestMySQLUpdateQuantity_Concurrent(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	initialStock := 20
	totalRequests := 50

	adapter := NewMySQLAdapter(db)
	_, ids := seedMySQL(t, db, map[string]int{"hot": initialStock})

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.Products().UpdateQuantity(context.Background(),
				[]domain.OrderLineRequest{{ProductID: ids["hot"], Quantity: 1}})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if stock := mysqlStock(t, db, ids["hot"]); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestMySQLCreateOrder_RoundTrip(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	customerID, ids := seedMySQL(t, db, map[string]int{"a": 10, "b": 10})

	customer, err := adapter.Customers().FindByID(ctx, customerID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}

	price, _ := domain.NewMoney("9.99", "USD")
	lines := []domain.OrderLine{
		{ProductID: ids["b"], Quantity: 2, Price: price},
		{ProductID: ids["a"], Quantity: 1, Price: price},
	}

	order, err := adapter.Orders().Create(ctx, customer, lines)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, err := adapter.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}

	if stored.CustomerID != customerID || stored.Status != domain.OrderStatusPending {
		t.Errorf("unexpected order: %+v", stored)
	}
	if len(stored.Lines) != 2 || stored.Lines[0].ProductID != ids["b"] || stored.Lines[1].ProductID != ids["a"] {
		t.Fatalf("expected lines in request order, got %+v", stored.Lines)
	}
	if !stored.Lines[0].Price.Equal(price) {
		t.Errorf("expected price %s, got %s", price, stored.Lines[0].Price)
	}
}

func TestMySQLWithinTransaction_Rollback(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	customerID, ids := seedMySQL(t, db, map[string]int{"a": 3})
	customer, _ := adapter.Customers().FindByID(ctx, customerID)
	boom := errors.New("boom")

	err := adapter.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := adapter.Products().UpdateQuantity(ctx, []domain.OrderLineRequest{{ProductID: ids["a"], Quantity: 3}}); err != nil {
			return err
		}
		price, _ := domain.NewMoney("9.99", "USD")
		if _, err := adapter.Orders().Create(ctx, customer, []domain.OrderLine{{ProductID: ids["a"], Quantity: 3, Price: price}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got: %v", err)
	}

	if stock := mysqlStock(t, db, ids["a"]); stock != 3 {
		t.Errorf("expected stock 3, got %d", stock)
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE customer_id = ?`, customerID).Scan(&count)
	if count != 0 {
		t.Errorf("expected no orders, got %d", count)
	}
}

func TestMySQLFindByID_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	if _, err := adapter.Customers().FindByID(ctx, "nonexistent-customer"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Errorf("expected ErrCustomerNotFound, got: %v", err)
	}
	if _, err := adapter.Orders().FindByID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got: %v", err)
	}

	products, err := adapter.Products().FindAllByID(ctx, []string{"nonexistent-product"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("expected no products, got %d", len(products))
	}
}
