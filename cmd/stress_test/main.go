package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/rl1809/order-service/internal/adapter/storage"
	"github.com/rl1809/order-service/internal/core/domain"
	"github.com/rl1809/order-service/internal/core/service"
	"github.com/rl1809/order-service/internal/port"
)

const (
	customerID = "stress-customer"
	productID  = "stress-item"
)

func main() {
	var (
		mysqlDSN      = flag.String("mysql", "", "MySQL DSN; the in-memory store is used when empty")
		initialStock  = flag.Int("stock", 20, "initial stock of the contested product")
		totalRequests = flag.Int("requests", 50, "number of concurrent orders")
	)
	flag.Parse()

	ctx := context.Background()

	price, err := domain.NewMoney("9.99", "USD")
	if err != nil {
		log.Fatalf("invalid price: %v", err)
	}

	var (
		customers port.CustomerRepository
		products  port.ProductRepository
		orders    port.OrderRepository
		tx        port.Transactor
		stock     func() int
	)

	if *mysqlDSN == "" {
		store := storage.NewMemoryStore()
		store.AddCustomer(domain.Customer{ID: customerID, Name: "Stress Test", Email: "stress@example.com"})
		store.AddProduct(domain.Product{ID: productID, Name: "Contested Item", AvailableQuantity: *initialStock, Price: price})

		customers, products, orders, tx = store.Customers(), store.Products(), store.Orders(), store
		stock = func() int {
			n, _ := store.Stock(productID)
			return n
		}
	} else {
		db, err := sql.Open("mysql", *mysqlDSN)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(50)

		if err := storage.Migrate(ctx, goose.DialectMySQL, db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}

		// Clear previous test data, order lines cascade
		if _, err := db.ExecContext(ctx, `DELETE FROM orders WHERE customer_id = ?`, customerID); err != nil {
			log.Fatalf("failed to clear orders: %v", err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO customers (id, name, email, created_at)
			VALUES (?, 'Stress Test', 'stress@example.com', NOW(6))
			ON DUPLICATE KEY UPDATE name = VALUES(name)`, customerID); err != nil {
			log.Fatalf("failed to seed customer: %v", err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO products (id, name, available_quantity, price_amount, price_currency, created_at, updated_at)
			VALUES (?, 'Contested Item', ?, ?, ?, NOW(6), NOW(6))
			ON DUPLICATE KEY UPDATE available_quantity = VALUES(available_quantity)`,
			productID, *initialStock, price.Amount.String(), price.Currency.String()); err != nil {
			log.Fatalf("failed to seed product: %v", err)
		}

		adapter := storage.NewMySQLAdapter(db)
		customers, products, orders, tx = adapter.Customers(), adapter.Products(), adapter.Orders(), adapter
		stock = func() int {
			var n int
			_ = db.QueryRowContext(ctx, `SELECT available_quantity FROM products WHERE id = ?`, productID).Scan(&n)
			return n
		}
	}

	orderService := service.NewOrderService(customers, products, orders, tx,
		service.WithIdempotencyGuard(storage.NewMemoryIdempotencyGuard(time.Minute)),
		service.WithLogger(slog.New(slog.DiscardHandler)),
	)

	// Counters
	var successCount atomic.Int32
	var (
		mu       sync.Mutex
		failures = map[domain.ErrorKind]int{}
	)

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := orderService.CreateOrder(ctx, domain.CreateOrderRequest{
				RequestID:  uuid.NewString(),
				CustomerID: customerID,
				Lines:      []domain.OrderLineRequest{{ProductID: productID, Quantity: 1}},
			})
			if err == nil {
				successCount.Add(1)
				return
			}

			mu.Lock()
			failures[domain.KindOf(err)]++
			mu.Unlock()
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := int(successCount.Load())
	fail := *totalRequests - success
	expected := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	for kind, n := range failures {
		fmt.Printf("  %-16s%d\n", kind+":", n)
	}
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == expected && failures[domain.KindInsufficientStock] == *totalRequests-expected {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed on stock\n", expected, *totalRequests-expected)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			expected, *totalRequests-expected, success, fail)
	}

	finalStock := stock()
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == *initialStock-expected {
		fmt.Printf("PASS: Stock settled at %d\n", finalStock)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", *initialStock-expected, finalStock)
	}
}
