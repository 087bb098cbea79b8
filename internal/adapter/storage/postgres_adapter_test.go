package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/goleak"
	"golang.org/x/text/currency"

	"github.com/rl1809/order-service/internal/core/domain"
)

type postgresAdapterSuite struct {
	suite.Suite

	pool      *pgxpool.Pool
	adapter   *PostgresAdapter
	container testcontainers.Container
}

// entry point to run the tests in the suite
func TestPostgresAdapterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container tests in short mode")
	}

	// Verifies no leaks after all tests in the suite run.
	defer goleak.VerifyNone(t)

	suite.Run(t, new(postgresAdapterSuite))
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("orders"),
		postgres.WithUsername("orders"),
		postgres.WithPassword("orders"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", err
	}

	return container, connStr, nil
}

// before all tests in the suite
func (suite *postgresAdapterSuite) SetupSuite() {
	ctx := suite.T().Context()

	var (
		connStr string
		err     error
	)

	suite.container, connStr, err = startPostgres(ctx)
	if err != nil {
		suite.T().Skipf("Postgres container not available: %v", err)
	}

	suite.pool, err = pgxpool.New(ctx, connStr)
	suite.Require().NoError(err)

	db := stdlib.OpenDBFromPool(suite.pool)
	suite.Require().NoError(Migrate(ctx, goose.DialectPostgres, db))
	suite.Require().NoError(db.Close())

	suite.adapter = NewPostgresAdapter(suite.pool)
}

// after all tests in the suite
func (suite *postgresAdapterSuite) TearDownSuite() {
	ctx := context.Background()

	if suite.pool != nil {
		suite.pool.Close()
	}
	if suite.container != nil {
		suite.NoError(suite.container.Terminate(ctx))
	}
}

func (suite *postgresAdapterSuite) deleteAll() {
	ctx := context.Background()
	_, err := suite.pool.Exec(ctx, `TRUNCATE order_lines, orders, products, customers`)
	suite.NoError(err)
}

func (suite *postgresAdapterSuite) seedCustomer() domain.Customer {
	c := domain.Customer{
		ID:    gofakeit.UUID(),
		Name:  gofakeit.Name(),
		Email: gofakeit.Email(),
	}

	err := suite.pool.QueryRow(context.Background(),
		`INSERT INTO customers (id, name, email) VALUES ($1, $2, $3) RETURNING created_at`,
		c.ID, c.Name, c.Email,
	).Scan(&c.CreatedAt)
	suite.Require().NoError(err)

	return c
}

func (suite *postgresAdapterSuite) seedProduct(quantity int) domain.Product {
	p := domain.Product{
		ID:                gofakeit.UUID(),
		Name:              gofakeit.ProductName(),
		AvailableQuantity: quantity,
		Price: domain.Money{
			Amount:   decimal.NewFromFloat(gofakeit.Price(1, 500)).Round(2),
			Currency: currency.EUR,
		},
	}

	_, err := suite.pool.Exec(context.Background(), `
		INSERT INTO products (id, name, available_quantity, price_amount, price_currency)
		VALUES ($1, $2, $3, CAST($4 AS NUMERIC), $5)`,
		p.ID, p.Name, p.AvailableQuantity, p.Price.Amount.String(), p.Price.Currency.String(),
	)
	suite.Require().NoError(err)

	return p
}

func (suite *postgresAdapterSuite) stock(productID string) int {
	var stock int
	err := suite.pool.QueryRow(context.Background(),
		`SELECT available_quantity FROM products WHERE id = $1`, productID).Scan(&stock)
	suite.Require().NoError(err)
	return stock
}

func (suite *postgresAdapterSuite) TestFindCustomer() {
	defer suite.deleteAll()

	customer := suite.seedCustomer()

	tests := []struct {
		name       string
		customerID string
		wantError  error
	}{
		{
			name:       "existing customer: ok",
			customerID: customer.ID,
		},
		{
			name:       "unknown customer: not found",
			customerID: gofakeit.UUID(),
			wantError:  domain.ErrCustomerNotFound,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			actual, err := suite.adapter.Customers().FindByID(t.Context(), tt.customerID)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, customer.ID, actual.ID)
			assert.Equal(t, customer.Email, actual.Email)
			assert.WithinDuration(t, customer.CreatedAt, actual.CreatedAt, 0)
		})
	}
}

func (suite *postgresAdapterSuite) TestFindAllProducts() {
	defer suite.deleteAll()

	p1 := suite.seedProduct(5)
	p2 := suite.seedProduct(0)

	t := suite.T()

	actual, err := suite.adapter.Products().FindAllByID(t.Context(), []string{p1.ID, p2.ID, gofakeit.UUID()})
	require.NoError(t, err)
	require.Len(t, actual, 2)

	opts := cmp.Options{
		cmpopts.SortSlices(func(a, b domain.Product) bool { return a.ID < b.ID }),
		cmpopts.IgnoreFields(domain.Product{}, "CreatedAt", "UpdatedAt"),
		cmp.Comparer(func(a, b domain.Money) bool { return a.Equal(b) }),
	}
	if diff := cmp.Diff([]domain.Product{p1, p2}, actual, opts); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}
}

func (suite *postgresAdapterSuite) TestUpdateQuantity() {
	defer suite.deleteAll()

	tests := []struct {
		name      string
		stock     []int
		quantity  []int
		wantStock []int
		wantShort []int
	}{
		{
			name:      "all lines in stock: ok",
			stock:     []int{10, 3},
			quantity:  []int{4, 3},
			wantStock: []int{6, 0},
		},
		{
			name:      "one line short: nothing changes",
			stock:     []int{10, 1},
			quantity:  []int{4, 2},
			wantStock: []int{10, 1},
			wantShort: []int{1},
		},
		{
			name:      "every line short: all reported",
			stock:     []int{0, 1},
			quantity:  []int{1, 2},
			wantStock: []int{0, 1},
			wantShort: []int{0, 1},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			var (
				products []domain.Product
				lines    []domain.OrderLineRequest
			)
			for i := range tt.stock {
				p := suite.seedProduct(tt.stock[i])
				products = append(products, p)
				lines = append(lines, domain.OrderLineRequest{ProductID: p.ID, Quantity: tt.quantity[i]})
			}

			err := suite.adapter.Products().UpdateQuantity(t.Context(), lines)
			if len(tt.wantShort) > 0 {
				var stockErr *domain.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)

				var want []string
				for _, i := range tt.wantShort {
					want = append(want, products[i].ID)
				}
				assert.Equal(t, want, stockErr.ProductIDs)
			} else {
				require.NoError(t, err)
			}

			for i, p := range products {
				assert.Equal(t, tt.wantStock[i], suite.stock(p.ID))
			}
		})
	}
}

func (suite *postgresAdapterSuite) TestUpdateQuantityConcurrent() {
	defer suite.deleteAll()

	const (
		initialStock  = 20
		totalRequests = 50
	)

	t := suite.T()
	a := suite.seedProduct(initialStock)
	b := suite.seedProduct(initialStock)

	var (
		successCount atomic.Int32
		wg           sync.WaitGroup
	)

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			// alternate line order so concurrent units would deadlock without sorted locking
			lines := []domain.OrderLineRequest{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}

			err := suite.adapter.Products().UpdateQuantity(context.Background(), lines)
			if err == nil {
				successCount.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, 0, suite.stock(a.ID))
	assert.Equal(t, 0, suite.stock(b.ID))
}

func (suite *postgresAdapterSuite) TestCreateAndFindOrder() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	customer := suite.seedCustomer()
	p1 := suite.seedProduct(5)
	p2 := suite.seedProduct(5)

	lines := []domain.OrderLine{
		{ProductID: p2.ID, Quantity: 2, Price: p2.Price},
		{ProductID: p1.ID, Quantity: 1, Price: p1.Price},
	}

	order, err := suite.adapter.Orders().Create(ctx, customer, lines)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	actual, err := suite.adapter.Orders().FindByID(ctx, order.ID)
	require.NoError(t, err)

	opts := cmp.Options{
		cmp.Comparer(func(a, b domain.Money) bool { return a.Equal(b) }),
		cmpopts.EquateApproxTime(0),
	}
	if diff := cmp.Diff(order, actual, opts); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	_, err = suite.adapter.Orders().FindByID(ctx, gofakeit.UUID())
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = suite.adapter.Orders().Create(ctx, customer, nil)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func (suite *postgresAdapterSuite) TestWithinTransactionRollback() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	customer := suite.seedCustomer()
	p := suite.seedProduct(3)
	boom := errors.New("boom")

	var orderID string
	err := suite.adapter.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := suite.adapter.Products().UpdateQuantity(ctx, []domain.OrderLineRequest{{ProductID: p.ID, Quantity: 3}}); err != nil {
			return err
		}

		order, err := suite.adapter.Orders().Create(ctx, customer, []domain.OrderLine{{ProductID: p.ID, Quantity: 3, Price: p.Price}})
		if err != nil {
			return err
		}
		orderID = order.ID

		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 3, suite.stock(p.ID))

	_, err = suite.adapter.Orders().FindByID(ctx, orderID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func (suite *postgresAdapterSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.adapter.Customers().FindByID(ctx, gofakeit.UUID())
	require.ErrorIs(suite.T(), err, domain.ErrUnavailable)
}
