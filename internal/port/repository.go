package port

import (
	"context"

	"github.com/rl1809/order-service/internal/core/domain"
)

type CustomerRepository interface {
	// FindByID returns domain.ErrCustomerNotFound when no customer has the id
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

type ProductRepository interface {
	// FindAllByID returns the stored products among ids, in no particular order.
	// Missing ids are simply absent from the result.
	FindAllByID(ctx context.Context, productIDs []string) ([]domain.Product, error)

	// UpdateQuantity decrements stock for every line as one atomic unit.
	// Fails with domain.ErrInsufficientStock and changes nothing if any line would go negative.
	UpdateQuantity(ctx context.Context, lines []domain.OrderLineRequest) error
}

type OrderRepository interface {
	// Create persists the order header and all lines in one write
	Create(ctx context.Context, customer domain.Customer, lines []domain.OrderLine) (domain.Order, error)

	// FindByID returns domain.ErrOrderNotFound when no order has the id
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// Transactor runs fn as one unit of work. Repository calls made with the ctx passed to fn
// join the unit; if fn returns an error none of their effects survive.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
