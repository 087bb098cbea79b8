package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/order-service/internal/core/domain"
)

// MemoryStore keeps customers, products and orders in process memory.
// A single mutex serializes stock mutations, and a unit of work holds it until it commits.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		now:       time.Now,
	}
}

func (s *MemoryStore) AddCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.customers[c.ID] = c
}

func (s *MemoryStore) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
}

// Stock returns the current available quantity of a product.
func (s *MemoryStore) Stock(productID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	return p.AvailableQuantity, ok
}

func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}

func (s *MemoryStore) Customers() *MemoryCustomerRepository {
	return &MemoryCustomerRepository{store: s}
}

func (s *MemoryStore) Products() *MemoryProductRepository {
	return &MemoryProductRepository{store: s}
}

func (s *MemoryStore) Orders() *MemoryOrderRepository {
	return &MemoryOrderRepository{store: s}
}

type memoryTxKey struct{}

// memoryJournal records how to undo the writes made inside one unit of work.
type memoryJournal struct {
	store *MemoryStore
	undo  []func()
}

// WithinTransaction runs fn while holding the store's write lock, and reverts the writes
// it made if fn fails. Other callers never observe a unit's writes before it commits.
func (s *MemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := s.journal(ctx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	journal := &memoryJournal{store: s}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, journal)); err != nil {
		for i := len(journal.undo) - 1; i >= 0; i-- {
			journal.undo[i]()
		}
		return err
	}

	return nil
}

func (s *MemoryStore) journal(ctx context.Context) (*memoryJournal, bool) {
	j, ok := ctx.Value(memoryTxKey{}).(*memoryJournal)
	return j, ok && j.store == s
}

// lock takes the write lock unless ctx already runs inside a unit of work of this store.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if _, ok := s.journal(ctx); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) rlock(ctx context.Context) func() {
	if _, ok := s.journal(ctx); ok {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) recordUndo(ctx context.Context, fn func()) {
	if j, ok := s.journal(ctx); ok {
		j.undo = append(j.undo, fn)
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

type MemoryCustomerRepository struct {
	store *MemoryStore
}

func (r *MemoryCustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Customer{}, err
	}

	defer r.store.rlock(ctx)()

	c, ok := r.store.customers[customerID]
	if !ok {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customerID, domain.ErrCustomerNotFound)
	}

	return c, nil
}

type MemoryProductRepository struct {
	store *MemoryStore
}

func (r *MemoryProductRepository) FindAllByID(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	defer r.store.rlock(ctx)()

	result := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if p, ok := r.store.products[id]; ok {
			result = append(result, p)
		}
	}

	return result, nil
}

func (r *MemoryProductRepository) UpdateQuantity(ctx context.Context, lines []domain.OrderLineRequest) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	defer r.store.lock(ctx)()

	// check every line before touching any of them
	var missing, short []string
	for _, line := range lines {
		p, ok := r.store.products[line.ProductID]
		switch {
		case !ok:
			missing = append(missing, line.ProductID)
		case !p.HasStock(line.Quantity):
			short = append(short, line.ProductID)
		}
	}

	if len(missing) > 0 {
		return &domain.ProductsNotFoundError{ProductIDs: missing}
	}
	if len(short) > 0 {
		return domain.NewInsufficientStockError(short...)
	}

	now := r.store.now()
	for _, line := range lines {
		p := r.store.products[line.ProductID]
		p.AvailableQuantity -= line.Quantity
		p.UpdatedAt = now
		r.store.products[line.ProductID] = p

		productID, quantity := line.ProductID, line.Quantity
		r.store.recordUndo(ctx, func() {
			restored := r.store.products[productID]
			restored.AvailableQuantity += quantity
			r.store.products[productID] = restored
		})
	}

	return nil
}

type MemoryOrderRepository struct {
	store *MemoryStore
}

func (r *MemoryOrderRepository) Create(ctx context.Context, customer domain.Customer, lines []domain.OrderLine) (domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Order{}, err
	}

	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: no lines in order", domain.ErrInvalidRequest)
	}

	defer r.store.lock(ctx)()

	now := r.store.now()
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		Lines:      slices.Clone(lines),
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.store.orders[order.ID] = order

	r.store.recordUndo(ctx, func() {
		delete(r.store.orders, order.ID)
	})

	out := order
	out.Lines = slices.Clone(order.Lines)
	return out, nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Order{}, err
	}

	defer r.store.rlock(ctx)()

	o, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}

	o.Lines = slices.Clone(o.Lines)
	return o, nil
}
