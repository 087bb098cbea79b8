package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/order-service/internal/core/domain"
)

func validateRequest(req domain.CreateOrderRequest) error {
	if req.CustomerID == "" {
		return fmt.Errorf("%w: customer id is empty", domain.ErrInvalidRequest)
	}

	if len(req.Lines) == 0 {
		return fmt.Errorf("%w: no products requested", domain.ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(req.Lines))
	for i, line := range req.Lines {
		if line.ProductID == "" {
			return fmt.Errorf("%w: product id is empty at line %d", domain.ErrInvalidRequest, i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity of product %s must be positive, got %d",
				domain.ErrInvalidRequest, line.ProductID, line.Quantity)
		}
		if _, dup := seen[line.ProductID]; dup {
			return fmt.Errorf("%w: product %s requested more than once", domain.ErrInvalidRequest, line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
	}

	return nil
}

func (s *OrderService) findCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "resolveCustomer")
	defer span.End()

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		err = classify(err, domain.ErrUnavailable)
		recordError(span, err)
		return domain.Customer{}, err
	}

	return customer, nil
}

// findProducts resolves ids all-or-nothing. The result is aligned with the distinct ids
// in the order they were first requested.
func (s *OrderService) findProducts(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "resolveProducts", trace.WithAttributes(
		attribute.StringSlice("product.ids", productIDs),
	))
	defer span.End()

	ids := lo.Uniq(productIDs)

	found, err := s.products.FindAllByID(ctx, ids)
	if err != nil {
		err = classify(err, domain.ErrUnavailable)
		recordError(span, err)
		return nil, err
	}

	products, err := alignProducts(ids, found)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	return products, nil
}

func alignProducts(ids []string, found []domain.Product) ([]domain.Product, error) {
	byID := lo.KeyBy(found, func(p domain.Product) string {
		return p.ID
	})

	missing := lo.Reject(ids, func(id string, _ int) bool {
		_, ok := byID[id]
		return ok
	})

	if len(found) == 0 || len(missing) > 0 {
		return nil, &domain.ProductsNotFoundError{ProductIDs: missing}
	}

	return lo.Map(ids, func(id string, _ int) domain.Product {
		return byID[id]
	}), nil
}

func (s *OrderService) validateStock(ctx context.Context, lines []domain.OrderLineRequest, products []domain.Product) error {
	_, span := s.tracer.Start(ctx, "validateStock")
	defer span.End()

	if err := checkStock(lines, products); err != nil {
		recordError(span, err)
		return err
	}

	return nil
}

// checkStock collects every line whose product cannot cover the requested quantity.
// Exhausting stock exactly is allowed.
func checkStock(lines []domain.OrderLineRequest, products []domain.Product) error {
	if len(lines) != len(products) {
		return fmt.Errorf("%w: %d lines resolved to %d products", domain.ErrProductsNotFound, len(lines), len(products))
	}

	var short []string
	for i, line := range lines {
		if !products[i].HasStock(line.Quantity) {
			short = append(short, line.ProductID)
		}
	}

	if len(short) > 0 {
		return domain.NewInsufficientStockError(short...)
	}

	return nil
}

func (s *OrderService) applyDecrements(ctx context.Context, lines []domain.OrderLineRequest) error {
	ctx, span := s.tracer.Start(ctx, "applyDecrements")
	defer span.End()

	if err := s.products.UpdateQuantity(ctx, lines); err != nil {
		err = classify(err, domain.ErrUnavailable)
		recordError(span, err)
		return err
	}

	return nil
}

func assembleLines(lines []domain.OrderLineRequest, products []domain.Product) []domain.OrderLine {
	return lo.Map(lines, func(line domain.OrderLineRequest, i int) domain.OrderLine {
		return domain.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     products[i].Price,
		}
	})
}

func (s *OrderService) persistOrder(ctx context.Context, customer domain.Customer, lines []domain.OrderLine) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "persistOrder")
	defer span.End()

	order, err := s.orders.Create(ctx, customer, lines)
	if err != nil {
		err = classify(err, domain.ErrPersistenceFailure)
		recordError(span, err)
		return domain.Order{}, err
	}

	return order, nil
}
