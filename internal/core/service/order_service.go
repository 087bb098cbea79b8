package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/order-service/internal/core/domain"
	"github.com/rl1809/order-service/internal/port"
)

const tracerName = "github.com/rl1809/order-service/internal/core/service"

const idempotencyKeyPrefix = "order:request:"

type OrderService struct {
	customers port.CustomerRepository
	products  port.ProductRepository
	orders    port.OrderRepository
	tx        port.Transactor

	guard  port.IdempotencyGuard
	events port.EventPublisher
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures the OrderService.
type Option func(*OrderService)

// WithIdempotencyGuard enables request-id deduplication.
func WithIdempotencyGuard(guard port.IdempotencyGuard) Option {
	return func(s *OrderService) {
		s.guard = guard
	}
}

// WithEventPublisher announces committed orders through publisher.
func WithEventPublisher(publisher port.EventPublisher) Option {
	return func(s *OrderService) {
		s.events = publisher
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *OrderService) {
		s.logger = logger
	}
}

func NewOrderService(
	customers port.CustomerRepository,
	products port.ProductRepository,
	orders port.OrderRepository,
	tx port.Transactor,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		customers: customers,
		products:  products,
		orders:    orders,
		tx:        tx,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateOrder runs the order creation workflow:
// customer lookup, product lookup, stock validation, inventory decrement and order persistence.
// Decrement and persistence share one transaction, so a failure at any stage leaves
// neither stock nor orders changed.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (_ domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer span.End()

	defer func() {
		if err != nil {
			recordError(span, err)
			s.logFailure(ctx, req, err)
		}
	}()

	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	if req.RequestID != "" && s.guard != nil {
		key := idempotencyKeyPrefix + req.RequestID

		var (
			token string
			ok    bool
		)
		token, ok, err = s.guard.Acquire(ctx, key)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: idempotency check: %w", domain.ErrUnavailable, err)
		}
		if !ok {
			return domain.Order{}, domain.ErrDuplicateRequest
		}

		defer func() {
			if err == nil {
				return
			}
			// the request left no side effects, so its id may be used again
			if releaseErr := s.guard.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
				s.logger.ErrorContext(ctx, "Failed to release request id",
					"request_id", req.RequestID,
					"error", releaseErr,
				)
			}
		}()
	}

	order, err := s.createOrder(ctx, req)
	if err != nil {
		return domain.Order{}, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.InfoContext(ctx, "Order created",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"lines", len(order.Lines),
		"quantity", order.TotalQuantity(),
	)

	s.publishCreated(ctx, order)

	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	customer, err := s.findCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.Order{}, err
	}

	products, err := s.findProducts(ctx, req.ProductIDs())
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.validateStock(ctx, req.Lines, products); err != nil {
		return domain.Order{}, err
	}

	var order domain.Order

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.applyDecrements(ctx, req.Lines); err != nil {
			return err
		}

		order, err = s.persistOrder(ctx, customer, assembleLines(req.Lines, products))
		return err
	})
	if err != nil {
		return domain.Order{}, classify(err, domain.ErrPersistenceFailure)
	}

	return order, nil
}

// GetOrder returns a previously created order.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is empty", domain.ErrInvalidRequest)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, classify(err, domain.ErrUnavailable)
	}

	return order, nil
}

func (s *OrderService) publishCreated(ctx context.Context, order domain.Order) {
	if s.events == nil {
		return
	}

	// the order is committed; a lost event must not turn it into a failure
	if err := s.events.PublishOrderCreated(ctx, order); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish order created event",
			"order_id", order.ID,
			"error", err,
		)
	}
}

func (s *OrderService) logFailure(ctx context.Context, req domain.CreateOrderRequest, err error) {
	attrs := []any{
		"customer_id", req.CustomerID,
		"request_id", req.RequestID,
		"kind", domain.KindOf(err),
		"error", err,
	}

	switch domain.KindOf(err) {
	case domain.KindUnavailable, domain.KindPersistenceFailure, domain.KindUnknown:
		s.logger.ErrorContext(ctx, "Order creation failed", attrs...)
	default:
		s.logger.WarnContext(ctx, "Order rejected", attrs...)
	}
}

// classify keeps errors that already carry a kind and tags the rest with fallback.
// Timeouts and cancellations are always Unavailable.
func classify(err error, fallback error) error {
	if domain.HasKind(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}

	return fmt.Errorf("%w: %w", fallback, err)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.kind", string(domain.KindOf(err))))
}
