package port

import (
	"context"

	"github.com/rl1809/order-service/internal/core/domain"
)

type EventPublisher interface {
	// PublishOrderCreated announces a committed order. Called after commit only.
	PublishOrderCreated(ctx context.Context, order domain.Order) error
}
