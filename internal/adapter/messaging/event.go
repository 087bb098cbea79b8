package messaging

import (
	"time"

	"github.com/samber/lo"

	"github.com/rl1809/order-service/internal/core/domain"
)

const EventTypeOrderCreated = "order.created"

// OrderCreatedEvent is the JSON payload published for every committed order.
type OrderCreatedEvent struct {
	Type          string      `json:"type"`
	OrderID       string      `json:"order_id"`
	CustomerID    string      `json:"customer_id"`
	Status        string      `json:"status"`
	Lines         []EventLine `json:"lines"`
	TotalQuantity int         `json:"total_quantity"`
	CreatedAt     time.Time   `json:"created_at"`
}

type EventLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
}

func NewOrderCreatedEvent(order domain.Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		Type:       EventTypeOrderCreated,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Lines: lo.Map(order.Lines, func(l domain.OrderLine, _ int) EventLine {
			return EventLine{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.Price.Amount.String(),
				Currency:  l.Price.Currency.String(),
			}
		}),
		TotalQuantity: order.TotalQuantity(),
		CreatedAt:     order.CreatedAt,
	}
}
