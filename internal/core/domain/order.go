package domain

import (
	"errors"
	"time"
)

type OrderStatus string

// remember to add new statuses to the validOrderStatuses map
const (
	OrderStatusPending OrderStatus = "pending"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending: {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid order status")
}

type Order struct {
	ID         string
	CustomerID string
	Lines      []OrderLine
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderLine is the persisted line item. Price is the product price captured at order time.
type OrderLine struct {
	ProductID string
	Quantity  int
	Price     Money
}

// OrderLineRequest is one requested product and quantity, before validation.
type OrderLineRequest struct {
	ProductID string
	Quantity  int
}

type CreateOrderRequest struct {
	// RequestID is optional. When set, at most one order is created per id.
	RequestID  string
	CustomerID string
	Lines      []OrderLineRequest
}

func (r CreateOrderRequest) ProductIDs() []string {
	ids := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// TotalQuantity is the sum of quantities over all lines.
func (o Order) TotalQuantity() int {
	total := 0
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}
