package domain

import "time"

type Product struct {
	ID                string
	Name              string
	AvailableQuantity int
	Price             Money
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasStock reports whether the product can cover quantity without going negative.
func (p Product) HasStock(quantity int) bool {
	return p.AvailableQuantity >= quantity
}
