package storage

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/rl1809/order-service/internal/core/domain"
)

// productRow mirrors the products table shared by the SQL stores.
type productRow struct {
	ID                string
	Name              string
	AvailableQuantity int
	PriceAmount       decimal.Decimal
	PriceCurrency     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r productRow) toDomain() (domain.Product, error) {
	unit, err := currency.ParseISO(r.PriceCurrency)
	if err != nil {
		return domain.Product{}, fmt.Errorf("currency.ParseISO[%s]: %w", r.PriceCurrency, err)
	}

	return domain.Product{
		ID:                r.ID,
		Name:              r.Name,
		AvailableQuantity: r.AvailableQuantity,
		Price:             domain.Money{Amount: r.PriceAmount, Currency: unit},
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

type lineRow struct {
	ProductID     string
	Quantity      int
	PriceAmount   decimal.Decimal
	PriceCurrency string
}

func (r lineRow) toDomain() (domain.OrderLine, error) {
	unit, err := currency.ParseISO(r.PriceCurrency)
	if err != nil {
		return domain.OrderLine{}, fmt.Errorf("currency.ParseISO[%s]: %w", r.PriceCurrency, err)
	}

	return domain.OrderLine{
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Price:     domain.Money{Amount: r.PriceAmount, Currency: unit},
	}, nil
}

// sortedByProduct returns a copy of lines ordered by product id, the order in
// which SQL stores take row locks.
func sortedByProduct(lines []domain.OrderLineRequest) []domain.OrderLineRequest {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b domain.OrderLineRequest) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return sorted
}

func inRequestOrder(lines []domain.OrderLineRequest, set map[string]struct{}) []string {
	return lo.FilterMap(lines, func(l domain.OrderLineRequest, _ int) (string, bool) {
		_, ok := set[l.ProductID]
		return l.ProductID, ok
	})
}
