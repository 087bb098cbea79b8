package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

func NewMoney(amount string, iso string) (Money, error) {
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("decimal.NewFromString[%s]: %w", amount, err)
	}

	unit, err := currency.ParseISO(iso)
	if err != nil {
		return Money{}, fmt.Errorf("currency[%s] is not valid: %w", iso, err)
	}

	return Money{Amount: a, Currency: unit}, nil
}

func (m Money) Equal(other Money) bool {
	return m.Amount.Equal(other.Amount) && m.Currency.String() == other.Currency.String()
}

func (m Money) String() string {
	return m.AmountString() + " " + m.Currency.String()
}

// AmountString formats the amount with at least two decimal places and never
// rounds away stored precision: 2.5 is "2.50", 0.0049 stays "0.0049".
func (m Money) AmountString() string {
	places := 0
	if s := m.Amount.String(); strings.Contains(s, ".") {
		places = len(s) - strings.IndexByte(s, '.') - 1
	}

	return m.Amount.StringFixed(int32(max(places, 2)))
}
