package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount that always serializes with two fraction digits.
// Database round trips can drop trailing zeros, so the scale is fixed on output.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MustMoney parses s and panics on malformed input; meant for literals
func MustMoney(s string) Money {
	return Money{Decimal: decimal.RequireFromString(s)}
}

// Fixed is the two-digit rendering, e.g. "2.00"
func (m Money) Fixed() string {
	return m.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fixed())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Decimal.UnmarshalJSON(data)
}
