package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyCode is an ISO 4217 currency code, or NUC for neutral units of construction.
type CurrencyCode string

// NUC is the neutral unit of construction used for fare calculation.
const NUC CurrencyCode = "NUC"

// AmountEpsilon is the tolerance used when comparing fare amounts.
var AmountEpsilon = decimal.New(1, -6)

// Money is an amount in a currency. The zero value has no currency and is
// treated as "not present" wherever a record may omit an amount.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency CurrencyCode    `json:"currency"`
}

// NewMoney creates a Money value.
func NewMoney(amount decimal.Decimal, currency CurrencyCode) Money {
	return Money{Amount: amount, Currency: currency}
}

// MustMoney parses a decimal string and panics on failure. Intended for tests and fixtures.
func MustMoney(amount string, currency CurrencyCode) Money {
	return Money{Amount: decimal.RequireFromString(amount), Currency: currency}
}

// ParseMoney parses an amount followed by a currency code, as in "150 USD".
// A bare amount is accepted when fallback is not empty.
func ParseMoney(s string, fallback CurrencyCode) (Money, error) {
	fields := strings.Fields(s)
	var cur CurrencyCode
	switch len(fields) {
	case 1:
		cur = fallback
	case 2:
		cur = CurrencyCode(strings.ToUpper(fields[1]))
	default:
		return Money{}, fmt.Errorf("cannot parse amount %q", s)
	}
	if cur == "" {
		return Money{}, fmt.Errorf("amount %q has no currency", s)
	}
	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return Money{}, fmt.Errorf("cannot parse amount %q: %w", s, err)
	}
	return Money{Amount: amount, Currency: cur}, nil
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency CurrencyCode) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// IsPresent reports whether the amount carries a currency.
func (m Money) IsPresent() bool {
	return m.Currency != ""
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Add sums two amounts in the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("cannot add %s to %s", other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Percent returns pct percent of the amount, keeping the currency.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(pct).Div(decimal.NewFromInt(100)), Currency: m.Currency}
}

func (m Money) String() string {
	if m.Currency == "" {
		return m.Amount.StringFixed(2)
	}
	return m.Amount.StringFixed(2) + " " + string(m.Currency)
}
