package testutil

import (
	"fmt"
	"sync"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// CountingConverter converts through NUC with fixed rates and counts calls.
// The default rates make one NUC worth two PLN.
type CountingConverter struct {
	Rates map[model.CurrencyCode]decimal.Decimal
	// FailOn makes conversions from or to the currency fail.
	FailOn model.CurrencyCode
	calls  int
	mu     sync.Mutex
}

// NewCountingConverter creates a converter that knows NUC, PLN, USD, EUR and JPY.
func NewCountingConverter() *CountingConverter {
	return &CountingConverter{Rates: map[model.CurrencyCode]decimal.Decimal{
		model.NUC: decimal.NewFromInt(1),
		"PLN":     decimal.NewFromInt(2),
		"USD":     decimal.NewFromInt(1),
		"EUR":     decimal.RequireFromString("0.5"),
		"JPY":     decimal.NewFromInt(100),
	}}
}

// Convert implements service.CurrencyConverter.
func (c *CountingConverter) Convert(amount decimal.Decimal, from, to model.CurrencyCode) (decimal.Decimal, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.FailOn != "" && (from == c.FailOn || to == c.FailOn) {
		return decimal.Zero, fmt.Errorf("%w: %s unavailable", common.ErrCurrencyConversion, c.FailOn)
	}
	if from == to {
		return amount, nil
	}
	fromRate, ok := c.Rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", common.ErrCurrencyConversion, from)
	}
	toRate, ok := c.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", common.ErrCurrencyConversion, to)
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

// Calls returns how many conversions were requested.
func (c *CountingConverter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
