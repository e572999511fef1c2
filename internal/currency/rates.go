// Package currency provides a rate-table currency converter.
package currency

import (
	"fmt"
	"sync"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

const defaultDecimals = 2

// RateTable converts amounts through NUC. Each rate is the number of currency
// units worth one NUC, so converting divides by the source rate and multiplies
// by the target rate.
type RateTable struct {
	rates    map[model.CurrencyCode]decimal.Decimal
	decimals map[model.CurrencyCode]int32
	mu       sync.RWMutex
}

// NewRateTable creates a table that knows only NUC.
func NewRateTable() *RateTable {
	return &RateTable{
		rates:    map[model.CurrencyCode]decimal.Decimal{model.NUC: decimal.NewFromInt(1)},
		decimals: map[model.CurrencyCode]int32{model.NUC: defaultDecimals},
	}
}

// SetRate records how many units of the currency make one NUC.
func (t *RateTable) SetRate(code model.CurrencyCode, perNUC decimal.Decimal, decimals int32) error {
	if code == "" {
		return fmt.Errorf("%w: empty currency code", common.ErrInvalidConfig)
	}
	if !perNUC.IsPositive() {
		return fmt.Errorf("%w: rate for %s must be positive, got %s", common.ErrInvalidConfig, code, perNUC)
	}
	if decimals < 0 {
		decimals = defaultDecimals
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[code] = perNUC
	t.decimals[code] = decimals
	return nil
}

// Convert converts an amount between two currencies. Same-currency conversion
// returns the amount unchanged.
func (t *RateTable) Convert(amount decimal.Decimal, from, to model.CurrencyCode) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	t.mu.RLock()
	fromRate, okFrom := t.rates[from]
	toRate, okTo := t.rates[to]
	t.mu.RUnlock()

	if !okFrom {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", common.ErrCurrencyConversion, from)
	}
	if !okTo {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", common.ErrCurrencyConversion, to)
	}

	return amount.Div(fromRate).Mul(toRate), nil
}

// Decimals returns the number of minor-unit digits of a currency.
func (t *RateTable) Decimals(code model.CurrencyCode) int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if d, ok := t.decimals[code]; ok {
		return d
	}
	return defaultDecimals
}

// Round rounds an amount to its currency's precision.
func (t *RateTable) Round(m model.Money) model.Money {
	return model.Money{Amount: m.Amount.Round(t.Decimals(m.Currency)), Currency: m.Currency}
}

// Currencies returns the number of currencies the table can convert.
func (t *RateTable) Currencies() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rates)
}
