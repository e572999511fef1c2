package estimator

import (
	"fmt"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
)

// Query selects itineraries by changeability.
type Query int

// Changeability queries.
const (
	QueryAny Query = iota
	QueryChangeable
	QueryNonChangeable
)

// ParseQuery parses "any", "changeable" or "non-changeable".
func ParseQuery(s string) (Query, error) {
	switch s {
	case "", "any":
		return QueryAny, nil
	case "changeable":
		return QueryChangeable, nil
	case "non-changeable", "nonchangeable":
		return QueryNonChangeable, nil
	default:
		return 0, fmt.Errorf("unknown changeability query %q", s)
	}
}

// Filter decides whether quoted fees satisfy a shopping request.
type Filter struct {
	// MaxFee caps the fee of every selected window.
	MaxFee    *model.Money
	Departure model.Window
	Query     Query
}

// Passes reports whether every window named by Departure satisfies the query
// and the fee cap. A non-refundable window never satisfies a cap unless the
// query asks for non-changeable itineraries.
func (f Filter) Passes(fees WindowFees, conv service.CurrencyConverter) (bool, error) {
	departure := f.Departure
	if departure == 0 {
		departure = model.WindowBoth
	}

	for _, w := range windows {
		if !departure.Intersects(w) {
			continue
		}
		ok, err := f.passes(fees.Get(w), conv)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (f Filter) passes(fee Fee, conv service.CurrencyConverter) (bool, error) {
	switch f.Query {
	case QueryChangeable:
		if fee.NonRefundable || fee.Amount == nil {
			return false, nil
		}
	case QueryNonChangeable:
		if !fee.NonRefundable {
			return false, nil
		}
	}

	if f.MaxFee == nil {
		return true, nil
	}
	if fee.NonRefundable || fee.Amount == nil {
		return f.Query == QueryNonChangeable, nil
	}

	amount := fee.Amount.Amount
	if fee.Amount.Currency != f.MaxFee.Currency {
		converted, err := conv.Convert(amount, fee.Amount.Currency, f.MaxFee.Currency)
		if err != nil {
			return false, fmt.Errorf("converting fee %s: %w", fee.Amount, err)
		}
		amount = converted
	}
	return amount.LessThanOrEqual(f.MaxFee.Amount), nil
}
