// Package penalty computes the change and refund fees of a permutation.
package penalty

import (
	"fmt"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// AdjusterMode selects how a fare usage's chargeable amount is summarised.
type AdjusterMode int

// Adjuster modes.
const (
	// AdjustFareComponent sums the fare with its surcharges, stopovers,
	// transfers and differentials.
	AdjustFareComponent AdjusterMode = iota
	// AdjustFareUsage uses the fare-calculation total of the usage.
	AdjustFareUsage
)

// ParseAdjusterMode parses "fare_component" or "fare_usage".
func ParseAdjusterMode(s string) (AdjusterMode, error) {
	switch s {
	case "", "fare_component":
		return AdjustFareComponent, nil
	case "fare_usage":
		return AdjustFareUsage, nil
	default:
		return 0, fmt.Errorf("%w: unknown adjuster mode %q", common.ErrInvalidConfig, s)
	}
}

// Adjuster produces the subject amounts fees are computed against, reconciled
// with the pricing unit's plus-ups.
type Adjuster struct {
	mode AdjusterMode
}

// NewAdjuster creates an adjuster.
func NewAdjuster(mode AdjusterMode) *Adjuster {
	return &Adjuster{mode: mode}
}

func (a *Adjuster) raw(fu *model.FareUsage) decimal.Decimal {
	fc := fu.FareAmount.Amount.
		Add(fu.Surcharges).
		Add(fu.Stopovers).
		Add(fu.Transfers).
		Add(fu.Differentials)
	if a.mode == AdjustFareUsage && !fu.TotalAmount.IsZero() {
		return fu.TotalAmount
	}
	return fc
}

// Amounts returns each fare usage's subject amount in its fare currency.
// Component plus-ups go to their component; unit plus-ups are spread pro rata
// with the rounding remainder on the last component.
func (a *Adjuster) Amounts(pu *model.PricingUnit) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pu.FareUsages))
	total := decimal.Zero
	for _, fu := range pu.FareUsages {
		amt := a.raw(fu)
		out[fu.ID] = amt
		total = total.Add(amt)
	}

	for _, plus := range pu.PlusUps {
		if plus.FareComponentID != "" {
			if amt, ok := out[plus.FareComponentID]; ok {
				out[plus.FareComponentID] = amt.Add(plus.Amount)
			}
			continue
		}
		a.spread(pu, out, total, plus.Amount)
	}
	return out
}

func (a *Adjuster) spread(pu *model.PricingUnit, out map[string]decimal.Decimal, total, amount decimal.Decimal) {
	n := len(pu.FareUsages)
	if n == 0 {
		return
	}
	last := pu.FareUsages[n-1].ID
	if !total.IsPositive() {
		out[last] = out[last].Add(amount)
		return
	}

	allocated := decimal.Zero
	for _, fu := range pu.FareUsages[:n-1] {
		share := amount.Mul(a.raw(fu)).Div(total).Round(2)
		out[fu.ID] = out[fu.ID].Add(share)
		allocated = allocated.Add(share)
	}
	out[last] = out[last].Add(amount.Sub(allocated))
}
