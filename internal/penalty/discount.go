package penalty

import (
	"fmt"
	"slices"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// Passenger type codes classified as youth and senior.
var (
	YouthCodes  = []string{"YTH", "STU", "ZEY"}
	SeniorCodes = []string{"SRC", "YCD", "CNE"}
)

var hundred = decimal.NewFromInt(100)

// DiscountApplier turns a record's discount tags into the percentage taken off
// a fee.
type DiscountApplier interface {
	// Percent returns the percentage to take off, or zero when no tag applies.
	Percent(tags [4]byte, discount *model.Discount) decimal.Decimal
}

// ApplyDiscount reduces a fee by the applier's percentage.
func ApplyDiscount(d DiscountApplier, fee decimal.Decimal, tags [4]byte, discount *model.Discount) (decimal.Decimal, bool) {
	if d == nil {
		return fee, false
	}
	pct := d.Percent(tags, discount)
	if !pct.IsPositive() {
		return fee, false
	}
	return fee.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred))), true
}

// classification is the passenger profile a discount applier is built for.
type classification struct {
	paxType        string
	infantWithSeat bool
	infantNoSeat   bool
	child          bool
	youth          bool
	senior         bool
	childOrInfant  bool
}

func classify(pax model.Passenger) classification {
	return classification{
		paxType:        pax.Type,
		infantWithSeat: pax.Infant && pax.WithSeat,
		infantNoSeat:   pax.Infant && !pax.WithSeat,
		child:          pax.Child,
		youth:          slices.Contains(YouthCodes, pax.Type),
		senior:         slices.Contains(SeniorCodes, pax.Type),
		childOrInfant:  pax.Child || pax.Infant,
	}
}

// BaseDiscounts applies the standard discount tags.
type BaseDiscounts struct {
	class classification
}

// NewBaseDiscounts classifies the passenger once.
func NewBaseDiscounts(pax model.Passenger) *BaseDiscounts {
	return &BaseDiscounts{class: classify(pax)}
}

// Percent implements DiscountApplier. Tags are tried in order and the first
// one yielding a discount wins.
func (b *BaseDiscounts) Percent(tags [4]byte, discount *model.Discount) decimal.Decimal {
	for _, tag := range tags {
		if pct := b.tagPercent(tag, discount); pct.IsPositive() {
			return pct
		}
	}
	return decimal.Zero
}

func (b *BaseDiscounts) tagPercent(tag byte, discount *model.Discount) decimal.Decimal {
	c := b.class
	switch tag {
	case '0':
		if c.infantNoSeat {
			return hundred
		}
		return discountIf(c.infantWithSeat, discount)
	case '9':
		if c.infantNoSeat {
			return hundred
		}
		return decimal.Zero
	case '1':
		return discountIf(c.infantWithSeat || c.infantNoSeat, discount)
	case '2':
		return discountIf(c.child, discount)
	case '3':
		return discountIf(c.youth, discount)
	case '4':
		return discountIf(c.senior, discount)
	case '5':
		return discountIf(c.childOrInfant, discount)
	case '6':
		return discountIf(discount != nil && discount.PaxType == c.paxType, discount)
	default:
		return decimal.Zero
	}
}

// discountIf converts the charged share of a discount definition into the
// percentage taken off.
func discountIf(applies bool, discount *model.Discount) decimal.Decimal {
	if !applies || discount == nil {
		return decimal.Zero
	}
	return hundred.Sub(discount.Percent)
}

// EnhancedDiscounts distinguishes infants with and without a seat through tags
// 7 and 8 and ignores tags 5 and 6.
type EnhancedDiscounts struct {
	base *BaseDiscounts
}

// NewEnhancedDiscounts classifies the passenger once.
func NewEnhancedDiscounts(pax model.Passenger) *EnhancedDiscounts {
	return &EnhancedDiscounts{base: NewBaseDiscounts(pax)}
}

// Percent implements DiscountApplier.
func (e *EnhancedDiscounts) Percent(tags [4]byte, discount *model.Discount) decimal.Decimal {
	c := e.base.class
	for _, tag := range tags {
		var pct decimal.Decimal
		switch tag {
		case '7':
			pct = discountIf(c.infantWithSeat, discount)
		case '8':
			pct = discountIf(c.infantNoSeat, discount)
		case '5', '6':
			continue
		default:
			pct = e.base.tagPercent(tag, discount)
		}
		if pct.IsPositive() {
			return pct
		}
	}
	return decimal.Zero
}

// DiscountVariant names a discount applier implementation.
type DiscountVariant string

// Discount variants.
const (
	DiscountVariantBase     DiscountVariant = "base"
	DiscountVariantEnhanced DiscountVariant = "enhanced"
)

// NewDiscountApplier builds the configured variant for a passenger.
func NewDiscountApplier(variant DiscountVariant, pax model.Passenger) (DiscountApplier, error) {
	switch variant {
	case "", DiscountVariantBase:
		return NewBaseDiscounts(pax), nil
	case DiscountVariantEnhanced:
		return NewEnhancedDiscounts(pax), nil
	default:
		return nil, fmt.Errorf("%w: unknown discount variant %q", common.ErrInvalidConfig, variant)
	}
}
