package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Segment is one travel segment of a fare component.
type Segment struct {
	Board   string
	Off     string
	Order   int
	Unflown bool
}

// DiscountCategory is the rule category that defines a fare discount.
type DiscountCategory int

// Discount categories.
const (
	DiscountChildren DiscountCategory = 19
	DiscountOther    DiscountCategory = 22
)

// Discount is a category 19/22 discount definition carried by a discounted fare.
// Percent is the share of the base fare that is charged.
type Discount struct {
	PaxType  string
	Percent  decimal.Decimal
	Category DiscountCategory
}

// Fare holds the tariff attributes of a priced fare.
type Fare struct {
	Discount             *Discount
	NucAmount            decimal.Decimal
	Vendor               string
	Carrier              string
	RuleNumber           string
	FareClass            string
	FareType             string
	Cabin                string
	RuleTariff           int
	FareClassAppTariff   int
	TariffCategory       TariffCategory
	OWRT                 OWRT
	Normal               bool
	FailsSameBookingCode bool
}

// FareUsage is one priced fare component inside a pricing unit.
type FareUsage struct {
	Fare           Fare
	ID             string
	BoardPoint     string
	OffPoint       string
	OriginCurrency CurrencyCode
	Segments       []Segment
	FareAmount     Money
	TotalAmount    decimal.Decimal
	Surcharges     decimal.Decimal
	Stopovers      decimal.Decimal
	Transfers      decimal.Decimal
	Differentials  decimal.Decimal
	RetrievalBasis RepriceBasis
	International  bool
}

// FullyFlown reports whether every segment has been flown.
func (fu *FareUsage) FullyFlown() bool {
	if len(fu.Segments) == 0 {
		return false
	}
	for _, seg := range fu.Segments {
		if seg.Unflown {
			return false
		}
	}
	return true
}

// PartiallyFlown reports whether some, but not all, segments have been flown.
func (fu *FareUsage) PartiallyFlown() bool {
	flown, unflown := 0, 0
	for _, seg := range fu.Segments {
		if seg.Unflown {
			unflown++
		} else {
			flown++
		}
	}
	return flown > 0 && unflown > 0
}

// LastSegmentUnflown reports whether the final segment is still unflown.
func (fu *FareUsage) LastSegmentUnflown() bool {
	if len(fu.Segments) == 0 {
		return true
	}
	return fu.Segments[len(fu.Segments)-1].Unflown
}

// PlusUp is a minimum-fare adjustment recorded for a pricing unit. An empty
// FareComponentID applies the plus-up to the whole unit.
type PlusUp struct {
	Amount          decimal.Decimal
	FareComponentID string
	Kind            string
}

// PricingUnit groups fare usages priced together.
type PricingUnit struct {
	ID         string
	FareUsages []*FareUsage
	PlusUps    []PlusUp
}

// Domestic reports whether no fare usage of the unit is international.
func (pu *PricingUnit) Domestic() bool {
	for _, fu := range pu.FareUsages {
		if fu.International {
			return false
		}
	}
	return true
}

// Itinerary is a priced fare path: its pricing units and their fare usages.
type Itinerary struct {
	ApplicationDate     time.Time
	CalculationCurrency CurrencyCode
	ValidatingCarrier   string
	PricingUnits        []*PricingUnit
}

// FareComponents returns every fare usage in pricing-unit order.
func (it *Itinerary) FareComponents() []*FareUsage {
	var out []*FareUsage
	for _, pu := range it.PricingUnits {
		out = append(out, pu.FareUsages...)
	}
	return out
}

// FareUsage finds a fare usage by fare component identity.
func (it *Itinerary) FareUsage(id string) (*FareUsage, bool) {
	for _, pu := range it.PricingUnits {
		for _, fu := range pu.FareUsages {
			if fu.ID == id {
				return fu, true
			}
		}
	}
	return nil, false
}

// PricingUnitOf returns the pricing unit containing the fare component.
func (it *Itinerary) PricingUnitOf(id string) (*PricingUnit, bool) {
	for _, pu := range it.PricingUnits {
		for _, fu := range pu.FareUsages {
			if fu.ID == id {
				return pu, true
			}
		}
	}
	return nil, false
}

// Passenger describes the traveller whose penalty is computed.
type Passenger struct {
	Type     string
	Infant   bool
	Child    bool
	WithSeat bool
}

// FareTypeAppl marks a fare-type table entry as permitted or forbidden.
type FareTypeAppl byte

// Fare-type table applications.
const (
	FareTypePermitted FareTypeAppl = FareTypeAppl(Blank)
	FareTypeForbidden FareTypeAppl = 'N'
)

// FareTypeEntry is one row of a fare-type table.
type FareTypeEntry struct {
	FareType string
	Appl     FareTypeAppl
}

// FlatPenaltyRecord is a category 16 flat penalty definition for one fare.
type FlatPenaltyRecord struct {
	Penalty1     Money
	Penalty2     Money
	Percent      decimal.Decimal
	Vendor       string
	ItemNo       int
	Window       Window
	Change       bool
	Refund       bool
	NotPermitted bool
	HighLow      HighLow
}

// AppliesTo reports whether the record governs the given category and window.
func (f *FlatPenaltyRecord) AppliesTo(category Category, window Window) bool {
	if category == CategoryChange && !f.Change {
		return false
	}
	if category == CategoryRefund && !f.Refund {
		return false
	}
	return f.Window.Intersects(window)
}

// AsRuleRecord expresses the flat penalty as a fare-component record so it is
// priced like any other record. A forbidden change or refund forfeits the fare.
func (f *FlatPenaltyRecord) AsRuleRecord() *RuleRecord {
	rec := &RuleRecord{
		Vendor:          f.Vendor,
		ItemNo:          f.ItemNo,
		Category:        CategoryFlatPenalty,
		Penalty1:        f.Penalty1,
		Penalty2:        f.Penalty2,
		Percent:         f.Percent,
		HighLow:         f.HighLow,
		Scope:           FeeScopeFareComponent,
		CalcOption:      CalcOptionNone,
		CancellationInd: Blank,
		DiscountTags:    [4]byte{Blank, Blank, Blank, Blank},
	}
	if f.NotPermitted {
		rec.CancellationInd = CancellationHundredPercent
	}
	return rec
}
