package testutil

import (
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// ApplicationDate is the fixed date used by test itineraries.
var ApplicationDate = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// NewFareUsage creates an international, unflown, normal ATP fare usage.
// Both the fare amount and the NUC amount are set to amount.
func NewFareUsage(id, amount string, cur model.CurrencyCode) *model.FareUsage {
	amt := decimal.RequireFromString(amount)
	return &model.FareUsage{
		ID:             id,
		BoardPoint:     "KRK",
		OffPoint:       "FRA",
		OriginCurrency: cur,
		FareAmount:     model.NewMoney(amt, cur),
		TotalAmount:    amt,
		International:  true,
		RetrievalBasis: model.RepriceBasisTicketIssue,
		Segments: []model.Segment{
			{Board: "KRK", Off: "FRA", Order: 1, Unflown: true},
		},
		Fare: model.Fare{
			Vendor:     model.ATPCOVendor,
			Carrier:    "LH",
			RuleNumber: "2445",
			FareClass:  "YOW",
			FareType:   "XEX",
			Cabin:      "Y",
			RuleTariff: 21,
			NucAmount:  amt,
			OWRT:       model.OWRTOneWayMayBeDoubled,
			Normal:     true,
		},
	}
}

// NewPricingUnit groups fare usages into a pricing unit.
func NewPricingUnit(id string, fares ...*model.FareUsage) *model.PricingUnit {
	return &model.PricingUnit{ID: id, FareUsages: fares}
}

// NewItinerary creates an itinerary priced in the calculation currency.
func NewItinerary(calc model.CurrencyCode, units ...*model.PricingUnit) *model.Itinerary {
	return &model.Itinerary{
		ApplicationDate:     ApplicationDate,
		CalculationCurrency: calc,
		ValidatingCarrier:   "LH",
		PricingUnits:        units,
	}
}
