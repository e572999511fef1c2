package testutil

import (
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
)

// RecordBuilder provides a fluent interface for constructing rule records.
// Every indicator starts blank, the vendor is ATP and the scope is fare component.
//
// Example:
//
//	rec := testutil.NewRecord(100, 1).
//		WithPercent("15").
//		WithScope(model.FeeScopePricingUnit).
//		Build()
type RecordBuilder struct {
	rec model.RuleRecord
}

// NewRecord starts a change-category record with the given identity.
func NewRecord(itemNo, seqNo int) *RecordBuilder {
	blank := model.Blank
	return &RecordBuilder{rec: model.RuleRecord{
		Vendor:          model.ATPCOVendor,
		ItemNo:          itemNo,
		SeqNo:           seqNo,
		Category:        model.CategoryChange,
		Percent:         decimal.Zero,
		DiscountTags:    [4]byte{blank, blank, blank, blank},
		Scope:           model.FeeScopeFareComponent,
		CalcOption:      model.CalcOptionNone,
		CancellationInd: blank,
		HighLow:         model.HighLowNone,
		FormOfRefund:    model.FormOfRefundUnspecified,
		FareBreakInd:    blank,
		RepriceBasis:    model.RepriceBasisUnspecified,
		RuleTariffInd:   model.TariffNoRestriction,
		FareClassMode:   model.FareClassModeClass,
		SameFare:        model.SameFareNone,
		NormalSpecial:   model.NormalSpecialAny,
		OWRT:            model.OWRTAny,
		FareAmountInd:   blank,
		BookingCodeInd:  blank,
		Flown:           model.FlownAny,
		Departure:       model.DepartureAny,
		OrigSchedFlight: model.OrigSchedFlightNone,
	}}
}

// Refund switches the record to the refund category.
func (b *RecordBuilder) Refund() *RecordBuilder {
	b.rec.Category = model.CategoryRefund
	return b
}

// WithScope sets the fee scope.
func (b *RecordBuilder) WithScope(scope model.FeeScope) *RecordBuilder {
	b.rec.Scope = scope
	return b
}

// WithCalcOption sets the pricing-unit calculation option.
func (b *RecordBuilder) WithCalcOption(opt model.CalcOption) *RecordBuilder {
	b.rec.CalcOption = opt
	return b
}

// WithHighLow sets the tie-break between the specified amount and the percentage.
func (b *RecordBuilder) WithHighLow(hl model.HighLow) *RecordBuilder {
	b.rec.HighLow = hl
	return b
}

// WithPercent sets the penalty percentage.
func (b *RecordBuilder) WithPercent(pct string) *RecordBuilder {
	b.rec.Percent = decimal.RequireFromString(pct)
	return b
}

// WithPenalty1 sets the first specified amount.
func (b *RecordBuilder) WithPenalty1(amount string, cur model.CurrencyCode) *RecordBuilder {
	b.rec.Penalty1 = model.MustMoney(amount, cur)
	return b
}

// WithPenalty2 sets the second specified amount.
func (b *RecordBuilder) WithPenalty2(amount string, cur model.CurrencyCode) *RecordBuilder {
	b.rec.Penalty2 = model.MustMoney(amount, cur)
	return b
}

// WithMinimum sets the minimum-penalty floor.
func (b *RecordBuilder) WithMinimum(amount string, cur model.CurrencyCode) *RecordBuilder {
	b.rec.MinAmount = model.MustMoney(amount, cur)
	return b
}

// HundredPercent marks the whole fare as forfeited.
func (b *RecordBuilder) HundredPercent() *RecordBuilder {
	b.rec.CancellationInd = model.CancellationHundredPercent
	return b
}

// WithDiscountTags sets up to four discount tags from a string.
func (b *RecordBuilder) WithDiscountTags(tags string) *RecordBuilder {
	for i := range b.rec.DiscountTags {
		b.rec.DiscountTags[i] = model.Blank
		if i < len(tags) {
			b.rec.DiscountTags[i] = tags[i]
		}
	}
	return b
}

// WithFormOfRefund sets the form-of-refund code.
func (b *RecordBuilder) WithFormOfRefund(f model.FormOfRefund) *RecordBuilder {
	b.rec.FormOfRefund = f
	return b
}

// WithRepriceBasis sets the reprice basis.
func (b *RecordBuilder) WithRepriceBasis(basis model.RepriceBasis) *RecordBuilder {
	b.rec.RepriceBasis = basis
	return b
}

// WithFlown sets the refund flown applicability.
func (b *RecordBuilder) WithFlown(f model.FlownApplicability) *RecordBuilder {
	b.rec.Flown = f
	return b
}

// WithDeparture sets the change departure indicator.
func (b *RecordBuilder) WithDeparture(d model.DepartureInd) *RecordBuilder {
	b.rec.Departure = d
	return b
}

// With applies an arbitrary mutation for fields without a dedicated helper.
func (b *RecordBuilder) With(fn func(*model.RuleRecord)) *RecordBuilder {
	fn(&b.rec)
	return b
}

// Build returns a copy of the configured record.
func (b *RecordBuilder) Build() *model.RuleRecord {
	rec := b.rec
	return &rec
}
