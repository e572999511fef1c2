package estimator

import (
	"context"
	"testing"

	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var adult = model.Passenger{Type: "ADT"}

// quoteFixture is an itinerary of 100 NUC fares with the records each fare
// is offered, keyed by fare component.
type quoteFixture struct {
	itin    *model.Itinerary
	records map[string][]*model.RuleRecord
	flat    map[string][]*model.FlatPenaltyRecord
}

func newQuoteFixture(units ...*model.PricingUnit) *quoteFixture {
	return &quoteFixture{
		itin:    testutil.NewItinerary(model.NUC, units...),
		records: make(map[string][]*model.RuleRecord),
		flat:    make(map[string][]*model.FlatPenaltyRecord),
	}
}

func (f *quoteFixture) supply(category model.Category) *testutil.MockRuleSupply {
	supply := &testutil.MockRuleSupply{}
	for _, fu := range f.itin.FareComponents() {
		supply.On("EligibleRecords", mock.Anything, fu, category, adult.Type).Return(f.records[fu.ID], nil)
		supply.On("FlatPenalties", mock.Anything, fu).Return(f.flat[fu.ID], nil).Maybe()
	}
	return supply
}

func (f *quoteFixture) estimator(supply *testutil.MockRuleSupply) *Estimator {
	return New(supply, testutil.NewCountingConverter(), nil, config.DefaultEngineConfig())
}

func (f *quoteFixture) request() Request {
	return Request{Itinerary: f.itin, Passenger: adult}
}

func fare(id string) *model.FareUsage {
	return testutil.NewFareUsage(id, "100", model.NUC)
}

func domestic(fu *model.FareUsage) *model.FareUsage {
	fu.International = false
	return fu
}

func assertAmount(t *testing.T, want string, fee Fee) {
	t.Helper()
	require.False(t, fee.NonRefundable, "fee is non-refundable")
	require.NotNil(t, fee.Amount)
	assert.True(t, decimal.RequireFromString(want).Equal(fee.Amount.Amount), "want %s, got %s", want, fee.Amount)
	assert.Equal(t, model.NUC, fee.Amount.Currency)
}

func TestEstimator_Change(t *testing.T) {
	tests := []struct {
		name       string
		records    []*model.RuleRecord
		wantBefore string
		wantAfter  string
	}{
		{
			name:       "single record applies to both windows",
			records:    []*model.RuleRecord{testutil.NewRecord(1, 1).WithPercent("20").Build()},
			wantBefore: "20",
			wantAfter:  "20",
		},
		{
			name: "window restricted records",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).WithPercent("30").WithDeparture(model.DepartureBefore).Build(),
				testutil.NewRecord(1, 2).WithPercent("20").Build(),
				testutil.NewRecord(1, 3).WithPercent("25").WithDeparture(model.DepartureAfter).Build(),
			},
			wantBefore: "30",
			wantAfter:  "25",
		},
		{
			name:       "rounded once at the end",
			records:    []*model.RuleRecord{testutil.NewRecord(1, 1).WithPercent("33.3333").Build()},
			wantBefore: "33.33",
			wantAfter:  "33.33",
		},
		{
			name: "waiver records are skipped",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).WithPercent("90").With(func(r *model.RuleRecord) { r.WaiverTblItemNo = 4 }).Build(),
				testutil.NewRecord(1, 2).WithPercent("10").Build(),
			},
			wantBefore: "10",
			wantAfter:  "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
			f.records["fc1"] = tt.records
			supply := f.supply(model.CategoryChange)

			fees, err := f.estimator(supply).Change(context.Background(), f.request())
			require.NoError(t, err)

			assertAmount(t, tt.wantBefore, fees.Before)
			assertAmount(t, tt.wantAfter, fees.After)
			assert.Zero(t, fees.FlatPenalty)
		})
	}
}

func TestEstimator_ChangeNonRefundable(t *testing.T) {
	tests := []struct {
		name       string
		records    []*model.RuleRecord
		wantBefore bool
		wantAfter  bool
	}{
		{
			name: "any forfeited fare makes the window non-changeable",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).WithPercent("10").Build(),
				testutil.NewRecord(1, 2).HundredPercent().Build(),
			},
			wantBefore: true,
			wantAfter:  true,
		},
		{
			name: "no record after departure and no flat record",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).WithPercent("10").WithDeparture(model.DepartureBefore).Build(),
			},
			wantAfter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
			f.records["fc1"] = tt.records

			fees, err := f.estimator(f.supply(model.CategoryChange)).Change(context.Background(), f.request())
			require.NoError(t, err)

			assert.Equal(t, tt.wantBefore, fees.Before.NonRefundable)
			assert.Equal(t, tt.wantAfter, fees.After.NonRefundable)
			if tt.wantAfter {
				assert.Nil(t, fees.After.Amount)
			}
		})
	}
}

func TestEstimator_CarrierApplications(t *testing.T) {
	tests := []struct {
		name     string
		carriers []string
		want     string
	}{
		{name: "validating carrier listed", carriers: []string{"BA", "LH"}, want: "50"},
		{name: "any carrier", carriers: []string{AnyCarrier}, want: "50"},
		{name: "validating carrier excluded", carriers: []string{"BA"}, want: "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
			f.records["fc1"] = []*model.RuleRecord{
				testutil.NewRecord(1, 1).WithPercent("50").With(func(r *model.RuleRecord) { r.CarrierApplItemNo = 7 }).Build(),
				testutil.NewRecord(1, 2).WithPercent("10").Build(),
			}
			supply := f.supply(model.CategoryChange)
			supply.On("CarrierApplications", mock.Anything, model.ATPCOVendor, 7, testutil.ApplicationDate).Return(tt.carriers, nil)

			fees, err := f.estimator(supply).Change(context.Background(), f.request())
			require.NoError(t, err)
			assertAmount(t, tt.want, fees.Before)
			assertAmount(t, tt.want, fees.After)
		})
	}
}

func TestEstimator_DomesticOverride(t *testing.T) {
	tests := []struct {
		name     string
		override bool
		want     string
	}{
		{name: "own records", want: "60"},
		{name: "international record overrides", override: true, want: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(
				testutil.NewPricingUnit("pu1", fare("fc1")),
				testutil.NewPricingUnit("pu2", domestic(fare("fc2"))),
			)
			f.records["fc1"] = []*model.RuleRecord{
				testutil.NewRecord(1, 1).WithPercent("30").Build(),
				testutil.NewRecord(1, 2).WithPercent("50").Build(),
			}
			f.records["fc2"] = []*model.RuleRecord{testutil.NewRecord(2, 1).WithPercent("10").Build()}

			req := f.request()
			req.DomesticOverride = tt.override
			fees, err := f.estimator(f.supply(model.CategoryChange)).Change(context.Background(), req)
			require.NoError(t, err)
			assertAmount(t, tt.want, fees.Before)
		})
	}
}

func TestEstimator_FlatPenaltyFallback(t *testing.T) {
	tests := []struct {
		flat        []*model.FlatPenaltyRecord
		name        string
		want        string
		wantMissing []string
		wantNonRef  bool
	}{
		{
			name: "highest flat fee",
			flat: []*model.FlatPenaltyRecord{
				{Penalty1: model.MustMoney("40", model.NUC), Window: model.WindowBoth, Change: true},
				{Penalty1: model.MustMoney("70", "PLN"), Window: model.WindowBoth, Change: true},
				{Penalty1: model.MustMoney("90", model.NUC), Window: model.WindowBoth, Refund: true},
			},
			want: "40",
		},
		{
			name: "forbidden change",
			flat: []*model.FlatPenaltyRecord{
				{Window: model.WindowBoth, Change: true, NotPermitted: true},
			},
			wantNonRef: true,
		},
		{
			name:        "no flat record",
			wantNonRef:  true,
			wantMissing: []string{"fc1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
			f.flat["fc1"] = tt.flat

			fees, err := f.estimator(f.supply(model.CategoryChange)).Change(context.Background(), f.request())
			require.NoError(t, err)
			assert.Equal(t, model.WindowBoth, fees.FlatPenalty)

			for _, fee := range []Fee{fees.Before, fees.After} {
				if tt.wantNonRef {
					assert.True(t, fee.NonRefundable)
					assert.Nil(t, fee.Amount)
					assert.Equal(t, tt.wantMissing, fee.MissingData)
					continue
				}
				assertAmount(t, tt.want, fee)
			}
		})
	}
}

func TestEstimator_FlatPenaltySumsFares(t *testing.T) {
	f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1"), fare("fc2")))
	f.records["fc1"] = []*model.RuleRecord{testutil.NewRecord(1, 1).WithPercent("10").Build()}
	f.flat["fc1"] = []*model.FlatPenaltyRecord{{Penalty1: model.MustMoney("25", model.NUC), Window: model.WindowBoth, Change: true}}
	f.flat["fc2"] = []*model.FlatPenaltyRecord{
		{Percent: decimal.NewFromInt(15), Window: model.WindowBefore, Change: true},
		{Penalty1: model.MustMoney("5", model.NUC), Window: model.WindowAfter, Change: true},
	}

	fees, err := f.estimator(f.supply(model.CategoryChange)).Change(context.Background(), f.request())
	require.NoError(t, err)
	assertAmount(t, "40", fees.Before)
	assertAmount(t, "30", fees.After)
}

func TestEstimator_FlatPenaltyPerWindow(t *testing.T) {
	flatBoth := func(amount string, category model.Category) []*model.FlatPenaltyRecord {
		return []*model.FlatPenaltyRecord{{
			Penalty1: model.MustMoney(amount, model.NUC),
			Window:   model.WindowBoth,
			Change:   category == model.CategoryChange,
			Refund:   category == model.CategoryRefund,
		}}
	}

	tests := []struct {
		name       string
		category   model.Category
		records    []*model.RuleRecord
		flat       []*model.FlatPenaltyRecord
		wantBefore string
		wantAfter  string
		wantFlat   model.Window
	}{
		{
			name:       "change filed only before departure",
			category:   model.CategoryChange,
			records:    []*model.RuleRecord{testutil.NewRecord(1, 1).WithPercent("30").WithDeparture(model.DepartureBefore).Build()},
			flat:       flatBoth("25", model.CategoryChange),
			wantBefore: "30",
			wantAfter:  "25",
			wantFlat:   model.WindowAfter,
		},
		{
			name:       "change filed only after departure",
			category:   model.CategoryChange,
			records:    []*model.RuleRecord{testutil.NewRecord(1, 1).WithPercent("25").WithDeparture(model.DepartureAfter).Build()},
			flat:       flatBoth("40", model.CategoryChange),
			wantBefore: "40",
			wantAfter:  "25",
			wantFlat:   model.WindowBefore,
		},
		{
			name:       "refund filed only for flown fares",
			category:   model.CategoryRefund,
			records:    []*model.RuleRecord{testutil.NewRecord(1, 1).Refund().WithPercent("40").WithFlown(model.FlownFully).Build()},
			flat:       flatBoth("15", model.CategoryRefund),
			wantBefore: "15",
			wantAfter:  "40",
			wantFlat:   model.WindowBefore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
			f.records["fc1"] = tt.records
			f.flat["fc1"] = tt.flat
			e := f.estimator(f.supply(tt.category))

			quote := e.Change
			if tt.category == model.CategoryRefund {
				quote = e.Refund
			}
			fees, err := quote(context.Background(), f.request())
			require.NoError(t, err)

			assertAmount(t, tt.wantBefore, fees.Before)
			assertAmount(t, tt.wantAfter, fees.After)
			assert.Equal(t, tt.wantFlat, fees.FlatPenalty)
		})
	}
}

// flownFare returns a fare with one segment per flag, flown where the flag is set.
func flownFare(id string, flown ...bool) *model.FareUsage {
	fu := fare(id)
	fu.Segments = nil
	for i, f := range flown {
		fu.Segments = append(fu.Segments, model.Segment{Board: "KRK", Off: "FRA", Order: i + 1, Unflown: !f})
	}
	return fu
}

func TestEstimator_FlatRefundFlownMix(t *testing.T) {
	tests := []struct {
		second     *model.FareUsage
		name       string
		wantNonRef bool
	}{
		{name: "both fares fully flown", second: flownFare("fc2", true)},
		{name: "fully and partially flown in one unit", second: flownFare("fc2", true, false), wantNonRef: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", flownFare("fc1", true), tt.second))
			for _, id := range []string{"fc1", "fc2"} {
				f.flat[id] = []*model.FlatPenaltyRecord{{Penalty1: model.MustMoney("10", model.NUC), Window: model.WindowBoth, Refund: true}}
			}

			fees, err := f.estimator(f.supply(model.CategoryRefund)).Refund(context.Background(), f.request())
			require.NoError(t, err)
			assert.Equal(t, model.WindowBoth, fees.FlatPenalty)
			assertAmount(t, "20", fees.Before)

			if tt.wantNonRef {
				assert.True(t, fees.After.NonRefundable)
				assert.Nil(t, fees.After.Amount)
				assert.Empty(t, fees.After.MissingData)
				return
			}
			assertAmount(t, "20", fees.After)
		})
	}
}

func TestEstimator_Refund(t *testing.T) {
	tests := []struct {
		name       string
		records    []*model.RuleRecord
		wantBefore string
		wantAfter  string
	}{
		{
			name: "highest refundable charge per window",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).Refund().WithPercent("10").WithFlown(model.FlownUnflown).Build(),
				testutil.NewRecord(1, 2).Refund().WithPercent("20").Build(),
				testutil.NewRecord(1, 3).Refund().WithPercent("40").WithFlown(model.FlownFully).Build(),
			},
			wantBefore: "20",
			wantAfter:  "40",
		},
		{
			name: "records failing their own fare are rejected",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).Refund().WithPercent("90").With(func(r *model.RuleRecord) {
					r.NormalSpecial = model.NormalSpecialSpecial
				}).Build(),
				testutil.NewRecord(1, 2).Refund().WithPercent("15").Build(),
			},
			wantBefore: "15",
			wantAfter:  "15",
		},
		{
			name: "fewest forfeited fares beat a higher charge",
			records: []*model.RuleRecord{
				testutil.NewRecord(1, 1).Refund().HundredPercent().Build(),
				testutil.NewRecord(1, 2).Refund().WithPercent("5").Build(),
			},
			wantBefore: "5",
			wantAfter:  "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
			f.records["fc1"] = tt.records

			fees, err := f.estimator(f.supply(model.CategoryRefund)).Refund(context.Background(), f.request())
			require.NoError(t, err)
			assertAmount(t, tt.wantBefore, fees.Before)
			assertAmount(t, tt.wantAfter, fees.After)
		})
	}
}

func TestEstimator_RefundNonRefundable(t *testing.T) {
	t.Run("every fee forfeited", func(t *testing.T) {
		f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
		f.records["fc1"] = []*model.RuleRecord{testutil.NewRecord(1, 1).Refund().HundredPercent().Build()}

		fees, err := f.estimator(f.supply(model.CategoryRefund)).Refund(context.Background(), f.request())
		require.NoError(t, err)
		assert.True(t, fees.Before.NonRefundable)
		assert.True(t, fees.After.NonRefundable)
	})

	t.Run("fully and partially flown records in one unit", func(t *testing.T) {
		f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1"), fare("fc2")))
		f.records["fc1"] = []*model.RuleRecord{testutil.NewRecord(1, 1).Refund().WithPercent("10").WithFlown(model.FlownFully).Build()}
		f.records["fc2"] = []*model.RuleRecord{testutil.NewRecord(2, 1).Refund().WithPercent("10").WithFlown(model.FlownPartially).Build()}

		fees, err := f.estimator(f.supply(model.CategoryRefund)).Refund(context.Background(), f.request())
		require.NoError(t, err)
		assert.True(t, fees.Before.NonRefundable, "before departure falls back to flat penalties and none are filed")
		assert.True(t, fees.After.NonRefundable)
		assert.Nil(t, fees.After.Amount)
	})
}

func TestEstimator_Estimate(t *testing.T) {
	f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
	fu := f.itin.PricingUnits[0].FareUsages[0]

	supply := &testutil.MockRuleSupply{}
	supply.On("EligibleRecords", mock.Anything, fu, model.CategoryChange, adult.Type).
		Return([]*model.RuleRecord{testutil.NewRecord(1, 1).WithPercent("25").Build()}, nil)
	supply.On("EligibleRecords", mock.Anything, fu, model.CategoryRefund, adult.Type).
		Return([]*model.RuleRecord{testutil.NewRecord(2, 1).Refund().WithPercent("35").Build()}, nil)

	resp, err := f.estimator(supply).Estimate(context.Background(), f.request())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assertAmount(t, "25", resp.Change.Before)
	assertAmount(t, "25", resp.Change.After)
	assertAmount(t, "35", resp.Refund.Before)
	assertAmount(t, "35", resp.Refund.After)
	supply.AssertExpectations(t)
}

func TestEstimator_Errors(t *testing.T) {
	t.Run("empty itinerary", func(t *testing.T) {
		e := New(&testutil.MockRuleSupply{}, testutil.NewCountingConverter(), nil, config.DefaultEngineConfig())
		_, err := e.Change(context.Background(), Request{Itinerary: testutil.NewItinerary(model.NUC)})
		assert.ErrorIs(t, err, ErrEmptyItinerary)
	})

	t.Run("rule supply failure", func(t *testing.T) {
		f := newQuoteFixture(testutil.NewPricingUnit("pu1", fare("fc1")))
		supply := &testutil.MockRuleSupply{}
		supply.On("EligibleRecords", mock.Anything, mock.Anything, model.CategoryChange, adult.Type).
			Return(nil, assert.AnError)

		_, err := f.estimator(supply).Change(context.Background(), f.request())
		assert.ErrorIs(t, err, assert.AnError)
	})
}
