package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func clone(fu *model.FareUsage) *model.FareUsage {
	c := *fu
	c.Segments = append([]model.Segment(nil), fu.Segments...)
	return &c
}

func twoSegments(firstUnflown, lastUnflown bool) []model.Segment {
	return []model.Segment{
		{Board: "KRK", Off: "FRA", Order: 1, Unflown: firstUnflown},
		{Board: "FRA", Off: "JFK", Order: 2, Unflown: lastUnflown},
	}
}

func runCheck(t *testing.T, check Check, in input) Outcome {
	t.Helper()
	out, err := checkFuncs[check](context.Background(), in)
	require.NoError(t, err)
	return out
}

func TestCheckFareBreaks(t *testing.T) {
	tests := []struct {
		name       string
		segments   []model.Segment
		indicator  byte
		newBoard   string
		newOff     string
		shouldPass bool
	}{
		{name: "unflown always passes", segments: twoSegments(true, true), newBoard: "WAW", newOff: "LHR", shouldPass: true},
		{name: "flown blank both changed", segments: twoSegments(false, false), newBoard: "WAW", newOff: "LHR"},
		{name: "flown blank origin changed", segments: twoSegments(false, false), newBoard: "WAW", newOff: "FRA"},
		{name: "flown blank destination changed", segments: twoSegments(false, false), newBoard: "KRK", newOff: "LHR"},
		{name: "flown blank unchanged", segments: twoSegments(false, false), newBoard: "KRK", newOff: "FRA", shouldPass: true},
		{name: "partial both changed", segments: twoSegments(false, true), newBoard: "WAW", newOff: "LHR"},
		{name: "partial origin changed", segments: twoSegments(false, true), newBoard: "WAW", newOff: "FRA"},
		{name: "partial destination changed", segments: twoSegments(false, true), newBoard: "KRK", newOff: "LHR", shouldPass: true},
		{name: "partial unchanged", segments: twoSegments(false, true), newBoard: "KRK", newOff: "FRA", shouldPass: true},
		{name: "flown X both changed", segments: twoSegments(false, false), indicator: 'X', newBoard: "WAW", newOff: "LHR", shouldPass: true},
		{name: "flown X origin changed", segments: twoSegments(false, false), indicator: 'X', newBoard: "WAW", newOff: "FRA", shouldPass: true},
		{name: "partial X origin changed", segments: twoSegments(false, true), indicator: 'X', newBoard: "WAW", newOff: "FRA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", "100", model.NUC)
			orig.Segments = tt.segments
			repr := clone(orig)
			repr.BoardPoint, repr.OffPoint = tt.newBoard, tt.newOff

			ind := tt.indicator
			if ind == 0 {
				ind = model.Blank
			}
			rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.FareBreakInd = ind }).Build()

			out := runCheck(t, CheckFareBreaks, input{record: rec, original: orig, repriced: repr})
			assert.Equal(t, tt.shouldPass, out.Passed, out.Detail)
		})
	}
}

func TestCheckRuleTariff(t *testing.T) {
	tests := []struct {
		name       string
		configure  func(rec *model.RuleRecord, orig, repr *model.Fare)
		shouldPass bool
	}{
		{
			name: "non ATP vendor",
			configure: func(_ *model.RuleRecord, orig, _ *model.Fare) {
				orig.Vendor = "SITA"
			},
		},
		{name: "blank both public", configure: func(*model.RuleRecord, *model.Fare, *model.Fare) {}, shouldPass: true},
		{
			name: "blank public to private",
			configure: func(_ *model.RuleRecord, _, repr *model.Fare) {
				repr.TariffCategory = model.TariffPrivate
			},
		},
		{
			name: "blank private to public",
			configure: func(_ *model.RuleRecord, orig, _ *model.Fare) {
				orig.TariffCategory = model.TariffPrivate
			},
			shouldPass: true,
		},
		{
			name: "blank private to private",
			configure: func(_ *model.RuleRecord, orig, repr *model.Fare) {
				orig.TariffCategory = model.TariffPrivate
				repr.TariffCategory = model.TariffPrivate
			},
			shouldPass: true,
		},
		{
			name: "exact both public",
			configure: func(rec *model.RuleRecord, _, _ *model.Fare) {
				rec.RuleTariffInd = model.TariffExact
			},
			shouldPass: true,
		},
		{
			name: "exact private to public",
			configure: func(rec *model.RuleRecord, orig, _ *model.Fare) {
				rec.RuleTariffInd = model.TariffExact
				orig.TariffCategory = model.TariffPrivate
			},
		},
		{
			name: "exact public to private",
			configure: func(rec *model.RuleRecord, _, repr *model.Fare) {
				rec.RuleTariffInd = model.TariffExact
				repr.TariffCategory = model.TariffPrivate
			},
		},
		{
			name: "record tariff equals repriced tariff",
			configure: func(rec *model.RuleRecord, orig, repr *model.Fare) {
				rec.RuleTariff = 44
				orig.RuleTariff = 1
				orig.FareClassAppTariff = 2
				repr.RuleTariff = 44
				repr.FareClassAppTariff = 3
			},
			shouldPass: true,
		},
		{
			name: "original and repriced tariffs equal",
			configure: func(rec *model.RuleRecord, orig, repr *model.Fare) {
				rec.RuleTariff = 44
				orig.RuleTariff = 7
				orig.FareClassAppTariff = 2
				repr.RuleTariff = 7
				repr.FareClassAppTariff = 3
			},
			shouldPass: true,
		},
		{
			name: "fare class application tariffs equal",
			configure: func(rec *model.RuleRecord, orig, repr *model.Fare) {
				rec.RuleTariff = 44
				orig.RuleTariff = 7
				orig.FareClassAppTariff = 9
				repr.RuleTariff = 8
				repr.FareClassAppTariff = 9
			},
			shouldPass: true,
		},
		{
			name: "no tariff matches",
			configure: func(rec *model.RuleRecord, orig, repr *model.Fare) {
				rec.RuleTariff = 44
				orig.RuleTariff = 7
				orig.FareClassAppTariff = 9
				repr.RuleTariff = 8
				repr.FareClassAppTariff = 10
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", "100", model.NUC)
			repr := clone(orig)
			rec := testutil.NewRecord(1, 1).Build()
			tt.configure(rec, &orig.Fare, &repr.Fare)

			out := runCheck(t, CheckRuleTariff, input{record: rec, original: orig, repriced: repr})
			assert.Equal(t, tt.shouldPass, out.Passed, out.Detail)
		})
	}
}

func TestCheckRuleNumber(t *testing.T) {
	tests := []struct {
		record     string
		fare       string
		shouldPass bool
	}{
		{record: "", fare: "1234", shouldPass: true},
		{record: "2445", fare: "2445", shouldPass: true},
		{record: "2445", fare: "2446"},
		{record: "24**", fare: "2445", shouldPass: true},
		{record: "24**", fare: "2401", shouldPass: true},
		{record: "24**", fare: "2501"},
		{record: "24**", fare: "2345"},
		{record: "2*", fare: "2445"},
	}

	for _, tt := range tests {
		t.Run(tt.record+"_"+tt.fare, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", "100", model.NUC)
			repr := clone(orig)
			repr.Fare.RuleNumber = tt.fare
			rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.RuleNumber = tt.record }).Build()

			out := runCheck(t, CheckRuleNumber, input{record: rec, original: orig, repriced: repr})
			assert.Equal(t, tt.shouldPass, out.Passed)
		})
	}
}

func TestCheckFareClass(t *testing.T) {
	tests := []struct {
		name       string
		mode       model.FareClassMode
		value      string
		fareClass  string
		fareType   string
		shouldPass bool
	}{
		{name: "empty value", mode: model.FareClassModeClass, fareClass: "YOW", shouldPass: true},
		{name: "exact class", mode: model.FareClassModeClass, value: "YOW", fareClass: "YOW", shouldPass: true},
		{name: "different class", mode: model.FareClassModeClass, value: "YOW", fareClass: "BOW"},
		{name: "family prefix", mode: model.FareClassModeClass, value: "Y-", fareClass: "YLOWPL", shouldPass: true},
		{name: "family miss", mode: model.FareClassModeClass, value: "Y-", fareClass: "BLOW"},
		{name: "fare type match", mode: model.FareClassModeType, value: "XEX", fareType: "XEX", shouldPass: true},
		{name: "fare type miss", mode: model.FareClassModeType, value: "XPX", fareType: "XEX"},
		{name: "second character match", mode: model.FareClassModeSecondChar, value: "L", fareClass: "YLOW", shouldPass: true},
		{name: "second character miss", mode: model.FareClassModeSecondChar, value: "L", fareClass: "YHIGH"},
		{name: "second character short class", mode: model.FareClassModeSecondChar, value: "L", fareClass: "Y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", "100", model.NUC)
			repr := clone(orig)
			repr.Fare.FareClass = tt.fareClass
			repr.Fare.FareType = tt.fareType
			rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) {
				r.FareClassMode = tt.mode
				r.FareClass = tt.value
			}).Build()

			out := runCheck(t, CheckFareClass, input{record: rec, original: orig, repriced: repr})
			assert.Equal(t, tt.shouldPass, out.Passed, out.Detail)
		})
	}
}

func TestCheckFareType(t *testing.T) {
	permitted := model.FareTypePermitted
	forbidden := model.FareTypeForbidden

	tests := []struct {
		name       string
		table      []model.FareTypeEntry
		itemNo     int
		shouldPass bool
	}{
		{name: "no table", itemNo: 0, shouldPass: true},
		{name: "empty table", itemNo: 5},
		{name: "found permitted", itemNo: 5, table: []model.FareTypeEntry{{FareType: "XEX", Appl: permitted}}, shouldPass: true},
		{name: "found forbidden", itemNo: 5, table: []model.FareTypeEntry{{FareType: "XEX", Appl: forbidden}}},
		{name: "not found permitted", itemNo: 5, table: []model.FareTypeEntry{{FareType: "XPX", Appl: permitted}}},
		{name: "not found forbidden", itemNo: 5, table: []model.FareTypeEntry{{FareType: "XPX", Appl: forbidden}}, shouldPass: true},
		{
			name:   "found permitted among many",
			itemNo: 5,
			table: []model.FareTypeEntry{
				{FareType: "XPX", Appl: permitted},
				{FareType: "ER", Appl: permitted},
				{FareType: "XEX", Appl: permitted},
			},
			shouldPass: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", "100", model.NUC)
			repr := clone(orig)
			rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.FareTypeTblItemNo = tt.itemNo }).Build()

			supply := &testutil.MockRuleSupply{}
			if tt.itemNo != 0 {
				supply.On("FareTypeTable", mock.Anything, model.ATPCOVendor, tt.itemNo, testutil.ApplicationDate).
					Return(tt.table, nil)
			}

			out := runCheck(t, CheckFareType, input{
				supply:   supply,
				record:   rec,
				original: orig,
				repriced: repr,
				asOf:     testutil.ApplicationDate,
			})
			assert.Equal(t, tt.shouldPass, out.Passed, out.Detail)
			supply.AssertExpectations(t)
		})
	}
}

func TestCheckFareType_SupplyError(t *testing.T) {
	orig := testutil.NewFareUsage("fc1", "100", model.NUC)
	rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.FareTypeTblItemNo = 9 }).Build()
	boom := errors.New("table unavailable")

	supply := &testutil.MockRuleSupply{}
	supply.On("FareTypeTable", mock.Anything, model.ATPCOVendor, 9, mock.Anything).Return(nil, boom)

	_, err := checkFareType(context.Background(), input{supply: supply, record: rec, original: orig, repriced: clone(orig)})
	assert.ErrorIs(t, err, boom)
}

func TestCheckSameFare(t *testing.T) {
	tests := []struct {
		name       string
		indicator  model.SameFare
		newType    string
		newClass   string
		shouldPass bool
		detail     string
	}{
		{name: "blank", indicator: model.SameFareNone, newType: "ER", newClass: "BOW", shouldPass: true},
		{name: "same type", indicator: model.SameFareType, newType: "XEX", newClass: "BOW", shouldPass: true},
		{name: "different type", indicator: model.SameFareType, newType: "ER", newClass: "YOW"},
		{name: "same class", indicator: model.SameFareClass, newType: "ER", newClass: "YOW", shouldPass: true},
		{name: "different class", indicator: model.SameFareClass, newType: "XEX", newClass: "BOW"},
		{name: "invalid indicator", indicator: model.SameFare('Q'), newType: "XEX", newClass: "YOW", detail: "invalid same fare indicator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", "100", model.NUC)
			repr := clone(orig)
			repr.Fare.FareType = tt.newType
			repr.Fare.FareClass = tt.newClass
			rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.SameFare = tt.indicator }).Build()

			out := runCheck(t, CheckSameFare, input{record: rec, original: orig, repriced: repr})
			assert.Equal(t, tt.shouldPass, out.Passed)
			if tt.detail != "" {
				assert.Contains(t, out.Detail, tt.detail)
			}
		})
	}
}

func TestCheckNormalSpecialAndOWRT(t *testing.T) {
	orig := testutil.NewFareUsage("fc1", "100", model.NUC)
	normal := clone(orig)
	special := clone(orig)
	special.Fare.Normal = false
	roundTrip := clone(orig)
	roundTrip.Fare.OWRT = model.OWRTRoundTripMayNotBeHalved
	oneWayNoDouble := clone(orig)
	oneWayNoDouble.Fare.OWRT = model.OWRTOneWayMayNotBeDoubled

	withNS := func(ns model.NormalSpecial) *model.RuleRecord {
		return testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.NormalSpecial = ns }).Build()
	}
	withOWRT := func(o model.OWRT) *model.RuleRecord {
		return testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.OWRT = o }).Build()
	}

	assert.True(t, runCheck(t, CheckNormalSpecial, input{record: withNS(model.NormalSpecialAny), original: orig, repriced: special}).Passed)
	assert.True(t, runCheck(t, CheckNormalSpecial, input{record: withNS(model.NormalSpecialNormal), original: orig, repriced: normal}).Passed)
	assert.False(t, runCheck(t, CheckNormalSpecial, input{record: withNS(model.NormalSpecialNormal), original: orig, repriced: special}).Passed)
	assert.True(t, runCheck(t, CheckNormalSpecial, input{record: withNS(model.NormalSpecialSpecial), original: orig, repriced: special}).Passed)
	assert.False(t, runCheck(t, CheckNormalSpecial, input{record: withNS(model.NormalSpecialSpecial), original: orig, repriced: normal}).Passed)

	assert.True(t, runCheck(t, CheckOWRT, input{record: withOWRT(model.OWRTAny), original: orig, repriced: roundTrip}).Passed)
	assert.True(t, runCheck(t, CheckOWRT, input{record: withOWRT(model.OWRTOneWayMayBeDoubled), original: orig, repriced: normal}).Passed)
	assert.True(t, runCheck(t, CheckOWRT, input{record: withOWRT(model.OWRTOneWayMayBeDoubled), original: orig, repriced: oneWayNoDouble}).Passed)
	assert.False(t, runCheck(t, CheckOWRT, input{record: withOWRT(model.OWRTOneWayMayBeDoubled), original: orig, repriced: roundTrip}).Passed)
	assert.True(t, runCheck(t, CheckOWRT, input{record: withOWRT(model.OWRTRoundTripMayNotBeHalved), original: orig, repriced: roundTrip}).Passed)
	assert.False(t, runCheck(t, CheckOWRT, input{record: withOWRT(model.OWRTRoundTripMayNotBeHalved), original: orig, repriced: normal}).Passed)
}

func TestCheckFareAmount(t *testing.T) {
	flown := twoSegments(false, false)

	tests := []struct {
		name       string
		origSegs   []model.Segment
		newSegs    []model.Segment
		indicator  byte
		oldAmount  string
		newAmount  string
		shouldPass bool
	}{
		{name: "both unflown skips", origSegs: twoSegments(true, true), newSegs: twoSegments(true, true), oldAmount: "100", newAmount: "1", shouldPass: true},
		{name: "only exchange flown skips", origSegs: flown, newSegs: twoSegments(true, true), oldAmount: "100", newAmount: "1", shouldPass: true},
		{name: "only exchange unflown skips", origSegs: twoSegments(true, true), newSegs: flown, oldAmount: "100", newAmount: "1", shouldPass: true},
		{
			name:       "origin moved skips",
			origSegs:   []model.Segment{{Order: 2}, {Order: 3}},
			newSegs:    []model.Segment{{Order: 1}, {Order: 3}},
			oldAmount:  "100",
			newAmount:  "1",
			shouldPass: true,
		},
		{
			name:       "destination moved skips",
			origSegs:   []model.Segment{{Order: 1}, {Order: 2}},
			newSegs:    []model.Segment{{Order: 1}, {Order: 3}},
			oldAmount:  "100",
			newAmount:  "1",
			shouldPass: true,
		},
		{name: "X and higher", origSegs: flown, newSegs: flown, indicator: 'X', oldAmount: "100.00", newAmount: "100.01", shouldPass: true},
		{name: "X and same", origSegs: flown, newSegs: flown, indicator: 'X', oldAmount: "100.00", newAmount: "100.00"},
		{name: "blank and higher", origSegs: flown, newSegs: flown, oldAmount: "100.00", newAmount: "100.01", shouldPass: true},
		{name: "blank and same", origSegs: flown, newSegs: flown, oldAmount: "100.00", newAmount: "100.00", shouldPass: true},
		{name: "blank and lower", origSegs: flown, newSegs: flown, oldAmount: "100.01", newAmount: "100.00"},
		{name: "blank within epsilon", origSegs: flown, newSegs: flown, oldAmount: "100.0000005", newAmount: "100.00", shouldPass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testutil.NewFareUsage("fc1", tt.oldAmount, model.NUC)
			orig.Segments = tt.origSegs
			repr := clone(orig)
			repr.Segments = tt.newSegs
			repr.Fare.NucAmount = decimal.RequireFromString(tt.newAmount)

			ind := tt.indicator
			if ind == 0 {
				ind = model.Blank
			}
			rec := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.FareAmountInd = ind }).Build()

			out := runCheck(t, CheckFareAmount, input{record: rec, original: orig, repriced: repr})
			assert.Equal(t, tt.shouldPass, out.Passed, out.Detail)
		})
	}
}

func TestCheckBookingCode(t *testing.T) {
	orig := testutil.NewFareUsage("fc1", "100", model.NUC)
	failing := clone(orig)
	failing.Fare.FailsSameBookingCode = true

	required := testutil.NewRecord(1, 1).With(func(r *model.RuleRecord) { r.BookingCodeInd = model.BookingCodeRequired }).Build()
	blank := testutil.NewRecord(1, 1).Build()

	assert.False(t, runCheck(t, CheckBookingCode, input{record: required, original: orig, repriced: failing}).Passed)
	assert.True(t, runCheck(t, CheckBookingCode, input{record: required, original: orig, repriced: clone(orig)}).Passed)
	assert.True(t, runCheck(t, CheckBookingCode, input{record: blank, original: orig, repriced: failing}).Passed)
}

func TestCheckOrderIsComplete(t *testing.T) {
	require.Len(t, CheckOrder, 10)
	for i, c := range CheckOrder {
		assert.Equal(t, Check(i), c)
		assert.NotNil(t, checkFuncs[c], c.String())
	}
}
