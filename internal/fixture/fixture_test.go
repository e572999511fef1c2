package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/Veraticus/rexpenalty/internal/engine"
	"github.com/Veraticus/rexpenalty/internal/estimator"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
	"github.com/Veraticus/rexpenalty/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	runner := NewRunner(config.DefaultEngineConfig())
	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			v := runner.Check(context.Background(), sc)
			assert.True(t, v.Passed(), "failures: %v (error: %v)", v.Failures, v.Err)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(filepath.Join(scenarioDir, "01-cheapest.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "cheapest refund solution", sc.Name)
	assert.Equal(t, ModeQuote, sc.Mode)
	require.Len(t, sc.Rules, 1)
	assert.Len(t, sc.Rules[0].Records, 3)

	itin, err := sc.ExchangeItinerary()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), itin.ApplicationDate)
	assert.Equal(t, model.NUC, itin.CalculationCurrency)

	fu, ok := itin.FareUsage("fc1")
	require.True(t, ok)
	assert.Equal(t, model.ATPCOVendor, fu.Fare.Vendor)
	assert.Equal(t, model.OWRTOneWayMayBeDoubled, fu.Fare.OWRT)
	assert.True(t, fu.Fare.NucAmount.Equal(decimal.NewFromInt(100)), "NUC amount defaults to a NUC fare amount")
	assert.True(t, fu.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, model.RepriceBasisTicketIssue, fu.RetrievalBasis)
	require.Len(t, fu.Segments, 1)
	assert.True(t, fu.Segments[0].Unflown)

	category, err := sc.CategoryModel()
	require.NoError(t, err)
	assert.Equal(t, model.CategoryRefund, category)
	assert.Equal(t, "ADT", sc.PassengerModel().Type)
}

func TestLoadScenario_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	_, err := LoadScenario(write("mode.yaml", "mode: shop\n"))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = LoadScenario(write("broken.yaml", "exchange: [\n"))
	assert.Error(t, err)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	// A bad file does not hide the good ones.
	write("ok.yaml", "name: fine\n")
	write("notes.txt", "ignored")
	scenarios, err := LoadDir(dir)
	assert.Error(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "fine", scenarios[0].Name)
}

func TestLoadLibrary(t *testing.T) {
	lib, err := LoadLibrary("testdata/library.yaml")
	require.NoError(t, err)

	rules, flat, err := lib.Entries()
	require.NoError(t, err)
	require.Len(t, rules, 3)
	require.Len(t, flat, 1)

	change := rules[0].Record
	assert.Equal(t, "ATP/LH/21/2445", rules[0].Rule.String())
	assert.Equal(t, model.CategoryChange, change.Category)
	assert.Equal(t, model.MustMoney("50", "EUR").Currency, change.Penalty1.Currency)
	assert.True(t, change.Penalty1.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, model.DepartureBefore, change.Departure)
	assert.Equal(t, [4]byte{'1', '2', ' ', ' '}, change.DiscountTags)
	assert.Equal(t, model.FeeScopeFareComponent, change.Scope, "scope defaults to fare component")
	require.NoError(t, change.Validate())

	refund := rules[1].Record
	assert.Equal(t, model.FormOfRefundVoucher, refund.FormOfRefund)
	assert.True(t, refund.TaxNonrefundable)
	assert.Equal(t, 10, refund.FareTypeTblItemNo)
	assert.Equal(t, 7, refund.CarrierApplItemNo)

	ba := rules[2]
	assert.Equal(t, "BA", ba.Rule.Carrier)
	assert.True(t, ba.Record.IsHundredPercent())
	assert.Equal(t, "CHD", ba.Record.PaxType)

	assert.Equal(t, model.WindowBefore, flat[0].Record.Window)
	assert.True(t, flat[0].Record.Change)

	rates, err := lib.RateTable()
	require.NoError(t, err)
	got, err := rates.Convert(decimal.NewFromInt(10), model.NUC, "EUR")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int32(0), rates.Decimals("JPY"))
}

func TestLibrary_Invalid(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		lib     Library
	}{
		{
			name:    "multi-character indicator",
			lib:     Library{Rules: []RuleDoc{{Carrier: "LH", Rule: "1", Records: []RecordDoc{{Category: "change", Scope: "FP"}}}}},
			wantErr: common.ErrCorruptRuleData,
		},
		{
			name:    "unknown category",
			lib:     Library{Rules: []RuleDoc{{Carrier: "LH", Rule: "1", Records: []RecordDoc{{Category: "19"}}}}},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "too many discount tags",
			lib:     Library{Rules: []RuleDoc{{Carrier: "LH", Rule: "1", Records: []RecordDoc{{Category: "change", DiscountTags: "12345"}}}}},
			wantErr: common.ErrCorruptRuleData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.lib.Entries()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := (&Library{Rates: []RateDoc{{Currency: "EUR", PerNUC: "lots"}}}).RateTable()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

// TestLibrary_StoreMatchesMemory imports a library into SQLite and checks
// that the store answers every query the way the in-memory supply does.
func TestLibrary_StoreMatchesMemory(t *testing.T) {
	ctx := context.Background()
	lib, err := LoadLibrary("testdata/library.yaml")
	require.NoError(t, err)

	db := testutil.SetupTestDB(t)
	stats, err := lib.Import(ctx, db.Storage)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Records: 3, FlatPenalties: 1, FareTypes: 1, Carriers: 1, Rates: 2}, stats)

	mem, err := NewMemorySupply(lib)
	require.NoError(t, err)

	supplies := map[string]service.RuleSupply{"sqlite": db.Storage, "memory": mem}
	lh := testutil.NewFareUsage("fc1", "100", model.NUC)
	ba := testutil.NewFareUsage("fc2", "100", model.NUC)
	ba.Fare.Carrier, ba.Fare.RuleNumber, ba.Fare.RuleTariff = "BA", "100", 8
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	for name, supply := range supplies {
		t.Run(name, func(t *testing.T) {
			changes, err := supply.EligibleRecords(ctx, lh, model.CategoryChange, "ADT")
			require.NoError(t, err)
			require.Len(t, changes, 1)
			assert.Equal(t, 100, changes[0].ItemNo)

			refunds, err := supply.EligibleRecords(ctx, lh, model.CategoryRefund, "ADT")
			require.NoError(t, err)
			require.Len(t, refunds, 1)
			assert.True(t, refunds[0].Percent.Equal(decimal.NewFromInt(25)))

			adult, err := supply.EligibleRecords(ctx, ba, model.CategoryChange, "ADT")
			require.NoError(t, err)
			assert.Empty(t, adult, "child-only record is not offered to adults")
			child, err := supply.EligibleRecords(ctx, ba, model.CategoryChange, "CHD")
			require.NoError(t, err)
			assert.Len(t, child, 1)

			types, err := supply.FareTypeTable(ctx, model.ATPCOVendor, 10, mar)
			require.NoError(t, err)
			require.Len(t, types, 2)
			assert.Equal(t, model.FareTypeForbidden, types[1].Appl)
			types, err = supply.FareTypeTable(ctx, model.ATPCOVendor, 10, jul)
			require.NoError(t, err)
			assert.Len(t, types, 1)

			carriers, err := supply.CarrierApplications(ctx, model.ATPCOVendor, 7, mar)
			require.NoError(t, err)
			assert.Equal(t, []string{"LH", "LX"}, carriers)

			flat, err := supply.FlatPenalties(ctx, lh)
			require.NoError(t, err)
			require.Len(t, flat, 1)
			assert.True(t, flat[0].Penalty1.Amount.Equal(decimal.NewFromInt(40)))
			assert.True(t, flat[0].AppliesTo(model.CategoryRefund, model.WindowBefore))
		})
	}

	rates, err := db.Storage.LoadRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rates.Currencies(), "NUC plus the two imported rates")
}

func TestRunner_WithStore(t *testing.T) {
	ctx := context.Background()
	sc, err := LoadScenario(filepath.Join(scenarioDir, "01-cheapest.yaml"))
	require.NoError(t, err)

	db := testutil.SetupTestDB(t)
	_, err = sc.Import(ctx, db.Storage)
	require.NoError(t, err)
	rates, err := db.Storage.LoadRates(ctx)
	require.NoError(t, err)

	runner := NewRunner(config.DefaultEngineConfig())
	runner.Supply = db.Storage
	runner.Converter = rates
	sink := &testutil.RecordingSink{}
	runner.Sink = sink

	out, err := runner.Quote(ctx, sc)
	require.NoError(t, err)
	assert.True(t, out.Charged.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2, out.WinnerNumber)
	assert.NotEmpty(t, sink.OfKind(model.DiagPermutation))
}

func TestRunner_Estimate(t *testing.T) {
	sc, err := LoadScenario(filepath.Join(scenarioDir, "05-estimate.yaml"))
	require.NoError(t, err)

	resp, err := NewRunner(config.DefaultEngineConfig()).Estimate(context.Background(), sc)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "30.00 NUC", DescribeFee(resp.Change.Before))
	assert.Equal(t, "25.00 NUC", DescribeFee(resp.Change.After))
}

func TestScenario_Mapping(t *testing.T) {
	repriced := &ItineraryDoc{PricingUnits: []PricingUnitDoc{{
		ID: "pu1",
		FareUsages: []FareUsageDoc{
			{ID: "r1", Amount: "60 NUC"},
			{ID: "r2", Amount: "40 NUC"},
		},
	}}}
	sc := &Scenario{Name: "split", Repriced: repriced, Mapping: map[string][]string{"fc1": {"r1", "r2"}}}

	itin, err := sc.RepricedItinerary()
	require.NoError(t, err)
	mapping, err := sc.ResolveMapping(itin)
	require.NoError(t, err)
	require.Len(t, mapping["fc1"], 2)
	assert.Equal(t, "r2", mapping["fc1"][1].ID)

	sc.Mapping = map[string][]string{"fc1": {"r9"}}
	_, err = sc.ResolveMapping(itin)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = sc.ResolveMapping(nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	sc.Mapping = nil
	mapping, err = sc.ResolveMapping(itin)
	require.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestScenario_WaivedRecords(t *testing.T) {
	sc := &Scenario{Waived: []string{"100/1", "SITA/200/3"}}
	waived, err := sc.WaivedRecords()
	require.NoError(t, err)
	assert.True(t, waived[model.RecordKey{Vendor: model.ATPCOVendor, ItemNo: 100, SeqNo: 1}])
	assert.True(t, waived[model.RecordKey{Vendor: "SITA", ItemNo: 200, SeqNo: 3}])

	for _, bad := range []string{"100", "x/1", "ATP/1/y", "a/b/c/d"} {
		sc.Waived = []string{bad}
		_, err := sc.WaivedRecords()
		assert.ErrorIs(t, err, common.ErrInvalidConfig, bad)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    model.Category
		wantErr bool
	}{
		{in: "change", want: model.CategoryChange},
		{in: "Refund", want: model.CategoryRefund},
		{in: "31", want: model.CategoryChange},
		{in: "33", want: model.CategoryRefund},
		{in: "16", want: model.CategoryFlatPenalty},
		{in: "19", wantErr: true},
		{in: "exchange", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpectation_Outcome(t *testing.T) {
	out := &engine.Outcome{
		Charged:       model.MustMoney("20", model.NUC),
		WinnerNumber:  2,
		Valid:         3,
		FormOfRefund:  model.FormOfRefundVoucher,
		TaxRefundable: true,
		Rejected:      map[string]int{"RULE": 1},
	}
	yes := true
	no := false

	tests := []struct {
		expect *Expectation
		name   string
		fails  int
	}{
		{name: "no expectation", expect: nil},
		{name: "all match", expect: &Expectation{Charged: "20.00 NUC", Winner: 2, Valid: 3, FormOfRefund: "voucher", TaxRefundable: &yes, Rejected: map[string]int{"RULE": 1}}},
		{name: "bare amount uses the charged currency", expect: &Expectation{Charged: "20"}},
		{name: "wrong amount", expect: &Expectation{Charged: "25 NUC"}, fails: 1},
		{name: "wrong currency", expect: &Expectation{Charged: "20 PLN"}, fails: 1},
		{name: "wrong winner and tax", expect: &Expectation{Winner: 1, TaxRefundable: &no}, fails: 2},
		{name: "missing rejection", expect: &Expectation{Rejected: map[string]int{"FARE BREAKS": 2}}, fails: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.expect.checkOutcome(out), tt.fails)
		})
	}
}

func TestExpectation_Error(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), common.ErrNoValidSolution)

	tests := []struct {
		err    error
		expect *Expectation
		name   string
		fails  int
	}{
		{name: "success expected", expect: nil},
		{name: "unexpected error", expect: nil, err: wrapped, fails: 1},
		{name: "named sentinel", expect: &Expectation{Error: "no-valid-solution"}, err: wrapped},
		{name: "other sentinel", expect: &Expectation{Error: "missing-fare"}, err: wrapped, fails: 1},
		{name: "free text", expect: &Expectation{Error: "context"}, err: wrapped},
		{name: "error expected", expect: &Expectation{Error: "no-valid-solution"}, fails: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.expect.checkError(tt.err), tt.fails)
		})
	}
}

func TestExpectation_Estimate(t *testing.T) {
	amount := model.MustMoney("30", model.NUC)
	resp := &estimator.Response{
		Change: estimator.WindowFees{
			Before: estimator.Fee{Amount: &amount},
			After:  estimator.Fee{NonRefundable: true},
		},
		Refund: estimator.WindowFees{
			Before: estimator.Fee{MissingData: []string{"fc1"}},
			After:  estimator.Fee{NonRefundable: true, MissingData: []string{"fc1"}},
		},
	}

	pass := &Expectation{
		Change: &WindowExpect{Before: "30 NUC", After: FeeNonRefundable},
		Refund: &WindowExpect{Before: FeeMissing, After: FeeNonRefundable},
	}
	assert.Empty(t, pass.checkEstimate(resp))

	fail := &Expectation{
		Change: &WindowExpect{Before: "non-refundable", After: "10 NUC"},
		Refund: &WindowExpect{Before: "5 NUC"},
	}
	assert.Len(t, fail.checkEstimate(resp), 3)

	assert.Equal(t, FeeMissing, DescribeFee(resp.Refund.Before))
	assert.Equal(t, FeeNonRefundable, DescribeFee(resp.Change.After))
}
