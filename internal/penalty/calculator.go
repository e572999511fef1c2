package penalty

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
	"github.com/shopspring/decimal"
)

// SubjectCurrencyMode selects how the currency preferred for specified
// amounts is chosen.
type SubjectCurrencyMode int

// Subject currency modes.
const (
	// SubjectCurrencyDefault uses each pricing unit's international origin.
	SubjectCurrencyDefault SubjectCurrencyMode = iota
	// SubjectCurrencyOrigin fixes one origin currency for the whole itinerary.
	SubjectCurrencyOrigin
)

// ParseSubjectCurrencyMode parses "default" or "origin".
func ParseSubjectCurrencyMode(s string) (SubjectCurrencyMode, error) {
	switch s {
	case "", "default":
		return SubjectCurrencyDefault, nil
	case "origin":
		return SubjectCurrencyOrigin, nil
	default:
		return 0, fmt.Errorf("%w: unknown subject currency mode %q", common.ErrInvalidConfig, s)
	}
}

// Options configures a Calculator.
type Options struct {
	Converter service.CurrencyConverter
	Discounts DiscountApplier
	Adjuster  *Adjuster
	Sink      service.DiagnosticSink
	// Waived holds the records whose penalty the carrier waived.
	Waived map[model.RecordKey]bool
	// Currency is the settlement currency. Empty means the itinerary's
	// calculation currency.
	Currency    model.CurrencyCode
	SubjectMode SubjectCurrencyMode
}

// Calculator prices permutations of one itinerary.
type Calculator struct {
	itin     *model.Itinerary
	opts     Options
	currency model.CurrencyCode
	origin   model.CurrencyCode
}

// NewCalculator creates a calculator. A nil adjuster summarises per fare
// component.
func NewCalculator(itin *model.Itinerary, opts Options) *Calculator {
	if opts.Adjuster == nil {
		opts.Adjuster = NewAdjuster(AdjustFareComponent)
	}
	currency := opts.Currency
	if currency == "" {
		currency = itin.CalculationCurrency
	}
	c := &Calculator{itin: itin, opts: opts, currency: currency}
	if opts.SubjectMode == SubjectCurrencyOrigin {
		c.origin = subjectCurrency(itin.FareComponents())
	}
	return c
}

// Currency returns the settlement currency.
func (c *Calculator) Currency() model.CurrencyCode {
	return c.currency
}

// item is one fare component of a pricing unit with its record and its
// subject amount in the settlement currency.
type item struct {
	fu   *model.FareUsage
	rec  *model.RuleRecord
	base model.Money
}

// Calculate computes the penalty of every pricing unit, the permutation total,
// the minimum floor, the highest fee and the waived flag. A permutation that
// was already calculated is left untouched.
func (c *Calculator) Calculate(perm *model.Permutation) error {
	if perm.Calculated() {
		return nil
	}

	results := make(map[string]*model.PenaltyResult, len(c.itin.PricingUnits))
	for _, pu := range c.itin.PricingUnits {
		if len(pu.FareUsages) == 0 {
			continue
		}
		res, err := c.calculateUnit(perm, pu)
		if err != nil {
			return fmt.Errorf("pricing unit %s: %w", pu.ID, err)
		}
		results[pu.ID] = res
		c.report(perm, pu.ID, res)
	}

	total, err := c.total(results)
	if err != nil {
		return err
	}
	minimum, err := c.minimum(perm, total)
	if err != nil {
		return err
	}

	perm.PenaltyFees = results
	perm.TotalPenalty = total
	perm.MinimumPenalty = minimum
	perm.Waived = c.waived(perm)
	perm.MarkCalculated()

	slog.Debug("Calculated permutation penalty",
		"permutation", perm.Number,
		"total", total.String(),
		"minimum", minimum.String(),
		"waived", perm.Waived)

	if c.reporting() {
		c.opts.Sink.Record(model.DiagnosticRecord{
			Kind:        model.DiagTotal,
			Permutation: perm.Number,
			Amount:      &total,
			Passed:      true,
			Detail:      fmt.Sprintf("MINIMUM %s", minimum),
		})
	}
	return nil
}

func (c *Calculator) reporting() bool {
	return c.opts.Sink != nil && c.opts.Sink.Active()
}

func (c *Calculator) report(perm *model.Permutation, puID string, res *model.PenaltyResult) {
	if !c.reporting() {
		return
	}
	for i := range res.Fees {
		fee := res.Fees[i]
		detail := ""
		if fee.NonRefundable {
			detail = "NON-REFUNDABLE"
		}
		if fee.Discounted {
			detail += " DISCOUNTED"
		}
		c.opts.Sink.Record(model.DiagnosticRecord{
			Kind:          model.DiagFee,
			Permutation:   perm.Number,
			PricingUnitID: puID,
			Scope:         res.Applied.String(),
			Amount:        &fee.Amount,
			Passed:        true,
			Detail:        detail,
		})
	}
}

func (c *Calculator) calculateUnit(perm *model.Permutation, pu *model.PricingUnit) (*model.PenaltyResult, error) {
	amounts := c.opts.Adjuster.Amounts(pu)

	items := make([]item, 0, len(pu.FareUsages))
	records := make([]*model.RuleRecord, 0, len(pu.FareUsages))
	unitAmount := model.ZeroMoney(c.currency)
	for _, fu := range pu.FareUsages {
		m, ok := perm.Match(fu.ID)
		if !ok || m.Record == nil {
			return nil, fmt.Errorf("%w: no record for fare component %s", common.ErrMissingFare, fu.ID)
		}
		converted, err := c.convert(model.NewMoney(amounts[fu.ID], fu.FareAmount.Currency))
		if err != nil {
			return nil, err
		}
		items = append(items, item{fu: fu, rec: m.Record, base: converted})
		records = append(records, m.Record)
		unitAmount.Amount = unitAmount.Amount.Add(converted.Amount)
	}

	subject := c.origin
	if c.opts.SubjectMode == SubjectCurrencyDefault {
		subject = subjectCurrency(pu.FareUsages)
	}

	scope := DetermineScope(records)
	res := &model.PenaltyResult{Scope: scope, Applied: scope}
	switch scope {
	case model.ScopeFareComponent:
		fees, err := c.inFareComponentScope(items, subject)
		if err != nil {
			return nil, err
		}
		res.Fees = fees
	case model.ScopePricingUnit:
		fee, err := c.inPricingUnitScope(items, unitAmount, subject)
		if err != nil {
			return nil, err
		}
		res.Fees = []model.Fee{fee}
	default:
		fee, applied, err := c.inMixedScope(items, unitAmount, subject)
		if err != nil {
			return nil, err
		}
		res.Fees = []model.Fee{fee}
		res.Applied = applied
	}
	return res, nil
}

func (c *Calculator) inFareComponentScope(items []item, subject model.CurrencyCode) ([]model.Fee, error) {
	fees := make([]model.Fee, 0, len(items))
	for _, it := range items {
		fee, err := c.fee(it, it.base, subject)
		if err != nil {
			return nil, err
		}
		fees = append(fees, fee)
	}
	return fees, nil
}

// inPricingUnitScope computes every record against the whole unit amount and
// keeps the highest fee.
func (c *Calculator) inPricingUnitScope(items []item, unitAmount model.Money, subject model.CurrencyCode) (model.Fee, error) {
	var best model.Fee
	for i, it := range items {
		fee, err := c.fee(it, unitAmount, subject)
		if err != nil {
			return model.Fee{}, err
		}
		if i == 0 {
			best = fee
			continue
		}
		if best, err = c.max(best, fee); err != nil {
			return model.Fee{}, err
		}
	}
	return best, nil
}

// inMixedScope evaluates the unit-scoped records as one candidate, followed
// by each component-scoped record, and keeps the first highest candidate.
func (c *Calculator) inMixedScope(items []item, unitAmount model.Money, subject model.CurrencyCode) (model.Fee, model.ResultScope, error) {
	var unitItems, componentItems []item
	for _, it := range items {
		if it.rec.Scope == model.FeeScopePricingUnit {
			unitItems = append(unitItems, it)
		} else {
			componentItems = append(componentItems, it)
		}
	}

	var (
		best    model.Fee
		applied model.ResultScope
		found   bool
	)
	if len(unitItems) > 0 {
		fee, err := c.inPricingUnitScope(unitItems, unitAmount, subject)
		if err != nil {
			return model.Fee{}, 0, err
		}
		best, applied, found = fee, model.ScopePricingUnit, true
	}

	for _, it := range componentItems {
		fee, err := c.fee(it, it.base, subject)
		if err != nil {
			return model.Fee{}, 0, err
		}
		if !found {
			best, applied, found = fee, model.ScopeFareComponent, true
			continue
		}
		less, err := c.less(best, fee)
		if err != nil {
			return model.Fee{}, 0, err
		}
		if less {
			best, applied = fee, model.ScopeFareComponent
		}
	}
	return best, applied, nil
}

// fee computes one record's fee against a subject amount.
func (c *Calculator) fee(it item, base model.Money, subject model.CurrencyCode) (model.Fee, error) {
	rec := it.rec
	switch rec.Method() {
	case model.MethodHundredPercent:
		return model.Fee{Amount: base, NonRefundable: true}, nil
	case model.MethodSpecified:
		return c.discounted(it, specifiedAmount(rec, subject)), nil
	case model.MethodPercentage:
		return c.discounted(it, base.Percent(rec.Percent)), nil
	case model.MethodHighLow:
		specified := c.discounted(it, specifiedAmount(rec, subject))
		percentage := c.discounted(it, base.Percent(rec.Percent))
		if rec.HighLow == model.HighLowHigh {
			return c.max(specified, percentage)
		}
		return c.min(specified, percentage)
	default:
		return model.Fee{Amount: model.ZeroMoney(base.Currency)}, nil
	}
}

func (c *Calculator) discounted(it item, amount model.Money) model.Fee {
	reduced, ok := ApplyDiscount(c.opts.Discounts, amount.Amount, it.rec.DiscountTags, it.fu.Fare.Discount)
	return model.Fee{
		Amount:     model.NewMoney(reduced, amount.Currency),
		Discounted: ok,
	}
}

// specifiedAmount prefers the penalty in the subject currency, then the first
// one present.
func specifiedAmount(rec *model.RuleRecord, subject model.CurrencyCode) model.Money {
	switch {
	case rec.Penalty1.IsPresent() && rec.Penalty1.Currency == subject:
		return rec.Penalty1
	case rec.Penalty2.IsPresent() && rec.Penalty2.Currency == subject:
		return rec.Penalty2
	case rec.Penalty1.IsPresent():
		return rec.Penalty1
	default:
		return rec.Penalty2
	}
}

// subjectCurrency is the origin currency of the first international fare
// usage, or the fare currency of the first one.
func subjectCurrency(fares []*model.FareUsage) model.CurrencyCode {
	for _, fu := range fares {
		if fu.International && fu.OriginCurrency != "" {
			return fu.OriginCurrency
		}
	}
	if len(fares) == 0 {
		return ""
	}
	return fares[0].FareAmount.Currency
}

// ComponentFee computes one record's fee for a single fare usage of a pricing
// unit, as fare-component scope would.
func (c *Calculator) ComponentFee(pu *model.PricingUnit, fu *model.FareUsage, rec *model.RuleRecord) (model.Fee, error) {
	amounts := c.opts.Adjuster.Amounts(pu)
	base, err := c.convert(model.NewMoney(amounts[fu.ID], fu.FareAmount.Currency))
	if err != nil {
		return model.Fee{}, err
	}
	subject := c.origin
	if c.opts.SubjectMode == SubjectCurrencyDefault {
		subject = subjectCurrency(pu.FareUsages)
	}
	return c.fee(item{fu: fu, rec: rec, base: base}, base, subject)
}

// Less reports whether fee a is lower than fee b in the settlement currency.
func (c *Calculator) Less(a, b model.Fee) (bool, error) {
	return c.less(a, b)
}

// less orders fees by converted amount; on equal amounts a refundable fee
// sorts before a non-refundable one.
func (c *Calculator) less(a, b model.Fee) (bool, error) {
	x, err := c.convert(a.Amount)
	if err != nil {
		return false, err
	}
	y, err := c.convert(b.Amount)
	if err != nil {
		return false, err
	}
	if x.Amount.Equal(y.Amount) {
		return !a.NonRefundable && b.NonRefundable, nil
	}
	return x.Amount.LessThan(y.Amount), nil
}

// max keeps a unless it is strictly lower than b.
func (c *Calculator) max(a, b model.Fee) (model.Fee, error) {
	less, err := c.less(a, b)
	if err != nil {
		return model.Fee{}, err
	}
	if less {
		return b, nil
	}
	return a, nil
}

// min keeps a unless b is strictly lower.
func (c *Calculator) min(a, b model.Fee) (model.Fee, error) {
	less, err := c.less(b, a)
	if err != nil {
		return model.Fee{}, err
	}
	if less {
		return b, nil
	}
	return a, nil
}

// Convert expresses an amount in the settlement currency.
func (c *Calculator) Convert(m model.Money) (model.Money, error) {
	return c.convert(m)
}

func (c *Calculator) convert(m model.Money) (model.Money, error) {
	if m.Currency == c.currency || m.Currency == "" {
		return model.NewMoney(m.Amount, c.currency), nil
	}
	if c.opts.Converter == nil {
		return model.Money{}, fmt.Errorf("%w: no converter for %s to %s", common.ErrCurrencyConversion, m.Currency, c.currency)
	}
	amt, err := c.opts.Converter.Convert(m.Amount, m.Currency, c.currency)
	if err != nil {
		return model.Money{}, fmt.Errorf("converting %s: %w", m, err)
	}
	return model.NewMoney(amt, c.currency), nil
}

// total sums the fees in the settlement currency and flags the first highest
// converted fee across all pricing units.
func (c *Calculator) total(results map[string]*model.PenaltyResult) (model.Money, error) {
	total := model.ZeroMoney(c.currency)
	var (
		target  *model.Fee
		highest decimal.Decimal
	)
	for _, pu := range c.itin.PricingUnits {
		res, ok := results[pu.ID]
		if !ok {
			continue
		}
		for i := range res.Fees {
			converted, err := c.convert(res.Fees[i].Amount)
			if err != nil {
				return model.Money{}, err
			}
			total.Amount = total.Amount.Add(converted.Amount)
			if target == nil || converted.Amount.GreaterThan(highest) {
				target = &res.Fees[i]
				highest = converted.Amount
			}
		}
	}
	if target != nil {
		target.Highest = true
	}
	return total, nil
}

// minimum returns the largest record minimum exceeding the total, in the
// record's currency, or zero in the settlement currency.
func (c *Calculator) minimum(perm *model.Permutation, total model.Money) (model.Money, error) {
	best := model.ZeroMoney(c.currency)
	bestConverted := decimal.Zero
	for _, m := range perm.Matches {
		floor := m.Record.MinAmount
		if !floor.IsPresent() {
			continue
		}
		converted, err := c.convert(floor)
		if err != nil {
			return model.Money{}, err
		}
		if converted.Amount.GreaterThan(total.Amount) && converted.Amount.GreaterThan(bestConverted) {
			best = floor
			bestConverted = converted.Amount
		}
	}
	return best, nil
}

func (c *Calculator) waived(perm *model.Permutation) bool {
	for _, m := range perm.Matches {
		if c.opts.Waived[m.Record.Key()] {
			return true
		}
	}
	return false
}

// Charged returns the amount actually charged for a calculated permutation:
// the minimum floor when it exceeds the total, otherwise the total.
func Charged(perm *model.Permutation, conv service.CurrencyConverter) (model.Money, error) {
	total := perm.TotalPenalty
	floor := perm.MinimumPenalty
	if !floor.IsPresent() || floor.IsZero() {
		return total, nil
	}
	amount := floor.Amount
	if floor.Currency != total.Currency {
		if conv == nil {
			return model.Money{}, fmt.Errorf("%w: no converter for %s to %s", common.ErrCurrencyConversion, floor.Currency, total.Currency)
		}
		converted, err := conv.Convert(floor.Amount, floor.Currency, total.Currency)
		if err != nil {
			return model.Money{}, fmt.Errorf("converting minimum %s: %w", floor, err)
		}
		amount = converted
	}
	if amount.GreaterThan(total.Amount) {
		return model.NewMoney(amount, total.Currency), nil
	}
	return total, nil
}
