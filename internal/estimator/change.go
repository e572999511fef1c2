package estimator

import (
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/penalty"
	"github.com/Veraticus/rexpenalty/internal/permutation"
)

// changeWindow prices every permutation the window's generator admits and
// quotes the highest charge. Any permutation forfeiting a whole fare makes the
// window non-changeable.
func (e *Estimator) changeWindow(req Request, calc *penalty.Calculator, gen *permutation.Generator, components []permutation.ComponentRecords) (Fee, error) {

	if req.DomesticOverride {
		var err error
		if components, err = overrideDomestic(req.Itinerary, calc, gen, components); err != nil {
			return Fee{}, err
		}
	}

	perms, err := gen.Generate(components)
	if err != nil {
		return Fee{}, err
	}
	if len(perms) == 0 {
		return Fee{NonRefundable: true}, nil
	}

	var highest *model.Money
	for _, perm := range perms {
		if err := calc.Calculate(perm); err != nil {
			return Fee{}, err
		}
		if perm.HasNonRefundableFee() {
			return Fee{NonRefundable: true}, nil
		}
		charged, err := penalty.Charged(perm, e.conv)
		if err != nil {
			return Fee{}, err
		}
		if highest == nil || charged.Amount.GreaterThan(highest.Amount) {
			highest = &charged
		}
	}
	return Fee{Amount: e.amount(*highest)}, nil
}

// overrideDomestic gives every fare of a domestic pricing unit the single
// international record that yields its highest fee. Itineraries without both
// kinds of pricing unit are returned unchanged.
func overrideDomestic(itin *model.Itinerary, calc *penalty.Calculator, gen *permutation.Generator, components []permutation.ComponentRecords) ([]permutation.ComponentRecords, error) {
	var international []*model.RuleRecord
	for _, c := range components {
		pu, ok := itin.PricingUnitOf(c.FareComponentID)
		if !ok || pu.Domestic() {
			continue
		}
		for _, rec := range c.Records {
			if gen.Admissible(rec) {
				international = append(international, rec)
			}
		}
	}
	if len(international) == 0 {
		return components, nil
	}

	out := make([]permutation.ComponentRecords, len(components))
	copy(out, components)
	for i, c := range out {
		pu, ok := itin.PricingUnitOf(c.FareComponentID)
		if !ok || !pu.Domestic() {
			continue
		}

		var (
			best    *model.RuleRecord
			bestFee model.Fee
		)
		for _, rec := range international {
			fee, err := calc.ComponentFee(pu, c.Fare, rec)
			if err != nil {
				return nil, err
			}
			if best != nil {
				less, err := calc.Less(bestFee, fee)
				if err != nil {
					return nil, err
				}
				if !less {
					continue
				}
			}
			best, bestFee = rec, fee
		}
		out[i].Records = []*model.RuleRecord{best}
	}
	return out, nil
}
