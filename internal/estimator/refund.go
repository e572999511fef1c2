package estimator

import (
	"context"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/penalty"
	"github.com/Veraticus/rexpenalty/internal/permutation"
	"github.com/Veraticus/rexpenalty/internal/validation"
)

// refundWindow validates the permutations of the window against the fares
// themselves and quotes the best refundable one: the fewest forfeited fares,
// then the highest charge.
func (e *Estimator) refundWindow(ctx context.Context, req Request, calc *penalty.Calculator, gen *permutation.Generator, components []permutation.ComponentRecords, w model.Window) (Fee, error) {
	perms, err := gen.Generate(components)
	if err != nil {
		return Fee{}, err
	}

	validator := validation.NewValidator(e.supply, e.sink, validation.NewCache(), req.Itinerary.ApplicationDate).WithoutBasisCheck()
	mapping := selfMapping(req.Itinerary)

	var (
		best        *model.Permutation
		bestCharged model.Money
	)
	for _, perm := range perms {
		res, err := validator.Validate(ctx, perm, mapping)
		if err != nil {
			return Fee{}, err
		}
		if !res.Passed {
			continue
		}
		if err := calc.Calculate(perm); err != nil {
			return Fee{}, err
		}
		if nonRefundable(req.Itinerary, perm, w) {
			continue
		}

		charged, err := penalty.Charged(perm, e.conv)
		if err != nil {
			return Fee{}, err
		}
		if best == nil || better(perm, charged, best, bestCharged) {
			best, bestCharged = perm, charged
		}
	}

	if best == nil {
		return Fee{NonRefundable: true}, nil
	}
	return Fee{Amount: e.amount(bestCharged)}, nil
}

func better(perm *model.Permutation, charged model.Money, best *model.Permutation, bestCharged model.Money) bool {
	n, bestN := perm.NonRefundableMatches(), best.NonRefundableMatches()
	if n != bestN {
		return n < bestN
	}
	return charged.Amount.GreaterThan(bestCharged.Amount)
}

// nonRefundable reports whether a calculated permutation refunds nothing. A
// permutation is lost when every fee forfeits its fare or, after departure,
// when a pricing unit mixes records for fully and partially flown fares.
func nonRefundable(itin *model.Itinerary, perm *model.Permutation, w model.Window) bool {
	fees, forfeited := 0, 0
	for _, res := range perm.PenaltyFees {
		for _, fee := range res.Fees {
			fees++
			if fee.NonRefundable {
				forfeited++
			}
		}
	}
	if fees > 0 && fees == forfeited {
		return true
	}

	if w != model.WindowAfter {
		return false
	}
	for _, pu := range itin.PricingUnits {
		var fully, partially bool
		for _, fu := range pu.FareUsages {
			m, ok := perm.Match(fu.ID)
			if !ok {
				continue
			}
			switch m.Record.Flown {
			case model.FlownFully:
				fully = true
			case model.FlownPartially:
				partially = true
			}
		}
		if fully && partially {
			return true
		}
	}
	return false
}

// selfMapping relates every fare component to its own fare usage.
func selfMapping(itin *model.Itinerary) validation.Mapping {
	mapping := make(validation.Mapping)
	for _, fu := range itin.FareComponents() {
		mapping[fu.ID] = []*model.FareUsage{fu}
	}
	return mapping
}
