package estimator

import (
	"context"
	"fmt"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/penalty"
)

// flat quotes the window from category 16 records when a fare component has
// no record of the requested category in that window. Each fare takes its
// highest flat fee. A fare without any flat record is reported as missing
// data. After departure a refund is lost when a pricing unit mixes fully and
// partially flown fares.
func (e *Estimator) flat(ctx context.Context, req Request, calc *penalty.Calculator, category model.Category, w model.Window) (Fee, error) {
	var missing []string
	nonRef := category == model.CategoryRefund && w == model.WindowAfter && mixedFlown(req.Itinerary)
	total := model.ZeroMoney(calc.Currency())

	for _, pu := range req.Itinerary.PricingUnits {
		for _, fu := range pu.FareUsages {
			records, err := e.supply.FlatPenalties(ctx, fu)
			if err != nil {
				return Fee{}, fmt.Errorf("flat penalties for %s: %w", fu.ID, err)
			}

			var (
				best  model.Fee
				found bool
			)
			for _, fr := range records {
				if !fr.AppliesTo(category, w) {
					continue
				}
				fee, err := calc.ComponentFee(pu, fu, fr.AsRuleRecord())
				if err != nil {
					return Fee{}, err
				}
				if found {
					less, err := calc.Less(best, fee)
					if err != nil {
						return Fee{}, err
					}
					if !less {
						continue
					}
				}
				best, found = fee, true
			}

			if !found {
				missing = append(missing, fu.ID)
				continue
			}
			if best.NonRefundable {
				nonRef = true
				continue
			}
			converted, err := calc.Convert(best.Amount)
			if err != nil {
				return Fee{}, err
			}
			total = model.NewMoney(total.Amount.Add(converted.Amount), total.Currency)
		}
	}

	if len(missing) > 0 || nonRef {
		return Fee{NonRefundable: true, MissingData: missing}, nil
	}
	return Fee{Amount: e.amount(total)}, nil
}

// mixedFlown reports whether any pricing unit holds both a fully flown and a
// partially flown fare.
func mixedFlown(itin *model.Itinerary) bool {
	for _, pu := range itin.PricingUnits {
		var fully, partially bool
		for _, fu := range pu.FareUsages {
			fully = fully || fu.FullyFlown()
			partially = partially || fu.PartiallyFlown()
		}
		if fully && partially {
			return true
		}
	}
	return false
}
