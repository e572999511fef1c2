package permutation

import (
	"context"
	"fmt"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
)

// Collect asks the rule supply for every fare component's eligible records of a
// category. Records carrying unknown enumerated values are rejected as corrupt.
func Collect(ctx context.Context, supply service.RuleSupply, itin *model.Itinerary, category model.Category, pax model.Passenger) ([]ComponentRecords, error) {
	fares := itin.FareComponents()
	out := make([]ComponentRecords, 0, len(fares))

	for _, fu := range fares {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := supply.EligibleRecords(ctx, fu, category, pax.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s records for %s: %w", category, fu.ID, err)
		}
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrCorruptRuleData, err)
			}
		}

		out = append(out, ComponentRecords{
			FareComponentID: fu.ID,
			Fare:            fu,
			Records:         records,
		})
	}

	return out, nil
}

// CountProduct returns the number of permutations the lists would produce
// before pre-filtering.
func CountProduct(components []ComponentRecords) int {
	if len(components) == 0 {
		return 0
	}
	n := 1
	for _, c := range components {
		n *= len(c.Records)
	}
	return n
}
