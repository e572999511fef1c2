// Package permutation builds the candidate rule-record combinations for an itinerary.
package permutation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
)

// ErrEmptyComponentID indicates a component list without a fare component identity.
var ErrEmptyComponentID = errors.New("fare component id is required")

// LookupError reports a fare component whose priced fare could not be found.
// It always unwraps to common.ErrMissingFare.
type LookupError struct {
	FareComponentID string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("fare component %s: %v", e.FareComponentID, common.ErrMissingFare)
}

func (e *LookupError) Unwrap() error {
	return common.ErrMissingFare
}

// ComponentRecords is the eligible record list of one fare component.
type ComponentRecords struct {
	Fare            *model.FareUsage
	FareComponentID string
	Records         []*model.RuleRecord
}

// Options control the eligibility pre-filter.
type Options struct {
	// Window restricts records to a departure window. It is only consulted
	// when Estimate is set.
	Window   model.Window
	Estimate bool
}

// Generator produces the Cartesian product of per-component record lists.
type Generator struct {
	opts Options
}

// NewGenerator creates a generator.
func NewGenerator(opts Options) *Generator {
	if opts.Window == 0 {
		opts.Window = model.WindowBoth
	}
	return &Generator{opts: opts}
}

// Admissible applies the pre-filter to a single record.
func (g *Generator) Admissible(rec *model.RuleRecord) bool {
	if rec.WaiverTblItemNo != 0 {
		return false
	}
	if rec.OrigSchedFlight.AppliesAfterDeparture() {
		return false
	}
	if g.opts.Estimate && !rec.DepartureWindow().Intersects(g.opts.Window) {
		return false
	}
	return true
}

// Generate returns one permutation per selector of the product, numbered from 1
// in generation order. The first component varies slowest. If any component is
// left with no admissible record the result is empty.
func (g *Generator) Generate(components []ComponentRecords) ([]*model.Permutation, error) {
	if len(components) == 0 {
		return nil, nil
	}

	lists := make([][]*model.RuleRecord, len(components))
	for i, comp := range components {
		if comp.FareComponentID == "" {
			return nil, ErrEmptyComponentID
		}
		if comp.Fare == nil {
			return nil, &LookupError{FareComponentID: comp.FareComponentID}
		}
		lists[i] = g.admissibleSorted(comp.Records)
		if len(lists[i]) == 0 {
			slog.Debug("No admissible records for fare component",
				"fare_component", comp.FareComponentID,
				"candidates", len(comp.Records))
			return nil, nil
		}
	}

	total := 1
	for _, l := range lists {
		total *= len(l)
	}

	perms := make([]*model.Permutation, 0, total)
	idx := make([]int, len(lists))
	for n := 1; n <= total; n++ {
		matches := make([]model.FareComponentMatch, len(components))
		for i, comp := range components {
			matches[i] = model.FareComponentMatch{
				Record:          lists[i][idx[i]],
				Fare:            comp.Fare,
				FareComponentID: comp.FareComponentID,
			}
		}

		perm, err := newPermutation(n, matches)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)

		// Advance the odometer from the last position.
		for pos := len(idx) - 1; pos >= 0; pos-- {
			idx[pos]++
			if idx[pos] < len(lists[pos]) {
				break
			}
			idx[pos] = 0
		}
	}

	slog.Debug("Generated permutations", "components", len(components), "permutations", len(perms))
	return perms, nil
}

// Filter returns the components with only their admissible records, in the
// original order.
func (g *Generator) Filter(components []ComponentRecords) []ComponentRecords {
	out := make([]ComponentRecords, len(components))
	for i, c := range components {
		kept := make([]*model.RuleRecord, 0, len(c.Records))
		for _, rec := range c.Records {
			if rec != nil && g.Admissible(rec) {
				kept = append(kept, rec)
			}
		}
		out[i] = ComponentRecords{Fare: c.Fare, FareComponentID: c.FareComponentID, Records: kept}
	}
	return out
}

// WithoutRecords returns the fare components that have no records at all.
func WithoutRecords(components []ComponentRecords) []string {
	var missing []string
	for _, c := range components {
		if len(c.Records) == 0 {
			missing = append(missing, c.FareComponentID)
		}
	}
	return missing
}

func (g *Generator) admissibleSorted(records []*model.RuleRecord) []*model.RuleRecord {
	out := make([]*model.RuleRecord, 0, len(records))
	for _, rec := range records {
		if rec != nil && g.Admissible(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ItemNo != out[j].ItemNo {
			return out[i].ItemNo < out[j].ItemNo
		}
		return out[i].SeqNo < out[j].SeqNo
	})
	return out
}

func newPermutation(number int, matches []model.FareComponentMatch) (*model.Permutation, error) {
	perm := &model.Permutation{
		Number:  number,
		Matches: matches,
	}
	perm.RepriceBasis = DeriveRepriceBasis(matches)

	form, err := DeriveFormOfRefund(matches)
	if err != nil {
		return nil, err
	}
	perm.FormOfRefund = form

	for _, m := range matches {
		if m.Record.TaxNonrefundable {
			perm.TaxNonrefundable = true
			break
		}
	}
	return perm, nil
}

// DeriveRepriceBasis is ticket-issue based if any record says so, travel
// commencement based if all records say so, and ticket-issue based otherwise.
func DeriveRepriceBasis(matches []model.FareComponentMatch) model.RepriceBasis {
	allTravel := len(matches) > 0
	for _, m := range matches {
		switch m.Record.RepriceBasis {
		case model.RepriceBasisTicketIssue:
			return model.RepriceBasisTicketIssue
		case model.RepriceBasisTravelCommencement:
		default:
			allTravel = false
		}
	}
	if allTravel {
		return model.RepriceBasisTravelCommencement
	}
	return model.RepriceBasisTicketIssue
}

// DeriveFormOfRefund returns the most restrictive form of refund among the
// matched records. An unknown code is corrupt rule data.
func DeriveFormOfRefund(matches []model.FareComponentMatch) (model.FormOfRefund, error) {
	result := model.FormOfRefundUnspecified
	best := 0
	for _, m := range matches {
		rank, err := m.Record.FormOfRefund.Rank()
		if err != nil {
			return result, fmt.Errorf("%w: record %s: %v", common.ErrCorruptRuleData, m.Record.Key(), err)
		}
		if rank > best {
			best = rank
			result = m.Record.FormOfRefund
		}
	}
	return result, nil
}
