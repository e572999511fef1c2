package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
)

// Mapping relates each exchange fare component to the repriced fare usages
// covering it. A component may map to several usages.
type Mapping map[string][]*model.FareUsage

// Result explains a permutation verdict.
type Result struct {
	FareComponentID string
	Detail          string
	FailedCheck     Check
	Passed          bool
	// BasisMismatch is set when the reprice-basis check rejected the permutation.
	BasisMismatch bool
}

// Validator runs the rule-compatibility checks.
type Validator struct {
	supply service.RuleSupply
	sink   service.DiagnosticSink
	cache  *Cache
	asOf   time.Time
	// skipBasis disables the reprice-basis check for estimates, where the
	// fares are validated against themselves.
	skipBasis bool
}

// NewValidator creates a validator for one request. The sink may be nil; a nil
// cache disables caching.
func NewValidator(supply service.RuleSupply, sink service.DiagnosticSink, cache *Cache, asOf time.Time) *Validator {
	return &Validator{
		supply: supply,
		sink:   sink,
		cache:  cache,
		asOf:   asOf,
	}
}

// WithoutBasisCheck returns a validator that only runs the rule checks.
func (v *Validator) WithoutBasisCheck() *Validator {
	cp := *v
	cp.skipBasis = true
	return &cp
}

func (v *Validator) reporting() bool {
	return v.sink != nil && v.sink.Active()
}

// Validate checks a permutation against the repriced fares. The reprice-basis
// check runs first; then every match runs every check in CheckOrder for every
// related repriced usage, stopping at the first failure.
func (v *Validator) Validate(ctx context.Context, perm *model.Permutation, mapping Mapping) (Result, error) {
	res, err := v.validate(ctx, perm, mapping)
	if err != nil {
		return Result{}, err
	}

	if v.reporting() {
		detail := "PASSED"
		if !res.Passed {
			detail = fmt.Sprintf("FAILED %s: %s", res.FailedCheck, res.Detail)
			if res.BasisMismatch {
				detail = "FAILED REPRICE INDICATOR: " + res.Detail
			}
		}
		v.sink.Record(model.DiagnosticRecord{
			Kind:            model.DiagPermutation,
			Permutation:     perm.Number,
			FareComponentID: res.FareComponentID,
			Passed:          res.Passed,
			Detail:          detail,
		})
	}
	return res, nil
}

func (v *Validator) validate(ctx context.Context, perm *model.Permutation, mapping Mapping) (Result, error) {
	for _, m := range perm.Matches {
		if v.skipBasis {
			break
		}
		for _, fu := range mapping[m.FareComponentID] {
			if fu.RetrievalBasis != perm.RepriceBasis {
				return Result{
					FareComponentID: m.FareComponentID,
					BasisMismatch:   true,
					Detail: fmt.Sprintf("%s retrieved on %s basis, permutation requires %s",
						fu.ID, fu.RetrievalBasis, perm.RepriceBasis),
				}, nil
			}
		}
	}

	for _, m := range perm.Matches {
		related := mapping[m.FareComponentID]
		if len(related) == 0 {
			continue
		}
		for _, check := range CheckOrder {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			out, err := v.run(ctx, perm, m, check, related)
			if err != nil {
				return Result{}, err
			}
			if !out.Passed {
				slog.Debug("Permutation failed validation",
					"permutation", perm.Number,
					"fare_component", m.FareComponentID,
					"check", check.String(),
					"detail", out.Detail)
				return Result{
					FareComponentID: m.FareComponentID,
					FailedCheck:     check,
					Detail:          out.Detail,
				}, nil
			}
		}
	}

	return Result{Passed: true}, nil
}

func (v *Validator) run(ctx context.Context, perm *model.Permutation, m model.FareComponentMatch, check Check, related []*model.FareUsage) (Outcome, error) {
	useCache := v.cache != nil && !v.reporting()
	key := m.Record.Key()
	if useCache {
		if passed, ok := v.cache.Lookup(m.FareComponentID, key, check); ok {
			if passed {
				return pass(), nil
			}
			return fail("cached failure"), nil
		}
	}

	out := pass()
	for _, fu := range related {
		o, err := checkFuncs[check](ctx, input{
			supply:   v.supply,
			record:   m.Record,
			original: m.Fare,
			repriced: fu,
			asOf:     v.asOf,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("%s check for %s: %w", check, m.FareComponentID, err)
		}
		if !o.Passed {
			out = o
			break
		}
	}

	if useCache {
		v.cache.Store(m.FareComponentID, key, check, out.Passed)
	}
	if v.reporting() {
		v.sink.Record(model.DiagnosticRecord{
			Kind:            model.DiagCheck,
			Permutation:     perm.Number,
			FareComponentID: m.FareComponentID,
			Check:           check.String(),
			ItemNo:          m.Record.ItemNo,
			SeqNo:           m.Record.SeqNo,
			Passed:          out.Passed,
			Detail:          out.Detail,
		})
	}
	return out, nil
}
