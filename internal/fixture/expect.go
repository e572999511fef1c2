package fixture

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/engine"
	"github.com/Veraticus/rexpenalty/internal/estimator"
	"github.com/Veraticus/rexpenalty/internal/model"
)

// Fee descriptions used in estimate expectations.
const (
	FeeNonRefundable = "non-refundable"
	FeeMissing       = "missing"
)

// expectedErrors names the failures a scenario can expect.
var expectedErrors = map[string]error{
	"no-valid-solution":   common.ErrNoValidSolution,
	"corrupt-rule-data":   common.ErrCorruptRuleData,
	"missing-fare":        common.ErrMissingFare,
	"currency-conversion": common.ErrCurrencyConversion,
}

// Expectation is the result a scenario should produce. Empty fields are not
// checked.
type Expectation struct {
	TaxRefundable *bool          `yaml:"tax_refundable"`
	Change        *WindowExpect  `yaml:"change"`
	Refund        *WindowExpect  `yaml:"refund"`
	Rejected      map[string]int `yaml:"rejected"`
	Charged       string         `yaml:"charged"`
	Error         string         `yaml:"error"`
	FormOfRefund  string         `yaml:"form_of_refund"`
	Winner        int            `yaml:"winner"`
	Valid         int            `yaml:"valid"`
}

// WindowExpect holds the expected fee of each departure window, written as
// an amount, "non-refundable" or "missing".
type WindowExpect struct {
	Before string `yaml:"before"`
	After  string `yaml:"after"`
}

// Verdict is the outcome of running a scenario against its expectation.
type Verdict struct {
	Err      error
	Outcome  *engine.Outcome
	Estimate *estimator.Response
	Scenario string
	Failures []string
}

// Passed reports whether the scenario met its expectation.
func (v Verdict) Passed() bool {
	return len(v.Failures) == 0
}

// checkError compares a run error with the expected failure.
func (e *Expectation) checkError(err error) []string {
	want := ""
	if e != nil {
		want = e.Error
	}
	switch {
	case err == nil && want == "":
		return nil
	case err == nil:
		return []string{fmt.Sprintf("expected error %s, got success", want)}
	case want == "":
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	sentinel, ok := expectedErrors[want]
	if !ok {
		if strings.Contains(err.Error(), want) {
			return nil
		}
		return []string{fmt.Sprintf("expected error containing %q, got %v", want, err)}
	}
	if !errors.Is(err, sentinel) {
		return []string{fmt.Sprintf("expected %s, got %v", want, err)}
	}
	return nil
}

func (e *Expectation) checkOutcome(out *engine.Outcome) []string {
	if e == nil {
		return nil
	}
	var failures []string

	if e.Charged != "" {
		want, err := model.ParseMoney(e.Charged, out.Charged.Currency)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("bad charged expectation: %v", err))
		case !sameMoney(want, out.Charged):
			failures = append(failures, fmt.Sprintf("charged: want %s, got %s", want, out.Charged))
		}
	}
	if e.Winner != 0 && e.Winner != out.WinnerNumber {
		failures = append(failures, fmt.Sprintf("winner: want #%d, got #%d", e.Winner, out.WinnerNumber))
	}
	if e.Valid != 0 && e.Valid != out.Valid {
		failures = append(failures, fmt.Sprintf("valid permutations: want %d, got %d", e.Valid, out.Valid))
	}
	if e.FormOfRefund != "" && e.FormOfRefund != out.FormOfRefund.String() {
		failures = append(failures, fmt.Sprintf("form of refund: want %s, got %s", e.FormOfRefund, out.FormOfRefund))
	}
	if e.TaxRefundable != nil && *e.TaxRefundable != out.TaxRefundable {
		failures = append(failures, fmt.Sprintf("tax refundable: want %t, got %t", *e.TaxRefundable, out.TaxRefundable))
	}

	checks := make([]string, 0, len(e.Rejected))
	for check := range e.Rejected {
		checks = append(checks, check)
	}
	sort.Strings(checks)
	for _, check := range checks {
		if got := out.Rejected[check]; got != e.Rejected[check] {
			failures = append(failures, fmt.Sprintf("rejected by %s: want %d, got %d", check, e.Rejected[check], got))
		}
	}
	return failures
}

func (e *Expectation) checkEstimate(resp *estimator.Response) []string {
	if e == nil {
		return nil
	}
	var failures []string
	failures = append(failures, e.Change.check("change", resp.Change)...)
	failures = append(failures, e.Refund.check("refund", resp.Refund)...)
	return failures
}

func (w *WindowExpect) check(label string, fees estimator.WindowFees) []string {
	if w == nil {
		return nil
	}
	var failures []string
	for _, c := range []struct {
		want   string
		window model.Window
	}{
		{w.Before, model.WindowBefore},
		{w.After, model.WindowAfter},
	} {
		if c.want == "" {
			continue
		}
		fee := fees.Get(c.window)
		if ok, err := feeMatches(c.want, fee); err != nil {
			failures = append(failures, fmt.Sprintf("%s %s: %v", label, c.window, err))
		} else if !ok {
			failures = append(failures, fmt.Sprintf("%s %s: want %s, got %s", label, c.window, c.want, DescribeFee(fee)))
		}
	}
	return failures
}

func feeMatches(want string, fee estimator.Fee) (bool, error) {
	switch want {
	case FeeNonRefundable:
		return fee.NonRefundable, nil
	case FeeMissing:
		return len(fee.MissingData) > 0, nil
	}
	if fee.NonRefundable || fee.Amount == nil {
		return false, nil
	}
	m, err := model.ParseMoney(want, fee.Amount.Currency)
	if err != nil {
		return false, err
	}
	return sameMoney(m, *fee.Amount), nil
}

// DescribeFee renders a fee the way expectations are written.
func DescribeFee(fee estimator.Fee) string {
	switch {
	case fee.NonRefundable:
		return FeeNonRefundable
	case fee.Amount == nil:
		return FeeMissing
	default:
		return fee.Amount.String()
	}
}

func sameMoney(a, b model.Money) bool {
	return a.Currency == b.Currency && a.Amount.Equal(b.Amount)
}
