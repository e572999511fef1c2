package model

// FareComponentMatch pairs a rule record with the fare component it governs.
type FareComponentMatch struct {
	Record          *RuleRecord
	Fare            *FareUsage
	FareComponentID string
}

// ResultScope is the scope a pricing unit's penalty was assessed at.
type ResultScope int

// Result scopes.
const (
	ScopeFareComponent ResultScope = iota
	ScopePricingUnit
	ScopeMixed
)

func (s ResultScope) String() string {
	switch s {
	case ScopeFareComponent:
		return "FC"
	case ScopePricingUnit:
		return "PU"
	default:
		return "MX"
	}
}

// Fee is one penalty charge.
type Fee struct {
	Amount        Money
	Discounted    bool
	NonRefundable bool
	Highest       bool
}

// PenaltyResult is the penalty computed for one pricing unit.
type PenaltyResult struct {
	Fees []Fee
	// Scope is the scope determined from the unit's records.
	Scope ResultScope
	// Applied is the scope the charged fee came from. It differs from Scope only
	// for mixed-scope units.
	Applied ResultScope
}

// Permutation is one complete choice of rule record per fare component.
type Permutation struct {
	PenaltyFees      map[string]*PenaltyResult
	TotalPenalty     Money
	MinimumPenalty   Money
	Matches          []FareComponentMatch
	Number           int
	RepriceBasis     RepriceBasis
	FormOfRefund     FormOfRefund
	TaxNonrefundable bool
	Waived           bool
	calculated       bool
}

// Match returns the match for a fare component.
func (p *Permutation) Match(fareComponentID string) (FareComponentMatch, bool) {
	for _, m := range p.Matches {
		if m.FareComponentID == fareComponentID {
			return m, true
		}
	}
	return FareComponentMatch{}, false
}

// Calculated reports whether penalties have already been computed.
func (p *Permutation) Calculated() bool {
	return p.calculated || len(p.PenaltyFees) > 0
}

// MarkCalculated records that penalty calculation ran, even when it produced no
// pricing-unit results.
func (p *Permutation) MarkCalculated() {
	p.calculated = true
}

// HighestFee returns the fee flagged as the highest, if any.
func (p *Permutation) HighestFee() (Fee, bool) {
	for _, res := range p.PenaltyFees {
		for _, fee := range res.Fees {
			if fee.Highest {
				return fee, true
			}
		}
	}
	return Fee{}, false
}

// HasNonRefundableFee reports whether any computed fee forfeits the whole base.
func (p *Permutation) HasNonRefundableFee() bool {
	for _, res := range p.PenaltyFees {
		for _, fee := range res.Fees {
			if fee.NonRefundable {
				return true
			}
		}
	}
	return false
}

// NonRefundableMatches counts matches whose record forfeits the whole fare.
func (p *Permutation) NonRefundableMatches() int {
	n := 0
	for _, m := range p.Matches {
		if m.Record.IsHundredPercent() {
			n++
		}
	}
	return n
}

// DiagnosticKind classifies diagnostic records.
type DiagnosticKind string

// Diagnostic kinds.
const (
	DiagPermutation DiagnosticKind = "permutation"
	DiagCheck       DiagnosticKind = "check"
	DiagFee         DiagnosticKind = "fee"
	DiagTotal       DiagnosticKind = "total"
	DiagNoRecord    DiagnosticKind = "no-record"
)

// DiagnosticRecord is the structured data a diagnostics sink receives.
type DiagnosticRecord struct {
	Amount          *Money         `json:"amount,omitempty"`
	Kind            DiagnosticKind `json:"kind"`
	FareComponentID string         `json:"fare_component,omitempty"`
	PricingUnitID   string         `json:"pricing_unit,omitempty"`
	Check           string         `json:"check,omitempty"`
	Detail          string         `json:"detail,omitempty"`
	Scope           string         `json:"scope,omitempty"`
	Permutation     int            `json:"permutation"`
	ItemNo          int            `json:"item_no,omitempty"`
	SeqNo           int            `json:"seq_no,omitempty"`
	Passed          bool           `json:"passed"`
}
