package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ATPCOVendor is the primary fare vendor. Rule tariffs of other vendors are never validated.
const ATPCOVendor = "ATP"

// RuleWildcard marks the trailing characters of a masked rule number.
const RuleWildcard = '*'

// CancellationHundredPercent marks a record whose penalty is the whole fare.
const CancellationHundredPercent byte = 'X'

// FareBreakChangeAllowed permits fare-break changes on fully flown components.
const FareBreakChangeAllowed byte = 'X'

// FareAmountStrictlyHigher requires the repriced fare to be strictly higher.
const FareAmountStrictlyHigher byte = 'X'

// BookingCodeRequired demands that the repriced fare pass the same-booking-code test.
const BookingCodeRequired byte = 'X'

// RecordKey identifies a rule record.
type RecordKey struct {
	Vendor string
	ItemNo int
	SeqNo  int
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.Vendor, k.ItemNo, k.SeqNo)
}

// RuleRecord is one tariff-rule variant governing the change or refund penalty of
// a fare component. Records are shared across permutations and requests and must
// never be modified after loading.
type RuleRecord struct {
	Penalty1          Money
	Penalty2          Money
	MinAmount         Money
	Percent           decimal.Decimal
	Vendor            string
	RuleNumber        string
	FareClass         string
	PaxType           string
	ItemNo            int
	SeqNo             int
	RuleTariff        int
	FareTypeTblItemNo int
	WaiverTblItemNo   int
	CarrierApplItemNo int
	Category          Category
	DiscountTags      [4]byte
	Scope             FeeScope
	CalcOption        CalcOption
	CancellationInd   byte
	HighLow           HighLow
	FormOfRefund      FormOfRefund
	FareBreakInd      byte
	RepriceBasis      RepriceBasis
	RuleTariffInd     TariffRestriction
	FareClassMode     FareClassMode
	SameFare          SameFare
	NormalSpecial     NormalSpecial
	OWRT              OWRT
	FareAmountInd     byte
	BookingCodeInd    byte
	Flown             FlownApplicability
	Departure         DepartureInd
	OrigSchedFlight   OrigSchedFlight
	TaxNonrefundable  bool
}

// Key returns the record identity.
func (r *RuleRecord) Key() RecordKey {
	return RecordKey{Vendor: r.Vendor, ItemNo: r.ItemNo, SeqNo: r.SeqNo}
}

// IsHundredPercent reports whether the whole fare is forfeited.
func (r *RuleRecord) IsHundredPercent() bool {
	return r.CancellationInd == CancellationHundredPercent
}

// DepartureWindow returns the departure windows the record applies to. Change
// records use their departure indicator; refund records their flown applicability.
func (r *RuleRecord) DepartureWindow() Window {
	if r.Category == CategoryChange {
		switch r.Departure {
		case DepartureBefore:
			return WindowBefore
		case DepartureAfter:
			return WindowAfter
		default:
			return WindowBoth
		}
	}
	switch r.Flown {
	case FlownUnflown:
		return WindowBefore
	case FlownPartially, FlownFully:
		return WindowAfter
	default:
		return WindowBoth
	}
}

// Validate rejects records carrying unknown enumerated values. Such data is corrupt
// and must not be guessed past.
func (r *RuleRecord) Validate() error {
	if !r.Scope.Valid() {
		return fmt.Errorf("record %s: unknown scope %q", r.Key(), byte(r.Scope))
	}
	if !r.CalcOption.Valid() {
		return fmt.Errorf("record %s: unknown calc option %q", r.Key(), byte(r.CalcOption))
	}
	if !r.HighLow.Valid() {
		return fmt.Errorf("record %s: unknown high/low indicator %q", r.Key(), byte(r.HighLow))
	}
	if _, err := r.FormOfRefund.Rank(); err != nil {
		return fmt.Errorf("record %s: %w", r.Key(), err)
	}
	if !r.RepriceBasis.Valid() {
		return fmt.Errorf("record %s: unknown reprice basis %q", r.Key(), byte(r.RepriceBasis))
	}
	if r.RuleTariffInd != TariffNoRestriction && r.RuleTariffInd != TariffExact {
		return fmt.Errorf("record %s: unknown rule tariff indicator %q", r.Key(), byte(r.RuleTariffInd))
	}
	if !r.FareClassMode.Valid() {
		return fmt.Errorf("record %s: unknown fare class mode %q", r.Key(), byte(r.FareClassMode))
	}
	if !r.NormalSpecial.Valid() {
		return fmt.Errorf("record %s: unknown normal/special indicator %q", r.Key(), byte(r.NormalSpecial))
	}
	if !r.OWRT.Valid() {
		return fmt.Errorf("record %s: unknown one-way/round-trip indicator %q", r.Key(), byte(r.OWRT))
	}
	if !r.Flown.Valid() {
		return fmt.Errorf("record %s: unknown flown indicator %q", r.Key(), byte(r.Flown))
	}
	if !r.Departure.Valid() {
		return fmt.Errorf("record %s: unknown departure indicator %q", r.Key(), byte(r.Departure))
	}
	if !r.OrigSchedFlight.Valid() {
		return fmt.Errorf("record %s: unknown originally scheduled flight qualifier %q", r.Key(), byte(r.OrigSchedFlight))
	}
	if r.Percent.IsNegative() || r.Penalty1.Amount.IsNegative() || r.Penalty2.Amount.IsNegative() {
		return fmt.Errorf("record %s: negative penalty", r.Key())
	}
	return nil
}

// FeeMethod is the fee computation method selected for a record.
type FeeMethod int

// Fee methods in priority order.
const (
	MethodHundredPercent FeeMethod = iota
	MethodHighLow
	MethodSpecified
	MethodPercentage
	MethodZero
)

func (m FeeMethod) String() string {
	switch m {
	case MethodHundredPercent:
		return "HNDR"
	case MethodHighLow:
		return "HILO"
	case MethodSpecified:
		return "SPEC"
	case MethodPercentage:
		return "PERC"
	default:
		return "ZERO"
	}
}

// Method selects how the record's fee is computed.
func (r *RuleRecord) Method() FeeMethod {
	switch {
	case r.IsHundredPercent():
		return MethodHundredPercent
	case r.Penalty1.IsPresent() && r.Percent.IsPositive():
		return MethodHighLow
	case r.Penalty1.IsPresent():
		return MethodSpecified
	case r.Percent.IsPositive():
		return MethodPercentage
	default:
		return MethodZero
	}
}
