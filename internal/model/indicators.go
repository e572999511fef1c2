package model

import "fmt"

// Blank is the unset value of every single-byte indicator.
const Blank byte = ' '

// Category identifies the tariff rule category a record belongs to.
type Category int

// Rule categories handled by the engine.
const (
	CategoryFlatPenalty Category = 16
	CategoryChange      Category = 31
	CategoryRefund      Category = 33
)

func (c Category) String() string {
	switch c {
	case CategoryFlatPenalty:
		return "flat-penalty"
	case CategoryChange:
		return "change"
	case CategoryRefund:
		return "refund"
	default:
		return fmt.Sprintf("category-%d", int(c))
	}
}

// FeeScope says whether a penalty is assessed per fare component or per pricing unit.
type FeeScope byte

// Record scope indicators.
const (
	FeeScopeFareComponent FeeScope = 'F'
	FeeScopePricingUnit   FeeScope = 'P'
)

// Valid reports whether the scope is a known value.
func (s FeeScope) Valid() bool {
	return s == FeeScopeFareComponent || s == FeeScopePricingUnit
}

// CalcOption is the record's mixed-scope calculation option.
type CalcOption byte

// Calculation options.
const (
	CalcOptionNone CalcOption = CalcOption(Blank)
	CalcOptionA    CalcOption = 'A'
	CalcOptionB    CalcOption = 'B'
)

// Valid reports whether the option is a known value.
func (o CalcOption) Valid() bool {
	return o == CalcOptionNone || o == CalcOptionA || o == CalcOptionB
}

// HighLow selects max or min when both a specified and a percentage fee exist.
type HighLow byte

// High/low tie-break values. Anything other than HighLowHigh yields the lower fee.
const (
	HighLowNone HighLow = HighLow(Blank)
	HighLowHigh HighLow = 'H'
	HighLowLow  HighLow = 'L'
)

// Valid reports whether the value is a known tie-break byte.
func (h HighLow) Valid() bool {
	return h == HighLowNone || h == HighLowHigh || h == HighLowLow
}

// FormOfRefund restricts how a refund may be paid out.
type FormOfRefund byte

// Forms of refund.
const (
	FormOfRefundUnspecified FormOfRefund = FormOfRefund(Blank)
	FormOfRefundAny         FormOfRefund = 'A'
	FormOfRefundOriginal    FormOfRefund = 'O'
	FormOfRefundMCO         FormOfRefund = 'M'
	FormOfRefundVoucher     FormOfRefund = 'V'
	FormOfRefundScript      FormOfRefund = 'S'
)

// Rank orders forms of refund by restrictiveness. It returns an error for an unknown code.
func (f FormOfRefund) Rank() (int, error) {
	switch f {
	case FormOfRefundUnspecified, FormOfRefundAny:
		return 0, nil
	case FormOfRefundOriginal:
		return 1, nil
	case FormOfRefundMCO:
		return 2, nil
	case FormOfRefundVoucher:
		return 3, nil
	case FormOfRefundScript:
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown form of refund %q", byte(f))
	}
}

func (f FormOfRefund) String() string {
	switch f {
	case FormOfRefundUnspecified, FormOfRefundAny:
		return "any form of payment"
	case FormOfRefundOriginal:
		return "original form of payment"
	case FormOfRefundMCO:
		return "MCO"
	case FormOfRefundVoucher:
		return "voucher"
	case FormOfRefundScript:
		return "script"
	default:
		return fmt.Sprintf("unknown(%q)", byte(f))
	}
}

// RepriceBasis says which date fares are retrieved as of when repricing.
type RepriceBasis byte

// Reprice bases.
const (
	RepriceBasisUnspecified        RepriceBasis = RepriceBasis(Blank)
	RepriceBasisTicketIssue        RepriceBasis = 'H'
	RepriceBasisTravelCommencement RepriceBasis = 'T'
)

// Valid reports whether the basis is a known value.
func (b RepriceBasis) Valid() bool {
	return b == RepriceBasisUnspecified || b == RepriceBasisTicketIssue || b == RepriceBasisTravelCommencement
}

func (b RepriceBasis) String() string {
	switch b {
	case RepriceBasisTicketIssue:
		return "ticket-issue"
	case RepriceBasisTravelCommencement:
		return "travel-commencement"
	default:
		return "unspecified"
	}
}

// TariffRestriction is the rule-tariff restriction mode.
type TariffRestriction byte

// Tariff restriction modes.
const (
	TariffNoRestriction TariffRestriction = TariffRestriction(Blank)
	TariffExact         TariffRestriction = 'X'
)

// TariffCategory distinguishes public and private tariffs.
type TariffCategory int

// Tariff categories.
const (
	TariffPublic TariffCategory = iota
	TariffPrivate
)

// FareClassMode selects what the fare-class check compares.
type FareClassMode byte

// Fare-class comparison modes.
const (
	FareClassModeClass      FareClassMode = FareClassMode(Blank)
	FareClassModeType       FareClassMode = 'T'
	FareClassModeSecondChar FareClassMode = 'S'
)

// Valid reports whether the mode is a known value.
func (m FareClassMode) Valid() bool {
	return m == FareClassModeClass || m == FareClassModeType || m == FareClassModeSecondChar
}

// SameFare is the same-fare requirement.
type SameFare byte

// Same-fare requirements.
const (
	SameFareNone  SameFare = SameFare(Blank)
	SameFareType  SameFare = 'T'
	SameFareClass SameFare = 'C'
)

// NormalSpecial is the normal-or-special fare requirement.
type NormalSpecial byte

// Normal/special requirements.
const (
	NormalSpecialAny     NormalSpecial = NormalSpecial(Blank)
	NormalSpecialNormal  NormalSpecial = 'N'
	NormalSpecialSpecial NormalSpecial = 'S'
)

// Valid reports whether the requirement is a known value.
func (n NormalSpecial) Valid() bool {
	return n == NormalSpecialAny || n == NormalSpecialNormal || n == NormalSpecialSpecial
}

// OWRT is the one-way/round-trip indicator on records and fares.
type OWRT byte

// One-way/round-trip values.
const (
	OWRTAny                     OWRT = OWRT(Blank)
	OWRTOneWayMayBeDoubled      OWRT = '1'
	OWRTRoundTripMayNotBeHalved OWRT = '2'
	OWRTOneWayMayNotBeDoubled   OWRT = '3'
)

// Valid reports whether the value is a known indicator.
func (o OWRT) Valid() bool {
	switch o {
	case OWRTAny, OWRTOneWayMayBeDoubled, OWRTRoundTripMayNotBeHalved, OWRTOneWayMayNotBeDoubled:
		return true
	}
	return false
}

// IsOneWay reports whether the fare tag is a one-way tag.
func (o OWRT) IsOneWay() bool {
	return o == OWRTOneWayMayBeDoubled || o == OWRTOneWayMayNotBeDoubled
}

// FlownApplicability says in which flown state a refund record applies.
type FlownApplicability byte

// Flown applicability values.
const (
	FlownAny       FlownApplicability = FlownApplicability(Blank)
	FlownUnflown   FlownApplicability = 'U'
	FlownPartially FlownApplicability = 'P'
	FlownFully     FlownApplicability = 'F'
)

// Valid reports whether the value is known.
func (f FlownApplicability) Valid() bool {
	switch f {
	case FlownAny, FlownUnflown, FlownPartially, FlownFully:
		return true
	}
	return false
}

// DepartureInd is the before/after departure applicability of a change record.
type DepartureInd byte

// Departure indicators.
const (
	DepartureAny    DepartureInd = DepartureInd(Blank)
	DepartureBefore DepartureInd = 'B'
	DepartureAfter  DepartureInd = 'A'
)

// Valid reports whether the indicator is known.
func (d DepartureInd) Valid() bool {
	return d == DepartureAny || d == DepartureBefore || d == DepartureAfter
}

// OrigSchedFlight is the originally-scheduled-flight timing qualifier.
type OrigSchedFlight byte

// Originally scheduled flight qualifiers.
const (
	OrigSchedFlightNone          OrigSchedFlight = OrigSchedFlight(Blank)
	OrigSchedFlightAnytimeBefore OrigSchedFlight = 'B'
	OrigSchedFlightAnytimeAfter  OrigSchedFlight = 'A'
	OrigSchedFlightDayBefore     OrigSchedFlight = 'E'
	OrigSchedFlightDayAfter      OrigSchedFlight = 'D'
)

// Valid reports whether the qualifier is known.
func (o OrigSchedFlight) Valid() bool {
	switch o {
	case OrigSchedFlightNone, OrigSchedFlightAnytimeBefore, OrigSchedFlightAnytimeAfter,
		OrigSchedFlightDayBefore, OrigSchedFlightDayAfter:
		return true
	}
	return false
}

// AppliesAfterDeparture reports whether the qualifier only applies after the original flight.
func (o OrigSchedFlight) AppliesAfterDeparture() bool {
	return o == OrigSchedFlightAnytimeAfter || o == OrigSchedFlightDayAfter
}

// Window is a bitmask of departure windows.
type Window int

// Departure windows.
const (
	WindowBefore Window = 1 << iota
	WindowAfter
	WindowBoth = WindowBefore | WindowAfter
)

// Intersects reports whether two windows overlap.
func (w Window) Intersects(other Window) bool {
	return w&other != 0
}

func (w Window) String() string {
	switch w {
	case WindowBefore:
		return "before"
	case WindowAfter:
		return "after"
	case WindowBoth:
		return "both"
	default:
		return "none"
	}
}

// ParseWindow parses "before", "after" or "both".
func ParseWindow(s string) (Window, error) {
	switch s {
	case "before":
		return WindowBefore, nil
	case "after":
		return WindowAfter, nil
	case "both", "":
		return WindowBoth, nil
	default:
		return 0, fmt.Errorf("unknown departure window %q", s)
	}
}
