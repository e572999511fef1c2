// Package validation decides whether a permutation's rule records allow the
// repriced fares.
package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
)

// Check identifies one rule-compatibility check.
type Check int

// Checks in execution order. The order is part of the contract: it decides
// which check short-circuits first and the order of diagnostic output.
const (
	CheckFareBreaks Check = iota
	CheckRuleTariff
	CheckRuleNumber
	CheckFareClass
	CheckFareType
	CheckSameFare
	CheckNormalSpecial
	CheckOWRT
	CheckFareAmount
	CheckBookingCode
)

// CheckOrder lists every check in the order they run.
var CheckOrder = []Check{
	CheckFareBreaks,
	CheckRuleTariff,
	CheckRuleNumber,
	CheckFareClass,
	CheckFareType,
	CheckSameFare,
	CheckNormalSpecial,
	CheckOWRT,
	CheckFareAmount,
	CheckBookingCode,
}

func (c Check) String() string {
	switch c {
	case CheckFareBreaks:
		return "FARE BREAKS"
	case CheckRuleTariff:
		return "RULE TARIFF"
	case CheckRuleNumber:
		return "RULE"
	case CheckFareClass:
		return "FARE CLASS/FAMILY"
	case CheckFareType:
		return "FARE TYPE TABLE"
	case CheckSameFare:
		return "SAME FARE"
	case CheckNormalSpecial:
		return "NORMAL/SPECIAL"
	case CheckOWRT:
		return "OW/RT"
	case CheckFareAmount:
		return "FARE AMOUNT"
	case CheckBookingCode:
		return "SAME RBD/CABIN"
	default:
		return fmt.Sprintf("CHECK(%d)", int(c))
	}
}

// Outcome is the verdict of one check for one repriced fare usage.
type Outcome struct {
	Detail string
	Passed bool
}

func pass() Outcome { return Outcome{Passed: true} }

func fail(detail string) Outcome { return Outcome{Detail: detail} }

func verdict(ok bool, detail string) Outcome {
	if ok {
		return pass()
	}
	return fail(detail)
}

// input carries everything one check may look at.
type input struct {
	supply   service.RuleSupply
	record   *model.RuleRecord
	original *model.FareUsage
	repriced *model.FareUsage
	asOf     time.Time
}

type checkFunc func(ctx context.Context, in input) (Outcome, error)

var checkFuncs = map[Check]checkFunc{
	CheckFareBreaks:    checkFareBreaks,
	CheckRuleTariff:    checkRuleTariff,
	CheckRuleNumber:    checkRuleNumber,
	CheckFareClass:     checkFareClass,
	CheckFareType:      checkFareType,
	CheckSameFare:      checkSameFare,
	CheckNormalSpecial: checkNormalSpecial,
	CheckOWRT:          checkOWRT,
	CheckFareAmount:    checkFareAmount,
	CheckBookingCode:   checkBookingCode,
}

// Unflown components always pass. A fully flown component may not move either
// fare break unless the record allows it; a partially flown one may only move
// its destination.
func checkFareBreaks(_ context.Context, in input) (Outcome, error) {
	orig, repr := in.original, in.repriced
	originChanged := orig.BoardPoint != repr.BoardPoint
	destinationChanged := orig.OffPoint != repr.OffPoint

	switch {
	case orig.FullyFlown():
		if in.record.FareBreakInd == model.FareBreakChangeAllowed {
			return pass(), nil
		}
		if originChanged || destinationChanged {
			return fail(fmt.Sprintf("fare break changed %s-%s to %s-%s",
				orig.BoardPoint, orig.OffPoint, repr.BoardPoint, repr.OffPoint)), nil
		}
	case orig.PartiallyFlown():
		if originChanged {
			return fail(fmt.Sprintf("origin changed %s to %s", orig.BoardPoint, repr.BoardPoint)), nil
		}
	}
	return pass(), nil
}

func checkRuleTariff(_ context.Context, in input) (Outcome, error) {
	orig, repr := in.original.Fare, in.repriced.Fare
	if orig.Vendor != model.ATPCOVendor {
		return fail(fmt.Sprintf("vendor %s is not %s", orig.Vendor, model.ATPCOVendor)), nil
	}

	if in.record.RuleTariff == 0 {
		if in.record.RuleTariffInd == model.TariffExact {
			return verdict(orig.TariffCategory == repr.TariffCategory, "tariff category changed"), nil
		}
		ok := !(orig.TariffCategory == model.TariffPublic && repr.TariffCategory == model.TariffPrivate)
		return verdict(ok, "public to private tariff"), nil
	}

	ok := in.record.RuleTariff == repr.RuleTariff ||
		orig.RuleTariff == repr.RuleTariff ||
		orig.FareClassAppTariff == repr.FareClassAppTariff
	return verdict(ok, fmt.Sprintf("tariff %d does not match %d", in.record.RuleTariff, repr.RuleTariff)), nil
}

func checkRuleNumber(_ context.Context, in input) (Outcome, error) {
	want := in.record.RuleNumber
	if want == "" {
		return pass(), nil
	}
	got := in.repriced.Fare.RuleNumber
	if len(want) == 4 && want[3] == model.RuleWildcard {
		ok := len(got) >= 2 && got[:2] == want[:2]
		return verdict(ok, fmt.Sprintf("rule %s does not match mask %s", got, want)), nil
	}
	return verdict(got == want, fmt.Sprintf("rule %s does not match %s", got, want)), nil
}

func checkFareClass(_ context.Context, in input) (Outcome, error) {
	want := in.record.FareClass
	if want == "" {
		return pass(), nil
	}
	fare := in.repriced.Fare

	switch in.record.FareClassMode {
	case model.FareClassModeType:
		return verdict(fare.FareType == want, fmt.Sprintf("fare type %s is not %s", fare.FareType, want)), nil
	case model.FareClassModeSecondChar:
		ok := len(fare.FareClass) >= 2 && fare.FareClass[1] == want[0]
		return verdict(ok, fmt.Sprintf("fare class %s second character is not %c", fare.FareClass, want[0])), nil
	default:
		if family, ok := strings.CutSuffix(want, "-"); ok {
			return verdict(strings.HasPrefix(fare.FareClass, family),
				fmt.Sprintf("fare class %s not in family %s", fare.FareClass, want)), nil
		}
		return verdict(fare.FareClass == want, fmt.Sprintf("fare class %s is not %s", fare.FareClass, want)), nil
	}
}

// The table entry matching the fare type decides. When nothing matches, a
// table of forbidden types permits the fare and a table of permitted types
// rejects it; the first entry says which kind of table it is.
func checkFareType(ctx context.Context, in input) (Outcome, error) {
	itemNo := in.record.FareTypeTblItemNo
	if itemNo == 0 {
		return pass(), nil
	}

	table, err := in.supply.FareTypeTable(ctx, in.record.Vendor, itemNo, in.asOf)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to get fare type table %d: %w", itemNo, err)
	}
	if len(table) == 0 {
		return fail(fmt.Sprintf("fare type table %d is empty", itemNo)), nil
	}

	fareType := in.repriced.Fare.FareType
	for _, entry := range table {
		if entry.FareType == fareType {
			return verdict(entry.Appl == model.FareTypePermitted,
				fmt.Sprintf("fare type %s forbidden by table %d", fareType, itemNo)), nil
		}
	}
	return verdict(table[0].Appl == model.FareTypeForbidden,
		fmt.Sprintf("fare type %s not permitted by table %d", fareType, itemNo)), nil
}

func checkSameFare(_ context.Context, in input) (Outcome, error) {
	orig, repr := in.original.Fare, in.repriced.Fare
	switch in.record.SameFare {
	case model.SameFareNone:
		return pass(), nil
	case model.SameFareType:
		return verdict(orig.FareType == repr.FareType, "fare type changed"), nil
	case model.SameFareClass:
		return verdict(orig.FareClass == repr.FareClass, "fare class changed"), nil
	default:
		return fail(fmt.Sprintf("invalid same fare indicator %q", byte(in.record.SameFare))), nil
	}
}

func checkNormalSpecial(_ context.Context, in input) (Outcome, error) {
	switch in.record.NormalSpecial {
	case model.NormalSpecialNormal:
		return verdict(in.repriced.Fare.Normal, "special fare where normal required"), nil
	case model.NormalSpecialSpecial:
		return verdict(!in.repriced.Fare.Normal, "normal fare where special required"), nil
	default:
		return pass(), nil
	}
}

func checkOWRT(_ context.Context, in input) (Outcome, error) {
	tag := in.repriced.Fare.OWRT
	switch in.record.OWRT {
	case model.OWRTOneWayMayBeDoubled:
		return verdict(tag.IsOneWay(), "one way fare required"), nil
	case model.OWRTRoundTripMayNotBeHalved:
		return verdict(tag == model.OWRTRoundTripMayNotBeHalved, "round trip fare required"), nil
	default:
		return pass(), nil
	}
}

// The amount comparison only applies to flown components whose fare breaks
// did not move.
func checkFareAmount(_ context.Context, in input) (Outcome, error) {
	orig, repr := in.original, in.repriced
	if orig.LastSegmentUnflown() || repr.LastSegmentUnflown() {
		return pass(), nil
	}
	if !sameSegmentBounds(orig.Segments, repr.Segments) {
		return pass(), nil
	}

	oldAmt, newAmt := orig.Fare.NucAmount, repr.Fare.NucAmount
	if in.record.FareAmountInd == model.FareAmountStrictlyHigher {
		ok := newAmt.GreaterThan(oldAmt.Add(model.AmountEpsilon))
		return verdict(ok, fmt.Sprintf("amount %s not higher than %s", newAmt, oldAmt)), nil
	}
	ok := newAmt.GreaterThanOrEqual(oldAmt.Sub(model.AmountEpsilon))
	return verdict(ok, fmt.Sprintf("amount %s lower than %s", newAmt, oldAmt)), nil
}

func sameSegmentBounds(a, b []model.Segment) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return a[0].Order == b[0].Order && a[len(a)-1].Order == b[len(b)-1].Order
}

func checkBookingCode(_ context.Context, in input) (Outcome, error) {
	if in.record.BookingCodeInd == model.BookingCodeRequired && in.repriced.Fare.FailsSameBookingCode {
		return fail("booking code or cabin changed"), nil
	}
	return pass(), nil
}
