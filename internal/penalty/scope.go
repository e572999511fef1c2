package penalty

import "github.com/Veraticus/rexpenalty/internal/model"

// DetermineScope picks the scope a pricing unit's penalty is assessed at from
// the records matched to its fare components.
//
// Records sharing one scope indicator use it unless one of them asks for calc
// option B. Records with differing indicators are assessed per pricing unit
// when any of them carries calc option A, and in mixed scope otherwise.
func DetermineScope(records []*model.RuleRecord) model.ResultScope {
	if len(records) == 0 {
		return model.ScopeFareComponent
	}

	uniform := true
	optionA, optionB := false, false
	for _, rec := range records {
		if rec.Scope != records[0].Scope {
			uniform = false
		}
		switch rec.CalcOption {
		case model.CalcOptionA:
			optionA = true
		case model.CalcOptionB:
			optionB = true
		}
	}

	switch {
	case uniform && !optionB:
		if records[0].Scope == model.FeeScopePricingUnit {
			return model.ScopePricingUnit
		}
		return model.ScopeFareComponent
	case !uniform && optionA:
		return model.ScopePricingUnit
	default:
		return model.ScopeMixed
	}
}
