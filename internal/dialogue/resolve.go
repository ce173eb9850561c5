package dialogue

import (
	"strings"

	"sds/internal/domain"
)

const dontCare = "dontcare"

// ResolveContext rewrites user items whose meaning depends on the previous
// system act, e.g. a bare affirm() after confirm(food=chinese). Each item is
// rewritten independently; the first matching rule wins and anything else
// passes through unchanged.
func ResolveContext(userAct, lastSystemAct domain.DialogueAct) domain.DialogueAct {
	confirm, hasConfirm := lastSystemAct.First(domain.ActConfirm)
	request, hasRequest := lastSystemAct.First(domain.ActRequest)

	out := make(domain.DialogueAct, 0, len(userAct))
	for _, dai := range userAct {
		switch {
		case hasConfirm && dai.Type == domain.ActAffirm:
			dai = domain.Item(domain.ActInform, confirm.Slot, confirm.Value)
		case hasConfirm && dai.Type == domain.ActNegate:
			dai = domain.Item(domain.ActDeny, confirm.Slot, confirm.Value)
		case hasRequest && dai.Type == domain.ActInform && dai.Slot == "" && dai.Value == dontCare:
			dai = domain.Item(domain.ActInform, request.Slot, dai.Value)
		case hasRequest && isBooleanSlot(request.Slot) && dai.Type == domain.ActAffirm:
			dai = domain.Item(domain.ActInform, request.Slot, "true")
		case hasRequest && isBooleanSlot(request.Slot) && dai.Type == domain.ActNegate:
			dai = domain.Item(domain.ActInform, request.Slot, "false")
		}
		out = append(out, dai)
	}
	return out
}

// isBooleanSlot matches yes/no slots such as has_parking or pets_allowed.
func isBooleanSlot(slot string) bool {
	return strings.HasPrefix(slot, "has_") || strings.HasSuffix(slot, "_allowed")
}
