// Package policy maps a dialogue state to the next system act using a fixed,
// ordered list of hand-written rules.
package policy

import (
	"sds/internal/dialogue"
	"sds/internal/domain"
)

// Rule is one (predicate, action) pair. Rules are evaluated top to bottom
// and the first whose predicate holds produces the act.
type Rule struct {
	Name  string
	Match func(p *Policy, st *dialogue.State) bool
	Act   func(p *Policy, st *dialogue.State) domain.DialogueAct
}

// Policy keeps the history of generated acts for one session.
type Policy struct {
	rules   []Rule
	acts    []domain.DialogueAct
	lastAct domain.DialogueAct
}

func New() *Policy {
	return &Policy{rules: Rules()}
}

// Decide returns the next system act and records it.
func (p *Policy) Decide(st *dialogue.State) domain.DialogueAct {
	var act domain.DialogueAct
	for _, r := range p.rules {
		if r.Match(p, st) {
			act = r.Act(p, st)
			break
		}
	}
	if act == nil {
		act = domain.DialogueAct{}
	}
	p.acts = append(p.acts, act)
	p.lastAct = act
	return act.Clone()
}

// LastAct returns the most recently generated act, or an empty act.
func (p *Policy) LastAct() domain.DialogueAct {
	return p.lastAct.Clone()
}

// GeneratedActs returns every act generated so far, oldest first.
func (p *Policy) GeneratedActs() []domain.DialogueAct {
	out := make([]domain.DialogueAct, len(p.acts))
	for i, a := range p.acts {
		out[i] = a.Clone()
	}
	return out
}

// Rules returns the rule list in priority order.
func Rules() []Rule {
	return []Rule{
		{
			Name:  "greeting",
			Match: func(p *Policy, _ *dialogue.State) bool { return len(p.acts) == 0 },
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				st.Clear(dialogue.KeyLastDiscourseAct)
				return domain.Act(domain.Item(domain.ActThankYou), domain.Item(domain.ActHello))
			},
		},
		{
			Name:  "bye",
			Match: ldaIs(domain.ActBye),
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				st.Clear(dialogue.KeyLastDiscourseAct)
				return domain.Act(domain.Item(domain.ActBye))
			},
		},
		{
			Name:  "restart",
			Match: ldaIs(domain.ActRestart),
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				st.Restart()
				st.Clear(dialogue.KeyLastDiscourseAct)
				return domain.Act(domain.Item(domain.ActRestart), domain.Item(domain.ActHello))
			},
		},
		{
			Name:  "repeat",
			Match: ldaIs(domain.ActRepeat),
			Act: func(p *Policy, st *dialogue.State) domain.DialogueAct {
				st.Clear(dialogue.KeyLastDiscourseAct)
				return p.lastAct.Clone()
			},
		},
		{
			Name:  "reqalts",
			Match: ldaIs(domain.ActReqAlts),
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				st.Clear(dialogue.KeyLastDiscourseAct)
				return domain.Act(domain.Item(domain.ActDeny, "alternatives", "true"))
			},
		},
		{
			Name: "requested_slots",
			Match: func(_ *Policy, st *dialogue.State) bool {
				return len(st.RequestedSlots()) > 0
			},
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				var act domain.DialogueAct
				for _, slot := range st.RequestedSlots() {
					act = append(act, domain.Item(domain.ActInform, slot, st.Get(slot)))
				}
				return act
			},
		},
		{
			Name: "confirmed_slots",
			Match: func(_ *Policy, st *dialogue.State) bool {
				return len(st.ConfirmedSlots()) > 0
			},
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				var act domain.DialogueAct
				for _, c := range st.ConfirmedSlots() {
					current := st.Get(c.Slot)
					if c.Value == current {
						act = append(act, domain.Item(domain.ActAffirm), domain.Item(domain.ActInform, c.Slot, current))
					} else {
						act = append(act, domain.Item(domain.ActNegate), domain.Item(domain.ActDeny, c.Slot, current))
					}
				}
				return act
			},
		},
		{
			Name:  "reqmore",
			Match: func(*Policy, *dialogue.State) bool { return true },
			Act: func(_ *Policy, st *dialogue.State) domain.DialogueAct {
				st.Clear(dialogue.KeyLastDiscourseAct)
				return domain.Act(domain.Item(domain.ActReqMore))
			},
		},
	}
}

func ldaIs(t domain.ActType) func(*Policy, *dialogue.State) bool {
	return func(_ *Policy, st *dialogue.State) bool {
		return st.LastDiscourseAct() == string(t)
	}
}
