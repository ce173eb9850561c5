// Package dialogue holds the dialogue state of one session: slot memory,
// the turn log and the rules that fold user and system acts into it.
package dialogue

import (
	"strings"

	"sds/internal/domain"
)

// Turn is one recorded exchange: the best user act and the system act it
// answered.
type Turn struct {
	User   domain.DialogueAct
	System domain.DialogueAct
}

// ConfirmedSlot is a slot the user asked the system to confirm.
type ConfirmedSlot struct {
	Slot  string
	Value string
}

// State tracks what has been said, requested, confirmed and selected.
// It is owned by a single session and is not safe for concurrent use.
type State struct {
	slots *slotMemory
	turns []Turn
}

func NewState() *State {
	return &State{slots: newSlotMemory()}
}

// Restart clears the slot memory. The turn log is kept.
func (s *State) Restart() {
	s.slots = newSlotMemory()
}

// Get returns the value stored under key, or SlotUnknown.
func (s *State) Get(key string) string {
	return s.slots.get(key)
}

// Set stores value under key; SlotUnknown resets the key.
func (s *State) Set(key, value string) {
	s.slots.set(key, value)
}

// Clear resets key to SlotUnknown.
func (s *State) Clear(key string) {
	s.slots.delete(key)
}

// LastDiscourseAct returns the stored lda value.
func (s *State) LastDiscourseAct() string {
	return s.slots.get(KeyLastDiscourseAct)
}

// SlotCount returns the number of keys currently set.
func (s *State) SlotCount() int {
	return s.slots.len()
}

// Slots returns a copy of the slot memory.
func (s *State) Slots() map[string]string {
	out := make(map[string]string, s.slots.len())
	s.slots.each(func(k, v string) { out[k] = v })
	return out
}

// Turns returns a copy of the turn log.
func (s *State) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Update folds one user hypothesis into the state. The hypothesis is first
// reduced to its best act; unsupported hypotheses leave the state untouched.
func (s *State) Update(userHyp domain.Hypothesis, lastSystemAct domain.DialogueAct) error {
	userAct, err := domain.BestAct(userHyp)
	if err != nil {
		return err
	}

	s.turns = append(s.turns, Turn{User: userAct.Clone(), System: lastSystemAct.Clone()})

	resolved := ResolveContext(userAct, lastSystemAct)
	s.apply(resolved, lastSystemAct)
	return nil
}

// RequestedSlots returns the slots the user asked about, in slot memory order.
func (s *State) RequestedSlots() []string {
	var out []string
	s.slots.each(func(k, v string) {
		if strings.HasPrefix(k, RequestPrefix) && v == UserRequested {
			out = append(out, strings.TrimPrefix(k, RequestPrefix))
		}
	})
	return out
}

// ConfirmedSlots returns the slots the user asked to confirm together with
// the value the user expects, in slot memory order.
func (s *State) ConfirmedSlots() []ConfirmedSlot {
	var out []ConfirmedSlot
	s.slots.each(func(k, v string) {
		if strings.HasPrefix(k, ConfirmPrefix) && v != SlotUnknown && v != SystemInformed {
			out = append(out, ConfirmedSlot{Slot: strings.TrimPrefix(k, ConfirmPrefix), Value: v})
		}
	})
	return out
}

// apply records the system act first, since it was produced earlier in the
// turn, and then the resolved user act.
func (s *State) apply(userAct, lastSystemAct domain.DialogueAct) {
	for _, dai := range lastSystemAct {
		if dai.Type == domain.ActInform && dai.Slot != "" {
			s.slots.set(RequestPrefix+dai.Slot, SystemInformed)
			s.slots.set(ConfirmPrefix+dai.Slot, SystemInformed)
			s.slots.set(SelectPrefix+dai.Slot, SystemInformed)
		}
	}

	for _, dai := range userAct {
		switch dai.Type {
		case domain.ActInform:
			if dai.Slot != "" {
				s.slots.set(dai.Slot, dai.Value)
			}
		case domain.ActDeny:
			// Only a denial of the value we hold invalidates it; nothing is
			// known to replace it with.
			if dai.Slot != "" && s.slots.get(dai.Slot) == dai.Value {
				s.slots.delete(dai.Slot)
			}
		case domain.ActRequest:
			if dai.Slot == "" {
				continue
			}
			value := dai.Value
			if value == "" {
				value = UserRequested
			}
			s.slots.set(RequestPrefix+dai.Slot, value)
		case domain.ActConfirm:
			if dai.Slot != "" && dai.Value != "" {
				s.slots.set(ConfirmPrefix+dai.Slot, dai.Value)
			}
		case domain.ActSelect:
			if dai.Slot != "" && dai.Value != "" {
				s.slots.set(SelectPrefix+dai.Slot, dai.Value)
			}
		default:
			if isDiscourseAct(dai.Type) {
				s.slots.set(KeyLastDiscourseAct, string(dai.Type))
			}
		}
	}
}

func isDiscourseAct(t domain.ActType) bool {
	switch t {
	case domain.ActAck, domain.ActApology, domain.ActBye, domain.ActHangup,
		domain.ActHello, domain.ActHelp, domain.ActNull, domain.ActRepeat,
		domain.ActReqAlts, domain.ActReqMore, domain.ActRestart, domain.ActThankYou:
		return true
	}
	return false
}
