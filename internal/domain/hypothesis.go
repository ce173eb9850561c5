package domain

import "fmt"

// Ensure all hypothesis kinds implement Hypothesis.
var (
	_ Hypothesis = SingleAct{}
	_ Hypothesis = NBest{}
	_ Hypothesis = ConfusionNetwork{}
)

// Hypothesis is one recognised user turn as delivered by the understanding
// component. It is always reduced to a single best act before use.
type Hypothesis interface {
	Message
	// Best returns the single most likely dialogue act.
	Best() DialogueAct
}

// SingleAct is a hypothesis carrying exactly one act.
type SingleAct struct {
	Act DialogueAct `json:"act"`
}

func (SingleAct) isMessage()        {}
func (SingleAct) Kind() MessageKind { return KindSingleAct }

func (h SingleAct) Best() DialogueAct {
	return h.Act.Clone()
}

// NBestEntry is one ranked alternative of an n-best list.
type NBestEntry struct {
	Prob float64     `json:"prob"`
	Act  DialogueAct `json:"act"`
}

// NBest is a ranked list of alternative acts with confidences.
type NBest []NBestEntry

func (NBest) isMessage()        {}
func (NBest) Kind() MessageKind { return KindNBest }

// Best returns the entry with the highest probability; the earlier entry
// wins a tie. An empty list yields null().
func (h NBest) Best() DialogueAct {
	if len(h) == 0 {
		return Act(Item(ActNull))
	}
	best := 0
	for i := 1; i < len(h); i++ {
		if h[i].Prob > h[best].Prob {
			best = i
		}
	}
	return h[best].Act.Clone()
}

// CNEntry is one item of a confusion network with its posterior.
type CNEntry struct {
	Prob float64         `json:"prob"`
	Item DialogueActItem `json:"item"`
}

// topPathThreshold is the posterior an item needs to be on the top path.
const topPathThreshold = 0.5

// ConfusionNetwork is a lattice of act items with posteriors.
type ConfusionNetwork []CNEntry

func (ConfusionNetwork) isMessage()        {}
func (ConfusionNetwork) Kind() MessageKind { return KindConfusionNetwork }

// Best returns the top path: every item above the threshold in network
// order, or null() when no item qualifies.
func (h ConfusionNetwork) Best() DialogueAct {
	var out DialogueAct
	for _, e := range h {
		if e.Prob > topPathThreshold {
			out = append(out, e.Item)
		}
	}
	if len(out) == 0 {
		return Act(Item(ActNull))
	}
	return out
}

// BestAct reduces any hypothesis to its single best act.
func BestAct(h Hypothesis) (DialogueAct, error) {
	switch v := h.(type) {
	case SingleAct:
		return v.Best(), nil
	case *SingleAct:
		if v == nil {
			break
		}
		return v.Best(), nil
	case NBest:
		return v.Best(), nil
	case ConfusionNetwork:
		return v.Best(), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedInputKind, h)
}
