package mcts

import (
	"sort"

	"github.com/brensch/chessmcts/executor/convert"
	"github.com/brensch/chessmcts/game"
)

// RootSummary is a compact, serialisable view of the root after a search.
type RootSummary struct {
	Visits int     `json:"n"`
	Value  float64 `json:"value"`
	// WhiteValue is Value from white's point of view.
	WhiteValue float64        `json:"white_value"`
	Children   []ChildSummary `json:"children"`
}

// ChildSummary describes one root move. Q is from the perspective of the
// side choosing the move.
type ChildSummary struct {
	Move   string  `json:"move"`
	Action int     `json:"action"`
	Visits int     `json:"n"`
	Q      float64 `json:"q"`
	Prior  float64 `json:"p"`
	// Share is the fraction of root visits that went to this move.
	Share float64 `json:"share"`
}

// Summary extracts root statistics, most visited first. state must be the
// position the tree was searched from.
func (t *Tree) Summary(state game.State) RootSummary {
	root := t.Root()
	s := RootSummary{
		Visits:     root.Visits,
		Value:      root.Value(),
		WhiteValue: root.Value(),
		Children:   make([]ChildSummary, 0, root.numChildren),
	}
	if state.Turn() == game.Black {
		s.WhiteValue = -s.WhiteValue
	}

	total := 0
	for _, id := range t.Children(t.root) {
		total += t.nodes[id].Visits
	}
	for _, id := range t.Children(t.root) {
		child := &t.nodes[id]
		m, _ := convert.DecodeMove(child.Action, state)
		cs := ChildSummary{
			Move:   m.String(),
			Action: int(child.Action),
			Visits: child.Visits,
			Q:      -child.Value(),
			Prior:  child.Prior,
		}
		if total > 0 {
			cs.Share = float64(child.Visits) / float64(total)
		}
		s.Children = append(s.Children, cs)
	}

	sort.SliceStable(s.Children, func(i, j int) bool {
		if s.Children[i].Visits != s.Children[j].Visits {
			return s.Children[i].Visits > s.Children[j].Visits
		}
		return s.Children[i].Action < s.Children[j].Action
	})
	return s
}

// Top returns at most k children in summary order.
func (s RootSummary) Top(k int) []ChildSummary {
	if k < 0 {
		k = 0
	}
	if k > len(s.Children) {
		k = len(s.Children)
	}
	return s.Children[:k]
}

// VisitPolicy is the root visit distribution over the full action space.
func (t *Tree) VisitPolicy() []float32 {
	policy := make([]float32, convert.ActionSpace)
	total := 0
	for _, id := range t.Children(t.root) {
		total += t.nodes[id].Visits
	}
	if total == 0 {
		return policy
	}
	for _, id := range t.Children(t.root) {
		n := &t.nodes[id]
		policy[n.Action] = float32(n.Visits) / float32(total)
	}
	return policy
}
