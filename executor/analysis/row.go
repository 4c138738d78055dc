package analysis

import (
	"encoding/json"

	"github.com/brensch/chessmcts/executor/mcts"
	"github.com/brensch/chessmcts/rules"
	"github.com/brensch/chessmcts/store"
	"github.com/rs/zerolog/log"
)

// RowFromTree turns a finished search into a PositionRow. Game-level fields
// (GameID, Outcome, Result, Source, ModelPath, PlayedMove) are left for the
// caller.
func RowFromTree(tree *mcts.Tree, state *rules.Board, ply int) store.PositionRow {
	summary := tree.Summary(state)

	row := store.PositionRow{
		Ply:         int32(ply),
		FEN:         state.FEN(),
		SideToMove:  state.Turn().String(),
		Value:       float32(summary.Value),
		WhiteValue:  float32(summary.WhiteValue),
		Simulations: int32(summary.Visits),
		PolicyIndex: make([]int32, 0, len(summary.Children)),
		PolicyProbs: make([]float32, 0, len(summary.Children)),
	}
	if len(summary.Children) > 0 {
		row.BestMove = summary.Children[0].Move
	}
	for _, c := range summary.Children {
		if c.Visits == 0 {
			continue
		}
		row.PolicyIndex = append(row.PolicyIndex, int32(c.Action))
		row.PolicyProbs = append(row.PolicyProbs, float32(c.Share))
	}

	b, err := json.Marshal(summary)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode root summary")
	} else {
		row.MCTSRootJSON = b
	}
	return row
}
