// Package selfplay plays engine-vs-engine games and records every searched
// position as a store.PositionRow.
package selfplay

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brensch/chessmcts/executor/analysis"
	"github.com/brensch/chessmcts/executor/convert"
	"github.com/brensch/chessmcts/executor/mcts"
	"github.com/brensch/chessmcts/game"
	"github.com/brensch/chessmcts/rules"
	"github.com/brensch/chessmcts/store"
	"github.com/rs/zerolog/log"
)

const SourceSelfPlay = "selfplay"

type GameResult struct {
	// Result is "1-0", "0-1", "1/2-1/2", or "*" when MaxPlies cut the game.
	Result string
	Plies  int
}

// Outcome is the result from white's perspective.
func (r GameResult) Outcome() float32 {
	switch r.Result {
	case "1-0":
		return 1
	case "0-1":
		return -1
	}
	return 0
}

type PlayGameOptions struct {
	// StartFEN defaults to the standard start position.
	StartFEN string
	// SamplePlies is how many opening plies pick a move in proportion to
	// visit counts instead of the most visited one.
	SamplePlies int
	// MaxPlies ends the game unfinished; 0 means no limit.
	MaxPlies  int
	Seed      int64
	ModelPath string
	Verbose   bool
	// OnStep runs after every played move.
	OnStep func()
}

type PlayGameOutcome struct {
	Completed bool
	GameID    string
	Rows      []store.PositionRow
	Result    GameResult
}

// PlayGame plays one game with engine moving for both sides. It returns an
// incomplete outcome, without rows, if ctx is cancelled.
func PlayGame(ctx context.Context, workerId int, engine *mcts.Engine, opts PlayGameOptions) (PlayGameOutcome, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() + int64(workerId)*1000003
	}
	rng := rand.New(rand.NewSource(seed))
	gameID := fmt.Sprintf("selfplay_%d_%d", time.Now().UnixNano(), workerId)

	start := opts.StartFEN
	if start == "" {
		start = rules.StartFEN
	}
	board, err := rules.FromFEN(start)
	if err != nil {
		return PlayGameOutcome{}, err
	}

	rows := make([]store.PositionRow, 0, 128)
	ply := 0
	for !board.IsGameOver() {
		if opts.MaxPlies > 0 && ply >= opts.MaxPlies {
			break
		}
		if err := ctx.Err(); err != nil {
			return PlayGameOutcome{GameID: gameID, Result: GameResult{Result: "*", Plies: ply}}, nil
		}

		tree, err := engine.SearchTree(ctx, board)
		if err != nil {
			if ctx.Err() != nil {
				return PlayGameOutcome{GameID: gameID, Result: GameResult{Result: "*", Plies: ply}}, nil
			}
			return PlayGameOutcome{}, fmt.Errorf("ply %d: %w", ply, err)
		}

		row := analysis.RowFromTree(tree, board, ply)
		move := chooseMove(rng, tree, board, ply < opts.SamplePlies)

		if opts.Verbose {
			PrintBoard(board, tree.Summary(board), move)
		}

		next, err := board.Push(move)
		if err != nil {
			return PlayGameOutcome{}, fmt.Errorf("ply %d: engine chose %s: %w", ply, move, err)
		}
		row.GameID = gameID
		row.PlayedMove = move.String()
		row.Source = SourceSelfPlay
		row.ModelPath = opts.ModelPath
		rows = append(rows, row)

		board = next.(*rules.Board)
		ply++
		if opts.OnStep != nil {
			opts.OnStep()
		}
	}

	result := GameResult{Result: resultOf(board), Plies: ply}
	for i := range rows {
		rows[i].Outcome = result.Outcome()
		rows[i].Result = result.Result
	}
	log.Debug().Int("worker", workerId).Str("game", gameID).Str("result", result.Result).Int("plies", ply).Msg("self-play game finished")
	return PlayGameOutcome{Completed: true, GameID: gameID, Rows: rows, Result: result}, nil
}

func resultOf(b *rules.Board) string {
	switch {
	case !b.IsGameOver():
		return "*"
	case b.IsCheckmate():
		if b.Turn() == game.White {
			return "0-1"
		}
		return "1-0"
	}
	return "1/2-1/2"
}

// chooseMove picks the most visited root move, or samples by visit share
// when sample is set. With no visited child it falls back to the first
// legal move.
func chooseMove(rng *rand.Rand, tree *mcts.Tree, board *rules.Board, sample bool) game.Move {
	policy := tree.VisitPolicy()
	var idx int
	if sample {
		idx = sampleMove(rng, policy)
	} else {
		idx = argmax(policy)
	}
	if idx >= 0 && policy[idx] > 0 {
		if m, ok := convert.DecodeMove(convert.ActionIndex(idx), board); ok {
			return m
		}
	}
	return board.LegalMoves()[0]
}

func sampleMove(rng *rand.Rand, policy []float32) int {
	r := rng.Float32()
	sum := float32(0)
	last := -1
	for i, p := range policy {
		if p <= 0 {
			continue
		}
		sum += p
		last = i
		if r < sum {
			return i
		}
	}
	return last
}

// argmax returns the first index of the largest entry, or -1 for an empty
// slice.
func argmax(policy []float32) int {
	bestIdx := -1
	bestVal := float32(-1)
	for i, p := range policy {
		if p > bestVal {
			bestVal = p
			bestIdx = i
		}
	}
	return bestIdx
}
